package source

import "errors"

var (
	ErrMalformedLine      = errors.New("malformed sample line")
	ErrMalformedMessage   = errors.New("malformed sample message")
	ErrInvalidKafkaConfig = errors.New("invalid Kafka configuration provided")
	ErrKafkaFetchFailed   = errors.New("failed to fetch message from Kafka")
	ErrReadFailed         = errors.New("failed to read samples")
)
