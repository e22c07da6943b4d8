package app

import "errors"

var (
	ErrStorageCreationFailed = errors.New("failed to create snapshot storage")
	ErrSourceCreationFailed  = errors.New("failed to create sample source")
	ErrComponentCreation     = errors.New("failed to create component")
	ErrSourceRunFailed       = errors.New("sample source failed")
	ErrMetricsServerFailed   = errors.New("metrics server failed")
)
