package config

import "errors"

var (
	ErrReadingConfigFile     = errors.New("failed to read config file")
	ErrUnmarshallingConfig   = errors.New("failed to unmarshal config")
	ErrConfigFileMissing     = errors.New("config file not found")
	ErrInvalidStorageBackend = errors.New("storage backend must be 'memory' or 'badger'")
	ErrEmptyStoragePath      = errors.New("badger storage needs a path")
	ErrInvalidSourceType     = errors.New("source type must be 'stdin', 'file' or 'kafka'")
	ErrEmptySourcePath       = errors.New("file source needs a path")
	ErrEmptyKafkaBrokers     = errors.New("kafka brokers list cannot be empty")
	ErrEmptyKafkaTopic       = errors.New("kafka topic cannot be empty")
	ErrEmptyKafkaGroupID     = errors.New("kafka groupID cannot be empty")
	ErrEmptyComponentID      = errors.New("component id cannot be empty")
	ErrDuplicateComponentID  = errors.New("component id is used more than once")
	ErrUnknownSource         = errors.New("component source cannot be empty")
	ErrDerivedInput          = errors.New("derived inputs must name raw sources")
	ErrInvalidMemoryBudget   = errors.New("memory budgets cannot be negative")
)
