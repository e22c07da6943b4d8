package core

import "errors"

var (
	ErrInvalidStatisticsType = errors.New("invalid statistics type")
	ErrInvalidAverageType    = errors.New("invalid average type")
	ErrInvalidGroupType      = errors.New("invalid group type")
	ErrInvalidTimeUnit       = errors.New("invalid time unit")
	ErrInvalidStatistic      = errors.New("invalid statistic")
	ErrInvalidDerivedOp      = errors.New("invalid derived operation")
	ErrInvalidChunking       = errors.New("exactly one of chunk size and chunk duration must be set")
	ErrInvalidWindowSize     = errors.New("window size must be positive for sliding windows")
	ErrInvalidSendEvery      = errors.New("send every must not be negative")
	ErrInvalidSendFirstAt    = errors.New("send first at must be between 0 and send every")
	ErrInvalidWindowReset    = errors.New("window reset duration only applies to continuous statistics")
	ErrInvalidQuantile       = errors.New("quantile must be between 0 and 1")
	ErrInvalidCompression    = errors.New("compression must be between 20 and 511")
	ErrComponentFailed       = errors.New("component failed")
	ErrRestoreUnavailable    = errors.New("restore requested without a snapshot store")
	ErrAlreadySetup          = errors.New("component is already set up")
)
