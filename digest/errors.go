package digest

import "errors"

var (
	ErrInvalidScaleFunction = errors.New("unknown scale function")
	ErrInvalidCompression   = errors.New("compression must be positive")
	ErrInvalidSnapshot      = errors.New("digest snapshot has invalid length")
)
