package sink

import (
	"go.uber.org/zap"
)

// Logged writes every publication at debug level.
type Logged struct {
	logger *zap.Logger
}

func NewLogged(logger *zap.Logger, component, statistic string) *Logged {
	return &Logged{
		logger: logger.With(
			zap.String("component", component),
			zap.String("statistic", statistic),
		),
	}
}

func (l *Logged) Publish(value float64) {
	l.logger.Debug("Published statistic", zap.Float64("value", value))
}
