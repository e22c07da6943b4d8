package core

import (
	"fmt"
	"time"

	"sensorstats/digest"
)

const (
	defaultSendEvery      = 1
	defaultSendFirstAt    = 1
	defaultUpdateInterval = 60 * time.Second

	minCompression = 20
	maxCompression = 511
)

// StatisticsConfig configures one statistics component.
type StatisticsConfig struct {
	ID   string
	Type StatisticsType

	// WindowSize is the number of chunks kept by sliding windows, or the
	// number of chunks between resets for continuous ones (0 = never).
	WindowSize int

	// Exactly one of ChunkSize and ChunkDurationMs closes chunks.
	ChunkSize       int
	ChunkDurationMs uint32

	// WindowResetDurationMs resets continuous statistics once this much
	// duration has been aggregated (0 = never).
	WindowResetDurationMs uint64

	// SendEvery publishes once per that many inserted chunks; 0 leaves
	// publication to ForcePublish. SendFirstAt is the number of chunks before
	// the first publication.
	SendEvery   int
	SendFirstAt int

	AverageType AverageType
	GroupType   GroupType
	TimeUnit    TimeUnit

	Restore    bool
	RestoreKey string
}

func DefaultStatisticsConfig(id string) StatisticsConfig {
	return StatisticsConfig{
		ID:          id,
		Type:        SlidingWindow,
		WindowSize:  15,
		SendEvery:   defaultSendEvery,
		SendFirstAt: defaultSendFirstAt,
		AverageType: SimpleAverage,
		GroupType:   SampleGroup,
		TimeUnit:    Seconds,
	}
}

// Validate checks the option combination and fills in implied values: the
// unchunked types close a chunk on every sample.
func (cfg *StatisticsConfig) Validate() error {
	if _, ok := statisticsTypeNames[cfg.Type]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidStatisticsType, int(cfg.Type))
	}
	if cfg.AverageType != SimpleAverage && cfg.AverageType != TimeWeightedAverage {
		return fmt.Errorf("%w: %d", ErrInvalidAverageType, int(cfg.AverageType))
	}
	if cfg.GroupType != SampleGroup && cfg.GroupType != PopulationGroup {
		return fmt.Errorf("%w: %d", ErrInvalidGroupType, int(cfg.GroupType))
	}
	if _, ok := timeUnitFactors[cfg.TimeUnit]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidTimeUnit, int(cfg.TimeUnit))
	}

	if cfg.WindowSize < 0 || (cfg.Type.Sliding() && cfg.WindowSize == 0) {
		return fmt.Errorf("%w: %d", ErrInvalidWindowSize, cfg.WindowSize)
	}

	if cfg.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunking, cfg.ChunkSize)
	}
	if cfg.Type.Chunked() {
		if (cfg.ChunkSize > 0) == (cfg.ChunkDurationMs > 0) {
			return fmt.Errorf("%w: chunk size %d, chunk duration %d ms",
				ErrInvalidChunking, cfg.ChunkSize, cfg.ChunkDurationMs)
		}
	} else {
		if cfg.ChunkDurationMs > 0 || cfg.ChunkSize > 1 {
			return fmt.Errorf("%w: %s takes one sample per chunk", ErrInvalidChunking, cfg.Type)
		}
		cfg.ChunkSize = 1
	}

	if cfg.WindowResetDurationMs > 0 && cfg.Type.Sliding() {
		return fmt.Errorf("%w: %s", ErrInvalidWindowReset, cfg.Type)
	}

	if cfg.SendEvery < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSendEvery, cfg.SendEvery)
	}
	if cfg.SendEvery > 0 && (cfg.SendFirstAt < 0 || cfg.SendFirstAt > cfg.SendEvery) {
		return fmt.Errorf("%w: send first at %d, send every %d",
			ErrInvalidSendFirstAt, cfg.SendFirstAt, cfg.SendEvery)
	}

	if cfg.RestoreKey == "" {
		cfg.RestoreKey = cfg.ID
	}
	return nil
}

// DistributionConfig configures one quantile sketch component.
type DistributionConfig struct {
	ID           string
	Compression  float64
	Scale        digest.Scale
	BufferSize   int
	SnapshotSize int

	// UpdateInterval is how often the host calls Update.
	UpdateInterval time.Duration

	Restore    bool
	RestoreKey string
}

func DefaultDistributionConfig(id string) DistributionConfig {
	return DistributionConfig{
		ID:             id,
		Compression:    digest.DefaultCompression,
		Scale:          digest.K3,
		BufferSize:     digest.DefaultBufferSize,
		SnapshotSize:   digest.DefaultSnapshotSize,
		UpdateInterval: defaultUpdateInterval,
	}
}

func (cfg *DistributionConfig) Validate() error {
	if cfg.Compression < minCompression || cfg.Compression > maxCompression {
		return fmt.Errorf("%w: %v", ErrInvalidCompression, cfg.Compression)
	}
	if cfg.Scale == nil {
		cfg.Scale = digest.K3
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = digest.DefaultBufferSize
	}
	if cfg.SnapshotSize < 1 {
		cfg.SnapshotSize = digest.DefaultSnapshotSize
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = defaultUpdateInterval
	}
	if cfg.RestoreKey == "" {
		cfg.RestoreKey = cfg.ID
	}
	return nil
}
