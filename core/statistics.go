package core

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"sensorstats/monoid"
	"sensorstats/sink"
	"sensorstats/storage"
	"sensorstats/window"
)

const statisticsKind = "statistics"

// Statistics turns a stream of (value, timestamp) samples into windowed
// summary statistics. Samples are folded into a running chunk; closed chunks
// go into the configured queue, and every SendEvery chunks the subscribed
// statistics are derived from the queue's aggregate and published.
//
// A Statistics is driven from a single goroutine.
type Statistics struct {
	cfg       StatisticsConfig
	store     storage.SnapshotStore
	allocator window.Allocator
	logger    *zap.Logger

	sinks  [numStatistics][]sink.Sink
	queue  window.Queue
	fields monoid.Fields
	setup  bool
	failed bool

	chunk         monoid.Aggregate
	chunkCount    int
	chunkDuration uint64

	// duration covered by the chunks in the queue, for the reset cap
	queueDuration uint64
	sendAt        int

	previousTimestamp uint32
	previousValue     float64
	hasPrevious       bool

	published monoid.Aggregate
}

// NewStatistics validates cfg and returns an unset component. store may be
// nil unless cfg.Restore is set; a nil allocator never refuses.
func NewStatistics(cfg StatisticsConfig, store storage.SnapshotStore, allocator window.Allocator, logger *zap.Logger) (*Statistics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("statistics '%s': %w", cfg.ID, err)
	}
	if cfg.Restore && store == nil {
		return nil, fmt.Errorf("statistics '%s': %w", cfg.ID, ErrRestoreUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if allocator == nil {
		allocator = window.Unbounded
	}

	return &Statistics{
		cfg:           cfg,
		store:         store,
		allocator:     allocator,
		logger:        logger.Named(statisticsKind).With(zap.String("component", cfg.ID)),
		chunk:         monoid.Identity(),
		previousValue: math.NaN(),
		published:     monoid.Identity(),
	}, nil
}

func (s *Statistics) ID() string {
	return s.cfg.ID
}

func (s *Statistics) Config() StatisticsConfig {
	return s.cfg
}

// Subscribe registers a sink for stat. Subscriptions decide which aggregate
// members are stored, so they must all be made before Setup.
func (s *Statistics) Subscribe(stat Statistic, target sink.Sink) error {
	if !stat.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatistic, int(stat))
	}
	if s.setup {
		return ErrAlreadySetup
	}
	s.sinks[stat] = append(s.sinks[stat], target)
	return nil
}

func (s *Statistics) subscribed() []Statistic {
	var statistics []Statistic
	for stat, sinks := range s.sinks {
		if len(sinks) > 0 {
			statistics = append(statistics, Statistic(stat))
		}
	}
	return statistics
}

func (s *Statistics) timeWeighted() bool {
	return s.cfg.AverageType == TimeWeightedAverage
}

func (s *Statistics) newQueue() (window.Queue, int) {
	switch s.cfg.Type {
	case SlidingWindow, ChunkedSlidingWindow:
		return window.NewDABALite(s.timeWeighted()), s.cfg.WindowSize
	case ChunkedContinuous:
		return window.NewLogQueue(s.timeWeighted()), s.cfg.WindowSize
	default:
		return window.NewSingular(s.timeWeighted()), 0
	}
}

// Setup allocates the queue for the subscribed statistics and restores the
// last published aggregate when configured. An allocation failure leaves the
// component failed: it returns the error and ignores every later call.
func (s *Statistics) Setup() error {
	if s.setup {
		return ErrAlreadySetup
	}
	s.setup = true

	s.fields = EnabledFields(s.subscribed(), s.cfg.AverageType)
	queue, capacity := s.newQueue()
	if err := queue.Allocate(capacity, s.fields, s.allocator); err != nil {
		s.failed = true
		s.logger.Error("Failed to allocate memory for statistics",
			zap.Int("capacity", capacity),
			zap.Stringer("fields", s.fields),
			zap.Error(err),
		)
		return fmt.Errorf("%w: statistics '%s': %w", ErrComponentFailed, s.cfg.ID, err)
	}
	s.queue = queue
	s.resetCounters()

	s.logger.Info("Statistics component set up",
		zap.Stringer("type", s.cfg.Type),
		zap.Int("window_size", s.cfg.WindowSize),
		zap.Int("chunk_size", s.cfg.ChunkSize),
		zap.Uint32("chunk_duration_ms", s.cfg.ChunkDurationMs),
		zap.Int("send_every", s.cfg.SendEvery),
		zap.Stringer("average_type", s.cfg.AverageType),
		zap.Stringer("group_type", s.cfg.GroupType),
		zap.Stringer("time_unit", s.cfg.TimeUnit),
		zap.Stringer("fields", s.fields),
	)

	if s.cfg.Restore {
		s.restore()
	}
	return nil
}

func (s *Statistics) snapshotKey() uint64 {
	return storage.HashKey(statisticsKind, s.cfg.RestoreKey)
}

func (s *Statistics) restore() {
	buf, err := s.store.Load(s.snapshotKey())
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		s.logger.Debug("No snapshot to restore")
		return
	}
	if err != nil {
		s.logger.Warn("Failed to load snapshot", zap.Error(err))
		return
	}

	restored := monoid.Identity()
	if err := restored.UnmarshalBinary(buf); err != nil {
		err = fmt.Errorf("%w: %w", storage.ErrCorruptSnapshot, err)
		s.logger.Warn("Ignoring corrupt snapshot", zap.Int("bytes", len(buf)), zap.Error(err))
		return
	}
	if err := s.queue.Insert(restored); err != nil {
		s.logger.Warn("Failed to insert restored aggregate", zap.Error(err))
		return
	}
	s.queueDuration += restored.Duration
	s.published = restored
	s.logger.Info("Restored snapshot", zap.Uint64("count", restored.Count))
}

func (s *Statistics) Failed() bool {
	return s.failed
}

func (s *Statistics) active() bool {
	return s.queue != nil && !s.failed
}

// Sample adds one reading taken at nowMs. NaN readings are not aggregated
// but still advance the chunk and the time base.
func (s *Statistics) Sample(value float32, nowMs uint32) {
	if !s.active() {
		return
	}

	var duration uint32
	if s.hasPrevious {
		duration = nowMs - s.previousTimestamp
	}
	s.previousTimestamp = nowMs
	s.hasPrevious = true

	var lifted monoid.Aggregate
	if s.timeWeighted() {
		// the previous reading held for the elapsed span
		lifted = monoid.FromSample(s.previousValue, duration, nowMs)
		if !math.IsNaN(float64(value)) {
			s.previousValue = float64(value)
		}
	} else {
		lifted = monoid.FromSample(float64(value), duration, nowMs)
	}

	if s.cfg.WindowSize > 0 {
		for s.queue.Size() >= s.cfg.WindowSize {
			s.evict()
		}
	}

	if s.cfg.WindowResetDurationMs > 0 && s.queueDuration >= s.cfg.WindowResetDurationMs {
		s.clearWindow()
	}

	s.chunk = monoid.Combine(s.chunk, lifted, s.timeWeighted())
	s.chunkCount++
	s.chunkDuration += uint64(duration)

	if s.chunkReady() {
		if err := s.queue.Insert(s.chunk); err != nil {
			s.logger.Error("Failed to insert chunk", zap.Error(err))
		} else {
			s.queueDuration += s.chunkDuration
			s.sendAt++
		}
		s.chunk = monoid.Identity()
		s.chunkCount = 0
		s.chunkDuration = 0
	}

	if s.cfg.SendEvery > 0 && s.sendAt >= s.cfg.SendEvery {
		s.sendAt = 0
		s.publish()
	}
}

func (s *Statistics) evict() {
	s.queue.Evict()
	if !s.cfg.Type.Sliding() {
		s.queueDuration = 0
	}
}

func (s *Statistics) chunkReady() bool {
	if s.cfg.ChunkSize > 0 {
		return s.chunkCount >= s.cfg.ChunkSize
	}
	return s.chunkDuration >= uint64(s.cfg.ChunkDurationMs) && s.chunkCount > 0
}

// Current is the aggregate over every closed chunk in the window.
func (s *Statistics) Current() monoid.Aggregate {
	if !s.active() {
		return monoid.Identity()
	}
	return s.queue.Current()
}

// Published is the aggregate behind the most recent publication.
func (s *Statistics) Published() monoid.Aggregate {
	return s.published
}

// ForcePublish publishes the current statistics outside the cadence.
func (s *Statistics) ForcePublish() {
	if !s.active() {
		return
	}
	s.publish()
}

func (s *Statistics) publish() {
	current := s.queue.Current()
	for stat, sinks := range s.sinks {
		if len(sinks) == 0 {
			continue
		}
		value := Derive(Statistic(stat), current, s.cfg.AverageType, s.cfg.GroupType, s.cfg.TimeUnit)
		for _, target := range sinks {
			target.Publish(value)
		}
	}
	s.published = current

	if s.cfg.Restore {
		s.snapshot(current)
	}
}

func (s *Statistics) snapshot(aggregate monoid.Aggregate) {
	buf, err := aggregate.MarshalBinary()
	if err != nil {
		s.logger.Warn("Failed to encode snapshot", zap.Error(err))
		return
	}
	if err := s.store.Save(s.snapshotKey(), buf); err != nil {
		s.logger.Warn("Failed to save snapshot", zap.Error(err))
	}
}

// Reset empties the queue and the running chunk, forgets the previous
// reading and restarts the publish cadence from its initial phase.
func (s *Statistics) Reset() {
	if !s.active() {
		return
	}
	s.resetCounters()
	s.hasPrevious = false
	s.previousTimestamp = 0
	s.previousValue = math.NaN()
	s.logger.Debug("Statistics reset")
}

// clearWindow drops the queue and the running chunk. The time base and the
// publish cadence are left alone.
func (s *Statistics) clearWindow() {
	s.queue.Clear()
	s.chunk = monoid.Identity()
	s.chunkCount = 0
	s.chunkDuration = 0
	s.queueDuration = 0
}

func (s *Statistics) resetCounters() {
	s.clearWindow()
	s.sendAt = 0
	if s.cfg.SendEvery > 0 {
		s.sendAt = s.cfg.SendEvery - s.cfg.SendFirstAt
	}
}
