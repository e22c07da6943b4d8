package core

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"sensorstats/digest"
	"sensorstats/sink"
	"sensorstats/storage"
)

const distributionKind = "distribution"

type quantileSubscription struct {
	quantile float64
	sink     sink.Sink
}

type cdfSubscription struct {
	value float64
	sink  sink.Sink
}

// Distribution keeps a merging t-digest over a sample stream and publishes
// its total weight, quantiles and CDF values whenever Update is called.
type Distribution struct {
	cfg    DistributionConfig
	store  storage.SnapshotStore
	logger *zap.Logger

	digest *digest.MergingDigest
	failed bool

	totalWeight []sink.Sink
	quantiles   []quantileSubscription
	cdfs        []cdfSubscription
}

func NewDistribution(cfg DistributionConfig, store storage.SnapshotStore, logger *zap.Logger) (*Distribution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("distribution '%s': %w", cfg.ID, err)
	}
	if cfg.Restore && store == nil {
		return nil, fmt.Errorf("distribution '%s': %w", cfg.ID, ErrRestoreUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distribution{
		cfg:    cfg,
		store:  store,
		logger: logger.Named(distributionKind).With(zap.String("component", cfg.ID)),
	}, nil
}

func (d *Distribution) ID() string {
	return d.cfg.ID
}

func (d *Distribution) Config() DistributionConfig {
	return d.cfg
}

func (d *Distribution) SubscribeTotalWeight(target sink.Sink) {
	d.totalWeight = append(d.totalWeight, target)
}

func (d *Distribution) SubscribeQuantile(quantile float64, target sink.Sink) error {
	if math.IsNaN(quantile) || quantile < 0 || quantile > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantile, quantile)
	}
	d.quantiles = append(d.quantiles, quantileSubscription{quantile: quantile, sink: target})
	return nil
}

func (d *Distribution) SubscribeCDF(value float64, target sink.Sink) {
	d.cdfs = append(d.cdfs, cdfSubscription{value: value, sink: target})
}

// Setup allocates the digest and, when configured, restores the saved
// centroids and publishes them straight away.
func (d *Distribution) Setup() error {
	if d.digest != nil || d.failed {
		return ErrAlreadySetup
	}

	td, err := digest.New(d.cfg.Compression, d.cfg.Scale, d.cfg.BufferSize)
	if err != nil {
		d.failed = true
		d.logger.Error("Failed to allocate digest", zap.Error(err))
		return fmt.Errorf("%w: distribution '%s': %w", ErrComponentFailed, d.cfg.ID, err)
	}
	d.digest = td

	d.logger.Info("Distribution component set up",
		zap.Float64("compression", d.cfg.Compression),
		zap.Stringer("scale_function", d.cfg.Scale),
		zap.Int("buffer_size", d.cfg.BufferSize),
		zap.Int("quantiles", len(d.quantiles)),
		zap.Int("cdfs", len(d.cdfs)),
	)

	if d.cfg.Restore && d.restore() {
		d.Update()
	}
	return nil
}

func (d *Distribution) snapshotKey() uint64 {
	return storage.HashKey(distributionKind, d.cfg.RestoreKey)
}

func (d *Distribution) restore() bool {
	buf, err := d.store.Load(d.snapshotKey())
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		d.logger.Debug("No snapshot to restore")
		return false
	}
	if err != nil {
		d.logger.Warn("Failed to load snapshot", zap.Error(err))
		return false
	}

	centroids, err := digest.UnmarshalSnapshot(buf)
	if err != nil {
		err = fmt.Errorf("%w: %w", storage.ErrCorruptSnapshot, err)
		d.logger.Warn("Ignoring corrupt snapshot", zap.Int("bytes", len(buf)), zap.Error(err))
		return false
	}
	d.digest.Restore(centroids)
	d.logger.Info("Restored snapshot", zap.Uint64("total_weight", d.digest.TotalWeight()))
	return true
}

func (d *Distribution) Failed() bool {
	return d.failed
}

// Sample adds value with unit weight. The timestamp is unused; it keeps the
// signature shared with Statistics.
func (d *Distribution) Sample(value float32, _ uint32) {
	if d.digest == nil {
		return
	}
	d.digest.Add(float64(value), 1)
}

// Update publishes every subscribed value and saves a snapshot when
// restore is enabled.
func (d *Distribution) Update() {
	if d.digest == nil {
		return
	}

	for _, subscription := range d.quantiles {
		subscription.sink.Publish(d.digest.Quantile(subscription.quantile))
	}
	for _, subscription := range d.cdfs {
		subscription.sink.Publish(d.digest.CDF(subscription.value))
	}
	total := float64(d.digest.TotalWeight())
	for _, target := range d.totalWeight {
		target.Publish(total)
	}

	if d.cfg.Restore {
		buf := digest.MarshalSnapshot(d.digest.Snapshot(d.cfg.SnapshotSize))
		if err := d.store.Save(d.snapshotKey(), buf); err != nil {
			d.logger.Warn("Failed to save snapshot", zap.Error(err))
		}
	}
}

// Quantile queries the digest directly.
func (d *Distribution) Quantile(q float64) float64 {
	if d.digest == nil {
		return math.NaN()
	}
	return d.digest.Quantile(q)
}

func (d *Distribution) CDF(x float64) float64 {
	if d.digest == nil {
		return math.NaN()
	}
	return d.digest.CDF(x)
}

func (d *Distribution) TotalWeight() uint64 {
	if d.digest == nil {
		return 0
	}
	return d.digest.TotalWeight()
}

func (d *Distribution) Reset() {
	if d.digest == nil {
		return
	}
	d.digest.Clear()
	d.logger.Debug("Distribution reset")
}
