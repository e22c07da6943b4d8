package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sensorstats/config"
	"sensorstats/core"
	"sensorstats/eventloop"
	"sensorstats/sink"
	"sensorstats/source"
	"sensorstats/storage"
	"sensorstats/window"
)

const shutdownTimeout = 5 * time.Second

// sampleFunc adapts a function to core.SampleSink.
type sampleFunc func(value float32, nowMs uint32)

func (f sampleFunc) Sample(value float32, nowMs uint32) {
	f(value, nowMs)
}

type Option func(*Host)

// WithSource replaces the configured sample source.
func WithSource(src source.Source) Option {
	return func(h *Host) {
		h.source = src
	}
}

// WithClock replaces the clock used to stamp samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		h.now = now
	}
}

// Host owns every component built from a configuration and drives them from
// a single event loop. Samples are routed by source name; a derived
// component's output is routed under its own id.
type Host struct {
	cfg    *config.Config
	base   *zap.Logger
	logger *zap.Logger

	loop      *eventloop.Loop
	store     *storage.BackingStore
	allocator window.Allocator

	registry     *prometheus.Registry
	gauges       *sink.GaugeVec
	samplesTotal *prometheus.CounterVec
	unrouted     prometheus.Counter

	statistics    []*core.Statistics
	distributions []*core.Distribution
	derived       []*core.Derived
	routes        map[string][]core.SampleSink
	setup         bool

	source source.Source
	closer io.Closer
	now    func() time.Time
}

// New builds the storage, every component and its sinks. Nothing runs until
// Setup or Run.
func New(cfg *config.Config, logger *zap.Logger, options ...Option) (*Host, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	initLogger := logger.Named("host.init")

	h := &Host{
		cfg:      cfg,
		base:     logger,
		logger:   logger.Named("host"),
		loop:     eventloop.New(logger.Named("loop"), cfg.Loop.QueueSize),
		registry: prometheus.NewRegistry(),
		routes:   make(map[string][]core.SampleSink),
		now:      time.Now,
	}
	for _, option := range options {
		option(h)
	}

	if err := h.buildMetrics(); err != nil {
		return nil, err
	}
	if err := h.buildStorage(); err != nil {
		return nil, err
	}
	h.buildAllocator()

	if err := h.buildDerived(); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.buildStatistics(); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.buildDistributions(); err != nil {
		h.Close()
		return nil, err
	}
	if h.source == nil {
		if err := h.buildSource(); err != nil {
			h.Close()
			return nil, err
		}
	}

	initLogger.Info("Host created",
		zap.Int("statistics", len(h.statistics)),
		zap.Int("distributions", len(h.distributions)),
		zap.Int("derived", len(h.derived)),
		zap.Int("sources", len(h.routes)),
	)
	return h, nil
}

func (h *Host) buildMetrics() error {
	h.samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: h.cfg.Metrics.Namespace,
			Name:      "samples_total",
			Help:      "Samples routed to at least one component, by source.",
		},
		[]string{"source"},
	)
	h.unrouted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: h.cfg.Metrics.Namespace,
		Name:      "unrouted_samples_total",
		Help:      "Samples whose source no component listens to.",
	})
	if err := h.registry.Register(h.samplesTotal); err != nil {
		return err
	}
	if err := h.registry.Register(h.unrouted); err != nil {
		return err
	}

	if h.cfg.Metrics.Enabled {
		gauges, err := sink.NewGaugeVec(h.registry, h.cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
		h.gauges = gauges
	}
	return nil
}

func (h *Host) buildStorage() error {
	var backend storage.Backend
	switch h.cfg.Storage.Backend {
	case config.StorageBadger:
		db, err := storage.OpenBadger(h.cfg.Storage.Path, h.base)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageCreationFailed, err)
		}
		badgerBackend := storage.NewBadgerBackend(db)
		snapshots := 0
		if err := badgerBackend.IterateKeys(func(uint64) error {
			snapshots++
			return nil
		}); err != nil {
			h.logger.Warn("Failed to count stored snapshots", zap.Error(err))
		}
		h.logger.Info("Opened badger snapshot storage",
			zap.String("path", h.cfg.Storage.Path),
			zap.Int("snapshots", snapshots),
		)
		backend = badgerBackend
	default:
		backend = storage.NewInMemoryBackend()
	}

	store, err := storage.NewBackingStore(backend, h.cfg.Storage.CacheEnabled)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("%w: %w", ErrStorageCreationFailed, err)
	}
	h.store = store
	return nil
}

func (h *Host) buildAllocator() {
	memory := h.cfg.Memory
	if memory.ExternalBytes == 0 && memory.DefaultBytes == 0 {
		h.allocator = window.Unbounded
		return
	}
	h.allocator = window.NewBudgetAllocator(memory.ExternalBytes, memory.DefaultBytes)
}

func (h *Host) buildDerived() error {
	for _, entry := range h.cfg.Derived {
		op, err := entry.CoreOp()
		if err != nil {
			return fmt.Errorf("%w: derived '%s': %w", ErrComponentCreation, entry.ID, err)
		}
		derived, err := core.NewDerived(entry.ID, op, h.loop, h.base)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComponentCreation, err)
		}

		output := entry.ID
		derived.Subscribe(sampleFunc(func(value float32, nowMs uint32) {
			h.route(output, value, nowMs)
		}))
		h.routes[entry.A] = append(h.routes[entry.A], sampleFunc(derived.SetA))
		h.routes[entry.B] = append(h.routes[entry.B], sampleFunc(derived.SetB))
		h.derived = append(h.derived, derived)
	}
	return nil
}

func (h *Host) buildStatistics() error {
	for _, entry := range h.cfg.Statistics {
		cfg, err := entry.CoreConfig()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComponentCreation, err)
		}
		published, err := entry.PublishedStatistics()
		if err != nil {
			return fmt.Errorf("%w: statistics '%s': %w", ErrComponentCreation, entry.ID, err)
		}

		statistics, err := core.NewStatistics(cfg, h.store, h.allocator, h.base)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComponentCreation, err)
		}
		for _, stat := range published {
			if err := statistics.Subscribe(stat, h.sinkFor(entry.ID, stat.String())); err != nil {
				return fmt.Errorf("%w: %w", ErrComponentCreation, err)
			}
		}

		h.routes[entry.Source] = append(h.routes[entry.Source], statistics)
		h.statistics = append(h.statistics, statistics)
	}
	return nil
}

func (h *Host) buildDistributions() error {
	for _, entry := range h.cfg.Distributions {
		cfg, err := entry.CoreConfig()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComponentCreation, err)
		}
		distribution, err := core.NewDistribution(cfg, h.store, h.base)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComponentCreation, err)
		}

		for _, q := range entry.Quantiles {
			if err := distribution.SubscribeQuantile(q, h.sinkFor(entry.ID, fmt.Sprintf("quantile_%g", q))); err != nil {
				return fmt.Errorf("%w: distribution '%s': %w", ErrComponentCreation, entry.ID, err)
			}
		}
		for _, x := range entry.CDFs {
			distribution.SubscribeCDF(x, h.sinkFor(entry.ID, fmt.Sprintf("cdf_%g", x)))
		}
		if entry.TotalWeight {
			distribution.SubscribeTotalWeight(h.sinkFor(entry.ID, "total_weight"))
		}

		h.routes[entry.Source] = append(h.routes[entry.Source], distribution)
		h.distributions = append(h.distributions, distribution)
	}
	return nil
}

func (h *Host) buildSource() error {
	switch h.cfg.Source.Type {
	case config.SourceKafka:
		kafkaSource, err := source.NewKafkaSource(h.cfg.Source.Kafka, h.base)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSourceCreationFailed, err)
		}
		h.source = kafkaSource
	case config.SourceFile:
		file, err := os.Open(h.cfg.Source.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSourceCreationFailed, err)
		}
		h.closer = file
		h.source = source.NewLineSource(file, h.base)
	default:
		h.source = source.NewLineSource(os.Stdin, h.base)
	}
	return nil
}

func (h *Host) sinkFor(component, statistic string) sink.Sink {
	targets := sink.Multi{sink.NewLogged(h.base.Named("publish"), component, statistic)}
	if h.gauges != nil {
		targets = append(targets, h.gauges.For(component, statistic))
	}
	return targets
}

// Setup sets up every component. A component that cannot allocate is left
// failed and logged; the others carry on.
func (h *Host) Setup() error {
	if h.setup {
		return nil
	}
	h.setup = true

	for _, statistics := range h.statistics {
		if err := statistics.Setup(); err != nil {
			if !errors.Is(err, core.ErrComponentFailed) {
				return err
			}
			h.logger.Error("Statistics component failed", zap.String("component", statistics.ID()), zap.Error(err))
		}
	}
	for _, distribution := range h.distributions {
		if err := distribution.Setup(); err != nil {
			if !errors.Is(err, core.ErrComponentFailed) {
				return err
			}
			h.logger.Error("Distribution component failed", zap.String("component", distribution.ID()), zap.Error(err))
			continue
		}
		h.loop.Every("distribution/"+distribution.ID(), distribution.Config().UpdateInterval, distribution.Update)
	}
	return nil
}

// Dispatch routes one sample. It must run on the loop goroutine.
func (h *Host) Dispatch(sample source.Sample) {
	nowMs := sample.TimestampMs
	if !sample.HasTimestamp {
		nowMs = uint32(h.now().UnixMilli())
	}
	if _, ok := h.routes[sample.Source]; !ok {
		h.unrouted.Inc()
		return
	}
	h.samplesTotal.WithLabelValues(sample.Source).Inc()
	h.route(sample.Source, sample.Value, nowMs)
}

func (h *Host) route(name string, value float32, nowMs uint32) {
	for _, target := range h.routes[name] {
		target.Sample(value, nowMs)
	}
}

// Flush updates every distribution and force-publishes the statistics that
// have no publish cadence of their own.
func (h *Host) Flush() {
	for _, statistics := range h.statistics {
		if statistics.Config().SendEvery == 0 {
			statistics.ForcePublish()
		}
	}
	for _, distribution := range h.distributions {
		distribution.Update()
	}
}

// Run sets up the components, then feeds the source's samples through the
// event loop until ctx is done, the source fails, or the source ends. At the
// end of input every queued sample is processed and Flush runs before Run
// returns nil.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Setup(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	drained := make(chan struct{})
	samples := make(chan source.Sample, h.cfg.Loop.QueueSize)

	// not waited for: a line source can stay blocked in Read after ctx is done
	go h.runSource(ctx, samples, errCh)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = h.loop.Run(ctx)
	}()
	go h.forward(ctx, &wg, samples, drained)

	if h.cfg.Metrics.Enabled {
		wg.Add(1)
		go h.serveMetrics(ctx, &wg, errCh)
	}

	select {
	case <-ctx.Done():
		h.logger.Info("Host stopping", zap.Error(ctx.Err()))
		return ctx.Err()
	case err := <-errCh:
		h.logger.Error("Host stopping after failure", zap.Error(err))
		return err
	case <-drained:
		// a failing source also closes its channel; report the failure
		select {
		case err := <-errCh:
			h.logger.Error("Host stopping after failure", zap.Error(err))
			return err
		default:
		}
		h.logger.Info("Source finished, all samples processed")
		return nil
	}
}

func (h *Host) runSource(ctx context.Context, samples chan<- source.Sample, errCh chan<- error) {
	defer close(samples)

	err := h.source.Run(ctx, samples)
	switch {
	case err == nil:
		h.logger.Debug("Source finished normally")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("Source cancelled")
	default:
		errCh <- fmt.Errorf("%w: %w", ErrSourceRunFailed, err)
	}
}

// forward hands samples to the loop in arrival order. Once the source is
// done it queues Flush behind the last sample.
func (h *Host) forward(ctx context.Context, wg *sync.WaitGroup, samples <-chan source.Sample, drained chan<- struct{}) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				h.loop.Post(func() {
					h.Flush()
					close(drained)
				})
				return
			}
			if !h.loop.Post(func() { h.Dispatch(sample) }) {
				return
			}
		}
	}
}

func (h *Host) serveMetrics(ctx context.Context, wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: h.cfg.Metrics.Address, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	h.logger.Info("Serving metrics", zap.String("address", h.cfg.Metrics.Address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%w: %w", ErrMetricsServerFailed, err)
	}
}

// Close releases the snapshot storage and the source input.
func (h *Host) Close() error {
	var errs []error
	if h.closer != nil {
		errs = append(errs, h.closer.Close())
	}
	if h.store != nil {
		errs = append(errs, h.store.Close())
	}
	return errors.Join(errs...)
}

func (h *Host) Loop() *eventloop.Loop {
	return h.loop
}

func (h *Host) Registry() *prometheus.Registry {
	return h.registry
}

func (h *Host) Statistics(id string) *core.Statistics {
	for _, statistics := range h.statistics {
		if statistics.ID() == id {
			return statistics
		}
	}
	return nil
}

func (h *Host) Distribution(id string) *core.Distribution {
	for _, distribution := range h.distributions {
		if distribution.ID() == id {
			return distribution
		}
	}
	return nil
}
