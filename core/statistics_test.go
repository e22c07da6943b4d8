package core

import (
	"math"
	"sensorstats/monoid"
	"sensorstats/sink"
	"sensorstats/storage"
	"sensorstats/utils"
	"sensorstats/window"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStatistics(t *testing.T, cfg StatisticsConfig, store storage.SnapshotStore, statistics ...Statistic) (*Statistics, map[Statistic]*sink.Recorder) {
	t.Helper()
	s, err := NewStatistics(cfg, store, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	recorders := make(map[Statistic]*sink.Recorder)
	for _, stat := range statistics {
		recorders[stat] = sink.NewRecorder()
		require.NoError(t, s.Subscribe(stat, recorders[stat]))
	}
	require.NoError(t, s.Setup())
	return s, recorders
}

func last(t *testing.T, recorder *sink.Recorder) float64 {
	t.Helper()
	value, ok := recorder.Last()
	require.True(t, ok, "nothing published")
	return value
}

func TestStatistics_SlidingWindow(t *testing.T) {
	cfg := DefaultStatisticsConfig("sliding")
	cfg.WindowSize = 4

	s, recorders := newTestStatistics(t, cfg, nil,
		StatCount, StatMean, StatMin, StatMax, StatVariance)

	for i, value := range []float32{1, 2, 3, 4, 5} {
		s.Sample(value, uint32(i))
	}

	utils.AssertEqual(t, recorders[StatCount].Len(), 5)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 4.0)
	utils.AssertClose(t, last(t, recorders[StatMean]), 3.5, 1e-12)
	utils.AssertEqual(t, last(t, recorders[StatMin]), 2.0)
	utils.AssertEqual(t, last(t, recorders[StatMax]), 5.0)
	utils.AssertClose(t, last(t, recorders[StatVariance]), 1.6666666666666667, 1e-12)
}

func TestStatistics_ChunkedContinuous(t *testing.T) {
	cfg := DefaultStatisticsConfig("chunked")
	cfg.Type = ChunkedContinuous
	cfg.WindowSize = 0
	cfg.ChunkSize = 3

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatMean, StatStdDev)

	for i, value := range []float32{10, 10, 10, 20, 20, 20, 30, 30, 30} {
		s.Sample(value, uint32(i*10))
	}

	utils.AssertEqual(t, recorders[StatCount].Len(), 3)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 9.0)
	utils.AssertClose(t, last(t, recorders[StatMean]), 20, 1e-12)
	utils.AssertClose(t, last(t, recorders[StatStdDev]), math.Sqrt(75), 1e-12)
}

func TestStatistics_Trend(t *testing.T) {
	perMs := DefaultStatisticsConfig("trend-ms")
	perMs.Type = Continuous
	perMs.WindowSize = 0
	perMs.TimeUnit = Milliseconds

	perSecond := perMs
	perSecond.ID = "trend-s"
	perSecond.TimeUnit = Seconds

	msStatistics, msRecorders := newTestStatistics(t, perMs, nil, StatTrend, StatCoefficientOfDetermination)
	sStatistics, sRecorders := newTestStatistics(t, perSecond, nil, StatTrend, StatCovariance)

	for i := 0; i < 5; i++ {
		msStatistics.Sample(float32(i), uint32(i*100))
		sStatistics.Sample(float32(i), uint32(i*100))
	}

	utils.AssertClose(t, last(t, msRecorders[StatTrend]), 0.01, 1e-12)
	utils.AssertClose(t, last(t, msRecorders[StatCoefficientOfDetermination]), 1, 1e-12)
	utils.AssertClose(t, last(t, sRecorders[StatTrend]), 10, 1e-9)

	// sample covariance of (t, v) is 250 value*ms
	utils.AssertClose(t, last(t, sRecorders[StatCovariance]), 0.25, 1e-12)
}

func TestStatistics_TimeWeightedNaN(t *testing.T) {
	cfg := DefaultStatisticsConfig("weighted")
	cfg.Type = Continuous
	cfg.WindowSize = 0
	cfg.AverageType = TimeWeightedAverage

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatDuration, StatMean)

	s.Sample(1.0, 0)
	s.Sample(float32(math.NaN()), 100)
	s.Sample(3.0, 200)

	utils.AssertEqual(t, last(t, recorders[StatCount]), 2.0)
	utils.AssertEqual(t, last(t, recorders[StatDuration]), 200.0)
	utils.AssertEqual(t, last(t, recorders[StatMean]), 1.0)

	s.Sample(3.0, 300)
	utils.AssertClose(t, last(t, recorders[StatMean]), 5.0/3.0, 1e-12)
}

func TestStatistics_TimeWeightedMean(t *testing.T) {
	cfg := DefaultStatisticsConfig("weighted")
	cfg.WindowSize = 10
	cfg.AverageType = TimeWeightedAverage
	cfg.GroupType = PopulationGroup

	s, recorders := newTestStatistics(t, cfg, nil, StatMean, StatVariance)

	// 10 held for 300 ms, then 20 held for 100 ms
	s.Sample(10, 1000)
	s.Sample(20, 1300)
	s.Sample(20, 1400)

	utils.AssertClose(t, last(t, recorders[StatMean]), 12.5, 1e-12)
	utils.AssertClose(t, last(t, recorders[StatVariance]), 18.75, 1e-12)
}

func TestStatistics_SimpleNaNIsNeutral(t *testing.T) {
	cfg := DefaultStatisticsConfig("gaps")
	cfg.WindowSize = 3

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatMean)

	s.Sample(2, 0)
	s.Sample(float32(math.NaN()), 10)
	s.Sample(4, 20)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 2.0)
	utils.AssertEqual(t, last(t, recorders[StatMean]), 3.0)

	// the NaN slot is the oldest of the three and is evicted first
	s.Sample(6, 30)
	s.Sample(8, 40)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 3.0)
	utils.AssertEqual(t, last(t, recorders[StatMean]), 6.0)
}

func TestStatistics_EmptyPublication(t *testing.T) {
	cfg := DefaultStatisticsConfig("empty")
	cfg.Type = ChunkedSlidingWindow
	cfg.WindowSize = 2
	cfg.ChunkSize = 3
	cfg.SendFirstAt = 0

	all := AllStatistics()
	s, recorders := newTestStatistics(t, cfg, nil, all...)

	s.Sample(5, 0)

	for _, stat := range all {
		value := last(t, recorders[stat])
		switch stat {
		case StatCount, StatDuration:
			utils.AssertEqual(t, value, 0.0)
		default:
			assert.True(t, math.IsNaN(value), "%s = %v", stat, value)
		}
	}
}

func TestStatistics_SingleSample(t *testing.T) {
	sample := DefaultStatisticsConfig("single-sample")
	population := sample
	population.ID = "single-population"
	population.GroupType = PopulationGroup

	s, sampleRecorders := newTestStatistics(t, sample, nil, StatVariance, StatTrend, StatMin)
	p, populationRecorders := newTestStatistics(t, population, nil, StatVariance, StatStdDev)

	s.Sample(7, 100)
	p.Sample(7, 100)

	utils.AssertNaN(t, last(t, sampleRecorders[StatVariance]))
	utils.AssertNaN(t, last(t, sampleRecorders[StatTrend]))
	utils.AssertEqual(t, last(t, sampleRecorders[StatMin]), 7.0)
	utils.AssertEqual(t, last(t, populationRecorders[StatVariance]), 0.0)
	utils.AssertEqual(t, last(t, populationRecorders[StatStdDev]), 0.0)
}

func TestStatistics_SendCadence(t *testing.T) {
	cfg := DefaultStatisticsConfig("cadence")
	cfg.WindowSize = 100
	cfg.SendEvery = 3
	cfg.SendFirstAt = 1

	s, recorders := newTestStatistics(t, cfg, nil, StatCount)

	for i := 0; i < 7; i++ {
		s.Sample(float32(i), uint32(i))
	}

	assert.Equal(t, []float64{1, 4, 7}, recorders[StatCount].Values())
}

func TestStatistics_ForcePublishWithoutCadence(t *testing.T) {
	cfg := DefaultStatisticsConfig("manual")
	cfg.WindowSize = 10
	cfg.SendEvery = 0

	s, recorders := newTestStatistics(t, cfg, nil, StatMean)

	s.Sample(1, 0)
	s.Sample(3, 10)
	utils.AssertEqual(t, recorders[StatMean].Len(), 0)

	s.ForcePublish()
	utils.AssertEqual(t, last(t, recorders[StatMean]), 2.0)
	utils.AssertEqual(t, s.Published().Count, uint64(2))
}

func TestStatistics_ChunkDuration(t *testing.T) {
	cfg := DefaultStatisticsConfig("duration-chunks")
	cfg.Type = ChunkedSlidingWindow
	cfg.WindowSize = 3
	cfg.ChunkDurationMs = 100

	s, recorders := newTestStatistics(t, cfg, nil, StatCount)

	for i := 0; i < 4; i++ {
		s.Sample(1, uint32(i*30))
	}
	utils.AssertEqual(t, recorders[StatCount].Len(), 0)

	s.Sample(1, 120)
	assert.Equal(t, []float64{5}, recorders[StatCount].Values())
	utils.AssertEqual(t, s.Current().Count, uint64(5))
}

func TestStatistics_ContinuousResetByCount(t *testing.T) {
	cfg := DefaultStatisticsConfig("reset-count")
	cfg.Type = Continuous
	cfg.WindowSize = 3

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatMean)

	for i := 1; i <= 4; i++ {
		s.Sample(float32(i), uint32(i))
	}

	assert.Equal(t, []float64{1, 2, 3, 1}, recorders[StatCount].Values())
	utils.AssertEqual(t, last(t, recorders[StatMean]), 4.0)
}

func TestStatistics_ContinuousResetByDuration(t *testing.T) {
	cfg := DefaultStatisticsConfig("reset-duration")
	cfg.Type = ChunkedContinuous
	cfg.WindowSize = 0
	cfg.ChunkSize = 1
	cfg.WindowResetDurationMs = 250

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatMean)

	for i := 0; i <= 4; i++ {
		s.Sample(float32(i), uint32(i*100))
	}

	assert.Equal(t, []float64{1, 2, 3, 4, 1}, recorders[StatCount].Values())
	utils.AssertEqual(t, last(t, recorders[StatMean]), 4.0)
}

func TestStatistics_DurationResetClearsChunk(t *testing.T) {
	cfg := DefaultStatisticsConfig("reset-duration-chunked")
	cfg.Type = ChunkedContinuous
	cfg.WindowSize = 0
	cfg.ChunkSize = 2
	cfg.WindowResetDurationMs = 150

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatMean)

	s.Sample(1, 0)
	s.Sample(2, 100)
	s.Sample(3, 200)
	s.Sample(4, 300)
	assert.Equal(t, []float64{2, 4}, recorders[StatCount].Values())

	// the window spans 300 ms, so the next sample starts a fresh one
	s.Sample(10, 400)
	utils.AssertTrue(t, s.Current().IsEmpty())
	s.Sample(20, 500)
	assert.Equal(t, []float64{2, 4, 2}, recorders[StatCount].Values())
	utils.AssertEqual(t, last(t, recorders[StatMean]), 15.0)
}

func TestStatistics_LongContinuous(t *testing.T) {
	cfg := DefaultStatisticsConfig("long")
	cfg.Type = ChunkedContinuous
	cfg.WindowSize = 0
	cfg.ChunkSize = 1
	cfg.SendEvery = 0

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatMean, StatVariance)

	n := 10000
	for i := 0; i < n; i++ {
		s.Sample(float32(i%100), uint32(i))
	}
	s.ForcePublish()

	utils.AssertEqual(t, last(t, recorders[StatCount]), float64(n))
	utils.AssertClose(t, last(t, recorders[StatMean]), 49.5, 1e-9)
	utils.AssertClose(t, last(t, recorders[StatVariance]), 833.25*float64(n)/float64(n-1), 1e-9)
}

func TestStatistics_Reset(t *testing.T) {
	cfg := DefaultStatisticsConfig("reset")
	cfg.WindowSize = 5
	cfg.SendEvery = 2
	cfg.SendFirstAt = 2

	s, recorders := newTestStatistics(t, cfg, nil, StatCount)

	s.Sample(1, 0)
	s.Sample(2, 1)
	s.Sample(3, 2)
	assert.Equal(t, []float64{2}, recorders[StatCount].Values())

	s.Reset()
	utils.AssertTrue(t, s.Current().IsEmpty())

	s.Sample(4, 3)
	assert.Equal(t, []float64{2}, recorders[StatCount].Values())
	s.Sample(5, 4)
	assert.Equal(t, []float64{2, 2}, recorders[StatCount].Values())
}

func TestStatistics_ResetClearsTimeBase(t *testing.T) {
	cfg := DefaultStatisticsConfig("reset-weighted")
	cfg.Type = Continuous
	cfg.WindowSize = 0
	cfg.AverageType = TimeWeightedAverage

	s, recorders := newTestStatistics(t, cfg, nil, StatCount, StatDuration, StatMean)

	s.Sample(100, 0)
	s.Sample(100, 100)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 1.0)
	utils.AssertEqual(t, last(t, recorders[StatDuration]), 100.0)

	s.Reset()

	// nothing held before the reset may leak into the new window
	s.Sample(5, 10000)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 0.0)
	utils.AssertEqual(t, last(t, recorders[StatDuration]), 0.0)
	utils.AssertNaN(t, last(t, recorders[StatMean]))

	s.Sample(7, 10100)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 1.0)
	utils.AssertEqual(t, last(t, recorders[StatDuration]), 100.0)
	utils.AssertEqual(t, last(t, recorders[StatMean]), 5.0)
}

func TestStatistics_SubscribeAfterSetup(t *testing.T) {
	s, _ := newTestStatistics(t, DefaultStatisticsConfig("late"), nil)

	assert.ErrorIs(t, s.Subscribe(StatMean, sink.NewRecorder()), ErrAlreadySetup)
	assert.ErrorIs(t, s.Subscribe(Statistic(99), sink.NewRecorder()), ErrInvalidStatistic)
	assert.ErrorIs(t, s.Setup(), ErrAlreadySetup)
}

func TestStatistics_AllocationFailure(t *testing.T) {
	cfg := DefaultStatisticsConfig("starved")
	s, err := NewStatistics(cfg, nil, window.NewBudgetAllocator(0, 16), zaptest.NewLogger(t))
	require.NoError(t, err)

	recorder := sink.NewRecorder()
	require.NoError(t, s.Subscribe(StatMean, recorder))

	err = s.Setup()
	assert.ErrorIs(t, err, ErrComponentFailed)
	assert.ErrorIs(t, err, window.ErrAllocationFailed)
	assert.True(t, s.Failed())

	s.Sample(1, 0)
	s.ForcePublish()
	utils.AssertEqual(t, recorder.Len(), 0)
	utils.AssertTrue(t, s.Current().IsEmpty())
}

func TestStatistics_RestoreRequiresStore(t *testing.T) {
	cfg := DefaultStatisticsConfig("no-store")
	cfg.Restore = true

	_, err := NewStatistics(cfg, nil, nil, nil)
	assert.ErrorIs(t, err, ErrRestoreUnavailable)
}

func TestStatistics_SnapshotRestore(t *testing.T) {
	store, err := storage.NewBackingStore(storage.NewInMemoryBackend(), true)
	require.NoError(t, err)

	cfg := DefaultStatisticsConfig("persisted")
	cfg.Type = ChunkedContinuous
	cfg.WindowSize = 0
	cfg.ChunkSize = 2
	cfg.Restore = true

	first, _ := newTestStatistics(t, cfg, store, StatMean, StatCount)
	for i := 0; i < 6; i++ {
		first.Sample(float32(i), uint32(1000+i*10))
	}
	utils.AssertEqual(t, first.Published().Count, uint64(6))

	second, recorders := newTestStatistics(t, cfg, store, StatMean, StatCount)
	restored := second.Current()
	utils.AssertEqual(t, restored.Count, uint64(6))
	utils.AssertClose(t, restored.Mean, 2.5, 1e-12)

	second.Sample(10, 2000)
	second.Sample(10, 2010)
	utils.AssertEqual(t, last(t, recorders[StatCount]), 8.0)
	utils.AssertClose(t, last(t, recorders[StatMean]), 35.0/8.0, 1e-12)
}

func TestStatistics_CorruptSnapshotIgnored(t *testing.T) {
	store, err := storage.NewBackingStore(storage.NewInMemoryBackend(), false)
	require.NoError(t, err)

	cfg := DefaultStatisticsConfig("corrupt")
	cfg.Restore = true
	require.NoError(t, store.Save(storage.HashKey(statisticsKind, cfg.ID), []byte{1, 2, 3}))

	core, logs := observer.New(zapcore.WarnLevel)
	s, err := NewStatistics(cfg, store, nil, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, s.Setup())

	utils.AssertTrue(t, s.Current().IsEmpty())
	assert.ErrorIs(t, corruptSnapshotError(t, logs), storage.ErrCorruptSnapshot)
}

// corruptSnapshotError returns the error attached to the single corrupt
// snapshot warning.
func corruptSnapshotError(t *testing.T, logs *observer.ObservedLogs) error {
	t.Helper()
	entries := logs.FilterMessage("Ignoring corrupt snapshot").All()
	require.Len(t, entries, 1)
	for _, field := range entries[0].Context {
		if field.Key == "error" {
			err, ok := field.Interface.(error)
			require.True(t, ok)
			return err
		}
	}
	require.FailNow(t, "warning has no error field")
	return nil
}

func TestStatistics_StoresOnlyNeededFields(t *testing.T) {
	cfg := DefaultStatisticsConfig("lean")
	cfg.WindowSize = 3

	s, recorders := newTestStatistics(t, cfg, nil, StatMean)
	utils.AssertEqual(t, s.fields, monoid.FieldCount|monoid.FieldMean)

	for i, value := range []float32{1, 2, 3, 4} {
		s.Sample(value, uint32(i))
	}
	utils.AssertEqual(t, last(t, recorders[StatMean]), 3.0)
	utils.AssertNaN(t, s.Current().M2)
}

func TestEnabledFields(t *testing.T) {
	assert.Equal(t, monoid.FieldCount, EnabledFields(nil, SimpleAverage))
	assert.Equal(t, monoid.FieldCount|monoid.FieldM2|monoid.FieldMean,
		EnabledFields([]Statistic{StatStdDev}, SimpleAverage))
	assert.Equal(t,
		monoid.FieldCount|monoid.FieldC2|monoid.FieldM2|monoid.FieldMean|
			monoid.FieldTimestampM2|monoid.FieldTimestampMean|monoid.FieldTimestampReference,
		EnabledFields([]Statistic{StatTrend}, SimpleAverage))
	assert.Equal(t,
		monoid.FieldCount|monoid.FieldMin|monoid.FieldDuration|monoid.FieldDurationSquared,
		EnabledFields([]Statistic{StatMin}, TimeWeightedAverage))
}
