package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorstats/core"
	"sensorstats/digest"
)

const fullConfig = `
log:
  level: warn
storage:
  backend: badger
  path: /var/lib/sensorstats
memory:
  defaultBytes: 65536
source:
  type: kafka
  kafka:
    brokers: ["localhost:9092"]
    topic: readings
derived:
  - id: delta
    op: difference
    a: supply
    b: return
statistics:
  - id: supply-window
    source: supply
    type: chunked_sliding_window
    windowSize: 10
    chunkDuration: 30s
    sendEvery: 2
    averageType: time_weighted
    groupType: population
    timeUnit: min
    publish: [mean, std_dev, trend]
    restore: true
  - id: delta-total
    source: delta
    type: continuous
    windowResetDuration: 24h
distributions:
  - id: supply-quantiles
    source: supply
    compression: 200
    scaleFunction: K2
    updateInterval: 10s
    quantiles: [0.5, 0.99]
    cdfs: [40]
    totalWeight: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorstats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, defaultLogFormat, cfg.Log.Format)
	assert.Equal(t, StorageBadger, cfg.Storage.Backend)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, 65536, cfg.Memory.DefaultBytes)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Source.Kafka.Brokers)
	assert.Equal(t, defaultKafkaGroupID, cfg.Source.Kafka.GroupID)
	assert.Equal(t, defaultLoopQueueSize, cfg.Loop.QueueSize)
	require.Len(t, cfg.Statistics, 2)
	require.Len(t, cfg.Distributions, 1)
	require.Len(t, cfg.Derived, 1)

	statistics, err := cfg.StatisticsConfigs()
	require.NoError(t, err)

	window := statistics[0]
	assert.Equal(t, core.ChunkedSlidingWindow, window.Type)
	assert.Equal(t, 10, window.WindowSize)
	assert.Equal(t, uint32(30000), window.ChunkDurationMs)
	assert.Equal(t, 2, window.SendEvery)
	assert.Equal(t, 1, window.SendFirstAt)
	assert.Equal(t, core.TimeWeightedAverage, window.AverageType)
	assert.Equal(t, core.PopulationGroup, window.GroupType)
	assert.Equal(t, core.Minutes, window.TimeUnit)
	assert.True(t, window.Restore)
	assert.Equal(t, "supply-window", window.RestoreKey)

	published, err := cfg.Statistics[0].PublishedStatistics()
	require.NoError(t, err)
	assert.Equal(t, []core.Statistic{core.StatMean, core.StatStdDev, core.StatTrend}, published)

	total := statistics[1]
	assert.Equal(t, core.Continuous, total.Type)
	assert.Equal(t, 0, total.WindowSize)
	assert.Equal(t, 1, total.ChunkSize)
	assert.Equal(t, uint64(24*time.Hour/time.Millisecond), total.WindowResetDurationMs)
	published, err = cfg.Statistics[1].PublishedStatistics()
	require.NoError(t, err)
	assert.Equal(t, core.AllStatistics(), published)

	distributions, err := cfg.DistributionConfigs()
	require.NoError(t, err)
	assert.Equal(t, 200.0, distributions[0].Compression)
	assert.Equal(t, digest.K2, distributions[0].Scale)
	assert.Equal(t, 10*time.Second, distributions[0].UpdateInterval)
	assert.Equal(t, digest.DefaultBufferSize, distributions[0].BufferSize)
	assert.Equal(t, []float64{0.5, 0.99}, cfg.Distributions[0].Quantiles)

	op, err := cfg.Derived[0].CoreOp()
	require.NoError(t, err)
	assert.Equal(t, core.DerivedDifference, op)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "statistics:\n  - id: plain\n    source: temp\n"))
	require.NoError(t, err)

	assert.Equal(t, defaultLogLevel, cfg.Log.Level)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, SourceStdin, cfg.Source.Type)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, defaultMetricsAddress, cfg.Metrics.Address)

	statistics, err := cfg.StatisticsConfigs()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultStatisticsConfig("plain").WindowSize, statistics[0].WindowSize)
	assert.Equal(t, core.SlidingWindow, statistics[0].Type)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SENSORSTATS_LOG_LEVEL", "debug")
	t.Setenv("SENSORSTATS_METRICS_ENABLED", "true")
	t.Setenv("SENSORSTATS_STORAGE_CACHEENABLED", "false")

	cfg, err := Load(writeConfig(t, "log:\n  level: error\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Storage.CacheEnabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileMissing)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "log: [unterminated\n"))
	assert.ErrorIs(t, err, ErrReadingConfigFile)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{"storage backend", "storage:\n  backend: s3\n", ErrInvalidStorageBackend},
		{"badger path", "storage:\n  backend: badger\n  path: ''\n", ErrEmptyStoragePath},
		{"source type", "source:\n  type: mqtt\n", ErrInvalidSourceType},
		{"file path", "source:\n  type: file\n", ErrEmptySourcePath},
		{"kafka brokers", "source:\n  type: kafka\n", ErrEmptyKafkaBrokers},
		{"kafka topic", "source:\n  type: kafka\n  kafka:\n    brokers: [b]\n", ErrEmptyKafkaTopic},
		{"memory", "memory:\n  defaultBytes: -1\n", ErrInvalidMemoryBudget},
		{"empty id", "statistics:\n  - source: a\n", ErrEmptyComponentID},
		{"duplicate id", "statistics:\n  - id: x\n    source: a\ndistributions:\n  - id: x\n    source: a\n", ErrDuplicateComponentID},
		{"no source", "statistics:\n  - id: x\n", ErrUnknownSource},
		{"derived input", "derived:\n  - {id: d1, op: sum, a: s, b: d2}\n  - {id: d2, op: sum, a: s, b: t}\n", ErrDerivedInput},
		{"derived op", "derived:\n  - {id: d, op: modulo, a: s, b: t}\n", core.ErrInvalidDerivedOp},
		{"statistics type", "statistics:\n  - {id: x, source: a, type: tumbling}\n", core.ErrInvalidStatisticsType},
		{"chunking", "statistics:\n  - {id: x, source: a, type: chunked_continuous}\n", core.ErrInvalidChunking},
		{"send first at", "statistics:\n  - {id: x, source: a, sendEvery: 2, sendFirstAt: 3}\n", core.ErrInvalidSendFirstAt},
		{"publish", "statistics:\n  - {id: x, source: a, publish: [kurtosis]}\n", core.ErrInvalidStatistic},
		{"compression", "distributions:\n  - {id: x, source: a, compression: 1000}\n", core.ErrInvalidCompression},
		{"scale", "distributions:\n  - {id: x, source: a, scaleFunction: K9}\n", digest.ErrInvalidScaleFunction},
		{"quantile", "distributions:\n  - {id: x, source: a, quantiles: [1.5]}\n", core.ErrInvalidQuantile},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.content))
			assert.ErrorIs(t, err, test.err)
		})
	}
}
