package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sensorstats/core"
	"sensorstats/digest"
)

const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultLogFileEnabled = false
	defaultLogDirectory   = "log"
	defaultLogFilename    = "sensorstats.log"
	defaultLogMaxSizeMB   = 100
	defaultLogMaxBackups  = 3
	defaultLogMaxAgeDays  = 7
	defaultLogCompress    = false

	defaultStorageBackend = StorageMemory
	defaultStoragePath    = "data"
	defaultCacheEnabled   = true

	defaultMetricsEnabled   = false
	defaultMetricsAddress   = ":9090"
	defaultMetricsNamespace = "sensorstats"

	defaultSourceType   = SourceStdin
	defaultKafkaGroupID = "sensorstats-default-group"

	defaultLoopQueueSize = 1024

	// Environment variable prefix
	envPrefix = "SENSORSTATS"
)

const (
	StorageMemory = "memory"
	StorageBadger = "badger"

	SourceStdin = "stdin"
	SourceFile  = "file"
	SourceKafka = "kafka"
)

type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Memory        MemoryConfig        `mapstructure:"memory"`
	Source        SourceConfig        `mapstructure:"source"`
	Loop          LoopConfig          `mapstructure:"loop"`
	Statistics    []StatisticsEntry   `mapstructure:"statistics"`
	Distributions []DistributionEntry `mapstructure:"distributions"`
	Derived       []DerivedEntry      `mapstructure:"derived"`
}

type LogConfig struct {
	Level              string `mapstructure:"level"`
	Format             string `mapstructure:"format"`
	FileLoggingEnabled bool   `mapstructure:"fileLoggingEnabled"`
	Directory          string `mapstructure:"directory"`
	Filename           string `mapstructure:"filename"`
	MaxSize            int    `mapstructure:"maxSize"`    // Max size in MB
	MaxBackups         int    `mapstructure:"maxBackups"` // Max backup files
	MaxAge             int    `mapstructure:"maxAge"`     // Max days to retain
	Compress           bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	Path         string `mapstructure:"path"`
	CacheEnabled bool   `mapstructure:"cacheEnabled"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
}

// MemoryConfig bounds the window memory reserved at setup. Both zero means
// unbounded.
type MemoryConfig struct {
	ExternalBytes int `mapstructure:"externalBytes"`
	DefaultBytes  int `mapstructure:"defaultBytes"`
}

type SourceConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"groupID"`
}

type LoopConfig struct {
	QueueSize int `mapstructure:"queueSize"`
}

// StatisticsEntry is one statistics component. Durations are Go duration
// strings and are truncated to milliseconds.
type StatisticsEntry struct {
	ID                  string        `mapstructure:"id"`
	Source              string        `mapstructure:"source"`
	Type                string        `mapstructure:"type"`
	WindowSize          int           `mapstructure:"windowSize"`
	ChunkSize           int           `mapstructure:"chunkSize"`
	ChunkDuration       time.Duration `mapstructure:"chunkDuration"`
	WindowResetDuration time.Duration `mapstructure:"windowResetDuration"`
	SendEvery           *int          `mapstructure:"sendEvery"`
	SendFirstAt         *int          `mapstructure:"sendFirstAt"`
	AverageType         string        `mapstructure:"averageType"`
	GroupType           string        `mapstructure:"groupType"`
	TimeUnit            string        `mapstructure:"timeUnit"`
	Publish             []string      `mapstructure:"publish"` // statistic names; empty publishes all
	Restore             bool          `mapstructure:"restore"`
	RestoreKey          string        `mapstructure:"restoreKey"`
}

type DistributionEntry struct {
	ID             string        `mapstructure:"id"`
	Source         string        `mapstructure:"source"`
	Compression    float64       `mapstructure:"compression"`
	ScaleFunction  string        `mapstructure:"scaleFunction"`
	BufferSize     int           `mapstructure:"bufferSize"`
	SnapshotSize   int           `mapstructure:"snapshotSize"`
	UpdateInterval time.Duration `mapstructure:"updateInterval"`
	Quantiles      []float64     `mapstructure:"quantiles"`
	CDFs           []float64     `mapstructure:"cdfs"`
	TotalWeight    bool          `mapstructure:"totalWeight"`
	Restore        bool          `mapstructure:"restore"`
	RestoreKey     string        `mapstructure:"restoreKey"`
}

// DerivedEntry combines the latest readings of sources A and B; its output
// is a new source named by ID.
type DerivedEntry struct {
	ID string `mapstructure:"id"`
	Op string `mapstructure:"op"`
	A  string `mapstructure:"a"`
	B  string `mapstructure:"b"`
}

// Load initializes viper, reads config, applies defaults, unmarshals, and validates.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	configureViper(v, configPath)

	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshallingConfig, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func configureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("log.fileLoggingEnabled", defaultLogFileEnabled)
	v.SetDefault("log.directory", defaultLogDirectory)
	v.SetDefault("log.filename", defaultLogFilename)
	v.SetDefault("log.maxSize", defaultLogMaxSizeMB)
	v.SetDefault("log.maxBackups", defaultLogMaxBackups)
	v.SetDefault("log.maxAge", defaultLogMaxAgeDays)
	v.SetDefault("log.compress", defaultLogCompress)
	v.SetDefault("storage.backend", defaultStorageBackend)
	v.SetDefault("storage.path", defaultStoragePath)
	v.SetDefault("storage.cacheEnabled", defaultCacheEnabled)
	v.SetDefault("metrics.enabled", defaultMetricsEnabled)
	v.SetDefault("metrics.address", defaultMetricsAddress)
	v.SetDefault("metrics.namespace", defaultMetricsNamespace)
	v.SetDefault("memory.externalBytes", 0)
	v.SetDefault("memory.defaultBytes", 0)
	v.SetDefault("source.type", defaultSourceType)
	v.SetDefault("source.path", "")
	v.SetDefault("source.kafka.groupID", defaultKafkaGroupID)
	v.SetDefault("loop.queueSize", defaultLoopQueueSize)
}

func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) || errors.Is(err, fs.ErrNotExist) {
			return ErrConfigFileMissing
		}
		return fmt.Errorf("%w: %w", ErrReadingConfigFile, err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageBadger:
		if cfg.Storage.Path == "" {
			return ErrEmptyStoragePath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorageBackend, cfg.Storage.Backend)
	}

	switch cfg.Source.Type {
	case SourceStdin:
	case SourceFile:
		if cfg.Source.Path == "" {
			return ErrEmptySourcePath
		}
	case SourceKafka:
		if len(cfg.Source.Kafka.Brokers) == 0 {
			return ErrEmptyKafkaBrokers
		}
		if cfg.Source.Kafka.Topic == "" {
			return ErrEmptyKafkaTopic
		}
		if cfg.Source.Kafka.GroupID == "" {
			return ErrEmptyKafkaGroupID
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceType, cfg.Source.Type)
	}

	if cfg.Memory.ExternalBytes < 0 || cfg.Memory.DefaultBytes < 0 {
		return ErrInvalidMemoryBudget
	}

	ids := make(map[string]struct{})
	claim := func(id string) error {
		if id == "" {
			return ErrEmptyComponentID
		}
		if _, ok := ids[id]; ok {
			return fmt.Errorf("%w: '%s'", ErrDuplicateComponentID, id)
		}
		ids[id] = struct{}{}
		return nil
	}

	derivedIDs := make(map[string]struct{}, len(cfg.Derived))
	for _, entry := range cfg.Derived {
		if err := claim(entry.ID); err != nil {
			return err
		}
		derivedIDs[entry.ID] = struct{}{}
	}
	for _, entry := range cfg.Derived {
		if entry.A == "" || entry.B == "" {
			return fmt.Errorf("derived '%s': %w", entry.ID, ErrUnknownSource)
		}
		for _, input := range []string{entry.A, entry.B} {
			if _, ok := derivedIDs[input]; ok {
				return fmt.Errorf("derived '%s': %w: '%s'", entry.ID, ErrDerivedInput, input)
			}
		}
		if _, err := core.ParseDerivedOp(entry.Op); err != nil {
			return fmt.Errorf("derived '%s': %w", entry.ID, err)
		}
	}

	for _, entry := range cfg.Statistics {
		if err := claim(entry.ID); err != nil {
			return err
		}
		if entry.Source == "" {
			return fmt.Errorf("statistics '%s': %w", entry.ID, ErrUnknownSource)
		}
		if _, err := entry.CoreConfig(); err != nil {
			return err
		}
		if _, err := entry.PublishedStatistics(); err != nil {
			return fmt.Errorf("statistics '%s': %w", entry.ID, err)
		}
	}

	for _, entry := range cfg.Distributions {
		if err := claim(entry.ID); err != nil {
			return err
		}
		if entry.Source == "" {
			return fmt.Errorf("distribution '%s': %w", entry.ID, ErrUnknownSource)
		}
		if _, err := entry.CoreConfig(); err != nil {
			return err
		}
		for _, q := range entry.Quantiles {
			if q < 0 || q > 1 {
				return fmt.Errorf("distribution '%s': %w: %v", entry.ID, core.ErrInvalidQuantile, q)
			}
		}
	}
	return nil
}

// CoreConfig converts the entry and validates it.
func (entry StatisticsEntry) CoreConfig() (core.StatisticsConfig, error) {
	cfg := core.DefaultStatisticsConfig(entry.ID)
	var err error

	if entry.Type != "" {
		if cfg.Type, err = core.ParseStatisticsType(entry.Type); err != nil {
			return cfg, fmt.Errorf("statistics '%s': %w", entry.ID, err)
		}
	}
	if cfg.AverageType, err = core.ParseAverageType(entry.AverageType); err != nil {
		return cfg, fmt.Errorf("statistics '%s': %w", entry.ID, err)
	}
	if cfg.GroupType, err = core.ParseGroupType(entry.GroupType); err != nil {
		return cfg, fmt.Errorf("statistics '%s': %w", entry.ID, err)
	}
	if cfg.TimeUnit, err = core.ParseTimeUnit(entry.TimeUnit); err != nil {
		return cfg, fmt.Errorf("statistics '%s': %w", entry.ID, err)
	}

	if entry.WindowSize != 0 || !cfg.Type.Sliding() {
		cfg.WindowSize = entry.WindowSize
	}
	cfg.ChunkSize = entry.ChunkSize
	cfg.ChunkDurationMs = uint32(entry.ChunkDuration / time.Millisecond)
	cfg.WindowResetDurationMs = uint64(entry.WindowResetDuration / time.Millisecond)
	if entry.SendEvery != nil {
		cfg.SendEvery = *entry.SendEvery
	}
	if entry.SendFirstAt != nil {
		cfg.SendFirstAt = *entry.SendFirstAt
	} else if cfg.SendFirstAt > cfg.SendEvery {
		cfg.SendFirstAt = cfg.SendEvery
	}
	cfg.Restore = entry.Restore
	cfg.RestoreKey = entry.RestoreKey

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("statistics '%s': %w", entry.ID, err)
	}
	return cfg, nil
}

// PublishedStatistics parses the publish list.
func (entry StatisticsEntry) PublishedStatistics() ([]core.Statistic, error) {
	if len(entry.Publish) == 0 {
		return core.AllStatistics(), nil
	}
	statistics := make([]core.Statistic, 0, len(entry.Publish))
	for _, name := range entry.Publish {
		stat, err := core.ParseStatistic(name)
		if err != nil {
			return nil, err
		}
		statistics = append(statistics, stat)
	}
	return statistics, nil
}

// CoreConfig converts the entry and validates it. Unset numbers keep the
// component defaults.
func (entry DistributionEntry) CoreConfig() (core.DistributionConfig, error) {
	cfg := core.DefaultDistributionConfig(entry.ID)
	if entry.Compression != 0 {
		cfg.Compression = entry.Compression
	}
	if entry.ScaleFunction != "" {
		scale, err := digest.ParseScale(entry.ScaleFunction)
		if err != nil {
			return cfg, fmt.Errorf("distribution '%s': %w", entry.ID, err)
		}
		cfg.Scale = scale
	}
	if entry.BufferSize != 0 {
		cfg.BufferSize = entry.BufferSize
	}
	if entry.SnapshotSize != 0 {
		cfg.SnapshotSize = entry.SnapshotSize
	}
	if entry.UpdateInterval != 0 {
		cfg.UpdateInterval = entry.UpdateInterval
	}
	cfg.Restore = entry.Restore
	cfg.RestoreKey = entry.RestoreKey

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("distribution '%s': %w", entry.ID, err)
	}
	return cfg, nil
}

func (entry DerivedEntry) CoreOp() (core.DerivedOp, error) {
	return core.ParseDerivedOp(entry.Op)
}

func (cfg *Config) StatisticsConfigs() ([]core.StatisticsConfig, error) {
	configs := make([]core.StatisticsConfig, 0, len(cfg.Statistics))
	for _, entry := range cfg.Statistics {
		statisticsConfig, err := entry.CoreConfig()
		if err != nil {
			return nil, err
		}
		configs = append(configs, statisticsConfig)
	}
	return configs, nil
}

func (cfg *Config) DistributionConfigs() ([]core.DistributionConfig, error) {
	configs := make([]core.DistributionConfig, 0, len(cfg.Distributions))
	for _, entry := range cfg.Distributions {
		distributionConfig, err := entry.CoreConfig()
		if err != nil {
			return nil, err
		}
		configs = append(configs, distributionConfig)
	}
	return configs, nil
}
