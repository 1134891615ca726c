package domain

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Model      ModelConfig      `json:"model"`
	Pipeline   PipelineConfig   `json:"pipeline"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// MaxUploadBytes caps the size of an ingested file.
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}

// ModelConfig holds anomaly model settings.
type ModelConfig struct {
	// ArtifactPath is the single well-known location for the trained model.
	ArtifactPath string `json:"artifactPath"`

	// Trees is the ensemble size.
	Trees int `json:"trees"`

	// SampleSize is the per-tree subsample size.
	SampleSize int `json:"sampleSize"`

	// Contamination is the expected outlier fraction.
	Contamination float64 `json:"contamination"`

	// Seed fixes the random source for reproducible fits.
	Seed int64 `json:"seed"`
}

// PipelineConfig holds ingestion pipeline settings.
type PipelineConfig struct {
	// Workers is the size of the bounded worker pool.
	Workers int `json:"workers"`

	// QueueSize is the depth of the pending-job queue.
	QueueSize int `json:"queueSize"`

	// ProgressInterval is how many records pass between task progress writes.
	ProgressInterval int `json:"progressInterval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    60,
			WriteTimeout:   30,
			MaxUploadBytes: 256 << 20,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			ArtifactPath:  "./data/models/isolation_forest.json",
			Trees:         100,
			SampleSize:    256,
			Contamination: 0.1,
			Seed:          42,
		},
		Pipeline: PipelineConfig{
			Workers:          4,
			QueueSize:        64,
			ProgressInterval: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
