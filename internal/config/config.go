package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"genrouter/internal/artifact"
	"genrouter/internal/core"
	"genrouter/internal/provider"
	"genrouter/internal/util"
)

// ServerConfig server configuration
type ServerConfig struct {
	Port               string
	GinMode            string
	ClientAPIKeys      []string
	AdminAPIKeys       []string
	RedisURL           string
	ModelsFile         string
	SeedModels         bool
	StatsFile          string
	RoutingConfigPath  string
	ModelCacheTTL      time.Duration
	ModelCacheCapacity int
	ProviderTimeout    time.Duration
	StreamIdleTimeout  time.Duration
	StreamMaxDuration  time.Duration
	HealthProbeTimeout time.Duration
	IPRateLimit        int
	CORSAllowOrigin    string
	MaxBodySize        int64
	S3                 artifact.S3Config
	ArtifactPrefix     string
	HTTPClientSettings provider.HTTPClientSettings
	Routing            RoutingConfig
}

// UploadsEnabled reports whether generated images go to object storage.
func (c ServerConfig) UploadsEnabled() bool {
	return c.S3.Endpoint != ""
}

type envReader struct {
	errs []string
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, err := util.GetEnvDuration(key, def)
	if err != nil {
		r.errs = append(r.errs, err.Error())
	}
	return v
}

func (r *envReader) int(key string, def int) int {
	v, err := util.GetEnvInt(key, def)
	if err != nil {
		r.errs = append(r.errs, err.Error())
	}
	return v
}

func (r *envReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(r.errs, "; "))
}

// LoadServerConfigFromEnv loads server config from environment variables
// and the routing file they point at.
func LoadServerConfigFromEnv(logger core.Logger) (ServerConfig, error) {
	clientAPIKeys := util.ParseEnvList(os.Getenv("CLIENT_API_KEYS"))
	adminAPIKeys := util.ParseEnvList(os.Getenv("ADMIN_API_KEYS"))
	if len(clientAPIKeys)+len(adminAPIKeys) == 0 {
		logger.Warn("CLIENT_API_KEYS and ADMIN_API_KEYS are empty")
	} else {
		logger.Info("Loaded %d client and %d admin API keys", len(clientAPIKeys), len(adminAPIKeys))
	}

	env := &envReader{}
	config := ServerConfig{
		Port:               util.GetEnvWithDefault("PORT", core.DefaultPort),
		GinMode:            util.GetEnvWithDefault("GIN_MODE", core.DefaultGinMode),
		ClientAPIKeys:      clientAPIKeys,
		AdminAPIKeys:       adminAPIKeys,
		RedisURL:           os.Getenv("REDIS_URL"),
		ModelsFile:         util.GetEnvWithDefault("MODELS_FILE", core.DefaultModelsFile),
		SeedModels:         util.GetEnvBool("SEED_MODELS", false),
		StatsFile:          util.GetEnvWithDefault("STATS_FILE", core.StatsFilePath),
		RoutingConfigPath:  util.GetEnvWithDefault("ROUTING_CONFIG", core.DefaultRoutingConfig),
		ModelCacheTTL:      env.duration("MODEL_CACHE_TTL", core.ModelCacheTTL),
		ModelCacheCapacity: env.int("MODEL_CACHE_CAPACITY", core.CacheDefaultCapacity),
		ProviderTimeout:    env.duration("PROVIDER_TIMEOUT", core.DefaultProviderTimeout),
		StreamIdleTimeout:  env.duration("STREAM_IDLE_TIMEOUT", core.DefaultStreamIdleTimeout),
		StreamMaxDuration:  env.duration("STREAM_MAX_DURATION", core.DefaultStreamMaxDuration),
		HealthProbeTimeout: env.duration("HEALTH_PROBE_TIMEOUT", core.DefaultHealthProbeTimeout),
		IPRateLimit:        env.int("RATE_LIMIT", core.DefaultIPRateLimit),
		CORSAllowOrigin:    util.GetEnvWithDefault("CORS_ALLOW_ORIGIN", "*"),
		MaxBodySize:        int64(env.int("MAX_BODY_SIZE", core.DefaultMaxBodySize)),
		S3: artifact.S3Config{
			Endpoint:      os.Getenv("ARTIFACT_S3_ENDPOINT"),
			Region:        os.Getenv("ARTIFACT_S3_REGION"),
			AccessKey:     os.Getenv("ARTIFACT_S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("ARTIFACT_S3_SECRET_KEY"),
			Bucket:        util.GetEnvWithDefault("ARTIFACT_S3_BUCKET", "genrouter-artifacts"),
			UseSSL:        util.GetEnvBool("ARTIFACT_S3_USE_SSL", false),
			PublicBaseURL: os.Getenv("ARTIFACT_PUBLIC_BASE_URL"),
			URLExpiry:     env.duration("ARTIFACT_URL_EXPIRY", 24*time.Hour),
		},
		ArtifactPrefix:     util.GetEnvWithDefault("ARTIFACT_PREFIX", "images"),
		HTTPClientSettings: provider.DefaultHTTPClientSettings(),
	}
	if err := env.err(); err != nil {
		return config, err
	}

	routing, found, err := LoadRoutingConfig(config.RoutingConfigPath)
	if err != nil {
		return config, err
	}
	if found {
		logger.Info("Loaded %d adapters from %s", len(routing.Adapters), config.RoutingConfigPath)
	} else {
		logger.Info("Routing file %s not found, using default local adapters", config.RoutingConfigPath)
	}
	config.Routing = routing

	return config, nil
}
