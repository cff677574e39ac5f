package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/provider"
	"genrouter/internal/ratelimit"
	"genrouter/internal/util"

	"gopkg.in/yaml.v3"
)

// Adapter kinds understood by the routing file.
const (
	AdapterOllama        = "ollama"
	AdapterAutomatic1111 = "automatic1111"
	AdapterComfyUI       = "comfyui"
)

// BreakerSettings configures the circuit breaker of one adapter.
type BreakerSettings struct {
	Enabled     *bool         `yaml:"enabled"`
	Failures    uint32        `yaml:"failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// BoundsSettings narrows image parameters for one adapter.
type BoundsSettings struct {
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
	MaxImages int `yaml:"max_images"`
}

// AdapterConfig declares one provider adapter. Name is the provider name
// models refer to; Kind selects the implementation.
type AdapterConfig struct {
	Name         string          `yaml:"name"`
	Kind         string          `yaml:"kind"`
	BaseURL      string          `yaml:"base_url"`
	Timeout      time.Duration   `yaml:"timeout"`
	Breaker      BreakerSettings `yaml:"breaker"`
	Bounds       BoundsSettings  `yaml:"bounds"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	MaxPolls     int             `yaml:"max_polls"`
}

// RoutingConfig is the provider wiring and quota table.
type RoutingConfig struct {
	Adapters []AdapterConfig           `yaml:"adapters"`
	Limits   map[string]ratelimit.Limit `yaml:"limits"`
}

// DefaultRouting registers the reference adapters at their usual local
// addresses, overridable per adapter through *_BASE_URL variables.
func DefaultRouting() RoutingConfig {
	return RoutingConfig{
		Adapters: []AdapterConfig{
			{Name: AdapterOllama, Kind: AdapterOllama, BaseURL: util.GetEnvWithDefault("OLLAMA_BASE_URL", provider.OllamaDefaultURL)},
			{Name: AdapterAutomatic1111, Kind: AdapterAutomatic1111, BaseURL: util.GetEnvWithDefault("AUTOMATIC1111_BASE_URL", provider.Automatic1111DefaultURL)},
			{Name: AdapterComfyUI, Kind: AdapterComfyUI, BaseURL: util.GetEnvWithDefault("COMFYUI_BASE_URL", provider.ComfyUIDefaultURL)},
		},
		Limits: ratelimit.DefaultLimits(),
	}
}

// LoadRoutingConfig reads the YAML routing file at path. A missing file
// yields DefaultRouting and found=false. Limits absent from the file keep
// their defaults.
func LoadRoutingConfig(path string) (cfg RoutingConfig, found bool, err error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from config, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRouting(), false, nil
		}
		return RoutingConfig{}, false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err = ParseRoutingConfig(data)
	if err != nil {
		return RoutingConfig{}, true, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, true, nil
}

// ParseRoutingConfig decodes and checks a routing document.
func ParseRoutingConfig(data []byte) (RoutingConfig, error) {
	var file RoutingConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return RoutingConfig{}, err
	}

	cfg := RoutingConfig{Adapters: file.Adapters, Limits: ratelimit.DefaultLimits()}
	for class, limit := range file.Limits {
		cfg.Limits[class] = limit
	}
	if len(cfg.Adapters) == 0 {
		cfg.Adapters = DefaultRouting().Adapters
	}

	for i, a := range cfg.Adapters {
		if a.Kind == "" {
			return RoutingConfig{}, fmt.Errorf("adapter %d: kind is required", i)
		}
		if a.Name == "" {
			cfg.Adapters[i].Name = a.Kind
		}
		switch a.Kind {
		case AdapterOllama, AdapterAutomatic1111, AdapterComfyUI:
		default:
			return RoutingConfig{}, fmt.Errorf("adapter %q: unknown kind %q", cfg.Adapters[i].Name, a.Kind)
		}
	}
	return cfg, nil
}

func (a AdapterConfig) breakerEnabled() bool {
	return a.Breaker.Enabled == nil || *a.Breaker.Enabled
}

func (a AdapterConfig) build(client *http.Client, logger core.Logger) (core.Adapter, core.RequestKind) {
	var (
		adapter core.Adapter
		kind    core.RequestKind
	)
	switch a.Kind {
	case AdapterOllama:
		adapter, kind = provider.NewOllamaAdapter(a.Name, a.BaseURL, client, logger), core.KindText
	case AdapterAutomatic1111:
		bounds := core.ImageBounds{MaxWidth: a.Bounds.MaxWidth, MaxHeight: a.Bounds.MaxHeight, MaxNumImages: a.Bounds.MaxImages}
		adapter, kind = provider.NewAutomatic1111Adapter(a.Name, a.BaseURL, bounds, client, logger), core.KindImage
	case AdapterComfyUI:
		opts := provider.ComfyUIOptions{PollInterval: a.PollInterval, MaxPolls: a.MaxPolls}
		adapter, kind = provider.NewComfyUIAdapter(a.Name, a.BaseURL, opts, client, logger), core.KindVideo
	}

	adapter = provider.WithTimeout(adapter, a.Timeout)
	if a.breakerEnabled() {
		cfg := provider.DefaultBreakerConfig()
		if a.Breaker.Failures > 0 {
			cfg.FailureLimit = a.Breaker.Failures
		}
		if a.Breaker.OpenTimeout > 0 {
			cfg.OpenTimeout = a.Breaker.OpenTimeout
		}
		adapter = provider.WithBreaker(adapter, cfg, logger)
	}
	return adapter, kind
}

// BuildTable constructs every adapter and registers it under its provider
// name. Duplicate (provider, kind) pairs are an error.
func (c RoutingConfig) BuildTable(client *http.Client, logger core.Logger) (*provider.Table, error) {
	if logger == nil {
		logger = &core.NopLogger{}
	}
	table := provider.NewTable()
	for _, a := range c.Adapters {
		adapter, kind := a.build(client, logger)
		if err := table.Register(a.Name, kind, adapter); err != nil {
			return nil, err
		}
	}
	return table, nil
}
