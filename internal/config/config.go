// Package config loads process configuration for the hub daemon.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is read from MCPHUB_* environment variables.
type Config struct {
	Addr            string        `env:"MCPHUB_ADDR" envDefault:":8700"`
	ClientName      string        `env:"MCPHUB_CLIENT_NAME" envDefault:"mcphub"`
	Timeout         time.Duration `env:"MCPHUB_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"MCPHUB_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"MCPHUB_LOG_FORMAT" envDefault:"text"`
	LogJSONRPC      bool          `env:"MCPHUB_LOG_JSONRPC"`
	CORSOrigins     []string      `env:"MCPHUB_CORS_ORIGINS" envSeparator:","`
	EndpointsFile   string        `env:"MCPHUB_ENDPOINTS_FILE"`
	OTELEndpoint    string        `env:"MCPHUB_OTEL_ENDPOINT"`
	APIToken        string        `env:"MCPHUB_API_TOKEN"`
	ShutdownTimeout time.Duration `env:"MCPHUB_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Logger builds a slog.Logger writing to w in the configured format and level.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
}

// Endpoint is one entry of the endpoints file.
type Endpoint struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

type endpointsFile struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// LoadEndpoints reads the YAML endpoints file at path. IDs must be present
// and unique.
func LoadEndpoints(path string) ([]Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read endpoints file: %w", err)
	}
	return ParseEndpoints(data)
}

// ParseEndpoints decodes an endpoints document.
func ParseEndpoints(data []byte) ([]Endpoint, error) {
	var doc endpointsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse endpoints: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Endpoints))
	for i, ep := range doc.Endpoints {
		ep.ID = strings.TrimSpace(ep.ID)
		ep.URL = strings.TrimSpace(ep.URL)
		if ep.ID == "" {
			return nil, fmt.Errorf("config: endpoint %d: id is required", i)
		}
		if ep.URL == "" {
			return nil, fmt.Errorf("config: endpoint %q: url is required", ep.ID)
		}
		if _, dup := seen[ep.ID]; dup {
			return nil, fmt.Errorf("config: duplicate endpoint id %q", ep.ID)
		}
		seen[ep.ID] = struct{}{}
		doc.Endpoints[i] = ep
	}
	return doc.Endpoints, nil
}
