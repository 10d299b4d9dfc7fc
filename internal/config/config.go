package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"storyline/internal/logging"
)

// Config models storyline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		ChatPath string `yaml:"chat_path"`
	} `yaml:"server"`
	Store struct {
		CleanupBatchSize int `yaml:"cleanup_batch_size"`
	} `yaml:"store"`
	TextGen TextGenConfig `yaml:"textgen"`
	Cache   struct {
		RedisURL   string `yaml:"redis_url"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Logging struct {
		Level string `yaml:"level"`
		// Events logs every chat request and response at debug level.
		Events bool `yaml:"events"`
	} `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// TextGenConfig selects the generative text model used for story descriptions.
type TextGenConfig struct {
	Project         string  `yaml:"project"`
	Location        string  `yaml:"location"`
	Model           string  `yaml:"model"`
	Endpoint        string  `yaml:"endpoint"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	TopP            float64 `yaml:"top_p"`
	TopK            int     `yaml:"top_k"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

// Enabled reports whether a model project is configured.
func (t TextGenConfig) Enabled() bool {
	return strings.TrimSpace(t.Project) != ""
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Validate ensures the config meets required structure and reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		result = multierror.Append(result, errors.New("server.base_path must start with /"))
	}
	if c.Server.ChatPath != "" && !strings.HasPrefix(c.Server.ChatPath, "/") {
		result = multierror.Append(result, errors.New("server.chat_path must start with /"))
	}
	if c.Server.BasePath != "" && c.Server.ChatPath != "" && strings.HasPrefix(c.Server.ChatPath, c.Server.BasePath) {
		result = multierror.Append(result, errors.New("server.chat_path must not live under server.base_path"))
	}
	if c.Store.CleanupBatchSize < 0 {
		result = multierror.Append(result, errors.New("store.cleanup_batch_size must be positive"))
	}
	if c.TextGen.Temperature < 0 || c.TextGen.Temperature > 1 {
		result = multierror.Append(result, errors.New("textgen.temperature must be between 0 and 1"))
	}
	if c.TextGen.TopP < 0 || c.TextGen.TopP > 1 {
		result = multierror.Append(result, errors.New("textgen.top_p must be between 0 and 1"))
	}
	if c.TextGen.MaxOutputTokens < 0 || c.TextGen.TopK < 0 {
		result = multierror.Append(result, errors.New("textgen.max_output_tokens and textgen.top_k must not be negative"))
	}
	if c.TextGen.Enabled() && strings.TrimSpace(c.TextGen.Location) == "" && c.TextGen.Endpoint == "" {
		result = multierror.Append(result, errors.New("textgen.location is required when textgen.project is set"))
	}
	if c.Cache.RedisURL != "" {
		if u, err := url.Parse(c.Cache.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			result = multierror.Append(result, errors.New("cache.redis_url must be a redis:// or rediss:// url"))
		}
	}
	if c.Cache.TTLSeconds < 0 {
		result = multierror.Append(result, errors.New("cache.ttl_seconds must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "logging.level"))
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			result = multierror.Append(result, errors.Errorf("webhooks[%d].url is required", i))
			continue
		}
		if u, err := url.Parse(hook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			result = multierror.Append(result, errors.Errorf("webhooks[%d].url must be http(s)", i))
		}
		if hook.TimeoutSeconds < 0 {
			result = multierror.Append(result, errors.Errorf("webhooks[%d].timeout_seconds must not be negative", i))
		}
	}
	return result.ErrorOrNil()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "storyline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("config %s not found; create one with sl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	cfg, err := decode([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Fields absent
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid default yaml")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config yaml")
	}
	return &cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  chat_path: /chat

store:
  cleanup_batch_size: 50

textgen:
  project: ""
  location: us-central1
  model: text-bison
  temperature: 0.2
  max_output_tokens: 256
  top_p: 0.95
  top_k: 40
  timeout_seconds: 30

cache:
  redis_url: ""
  ttl_seconds: 3600

logging:
  level: info
  events: false

webhooks: []
`
