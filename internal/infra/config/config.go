// Package config provides application-wide configuration.
// Values resolve as defaults, then the YAML file named by CAMVISION_CONFIG, then env vars.
// All fields have safe defaults so the binary runs locally without any setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for camvision.
type Config struct {
	Provider       string        `yaml:"provider"` // PROVIDER (default "ollama")
	Ollama         OllamaConfig  `yaml:"ollama"`
	Gemini         GeminiConfig  `yaml:"gemini"`
	OpenAI         OpenAIConfig  `yaml:"openai"`
	Stream         StreamConfig  `yaml:"stream"`
	Capture        CaptureConfig `yaml:"capture"`
	HTTP           HTTPConfig    `yaml:"http"`
	DBPath         string        `yaml:"db_path"` // DB_PATH (default "./data/camvision.db")
	MQTT           MQTTConfig    `yaml:"mqtt"`
	Log            LogConfig     `yaml:"log"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // REQUEST_TIMEOUT (default 180s)
}

type OllamaConfig struct {
	Host     string `yaml:"host"`     // OLLAMA_HOST (default "http://localhost:11434")
	Model    string `yaml:"model"`    // OLLAMA_MODEL (default "gemma3:4b")
	Endpoint string `yaml:"endpoint"` // OLLAMA_ENDPOINT ("chat" or "generate")
}

type GeminiConfig struct {
	Host              string `yaml:"host"`
	Version           string `yaml:"version"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"` // GOOGLE_API_KEY
	ListModelsAtStart bool   `yaml:"list_models_at_start"`
}

type OpenAIConfig struct {
	Host   string `yaml:"host"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"` // OPENAI_API_KEY
}

// StreamConfig carries the defaults used when a start request leaves a field empty.
type StreamConfig struct {
	Question     string `yaml:"question"`
	FPS          int    `yaml:"fps"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	MaxInFlight  int    `yaml:"max_in_flight"`
	BatchSize    int    `yaml:"batch_size"`
	Quality      int    `yaml:"quality"`
	MaxDimension int    `yaml:"max_dimension"`
	Device       string `yaml:"device"`
	FrontFacing  bool   `yaml:"front_facing"`
}

type CaptureConfig struct {
	Backend string `yaml:"backend"` // CAPTURE_BACKEND ("synthetic" or "opencv")
}

type HTTPConfig struct {
	Host string `yaml:"host"` // HTTP_HOST (default "127.0.0.1")
	Port int    `yaml:"port"` // HTTP_PORT (default 8080)
}

// MQTTConfig is optional; an empty Broker disables the emitter.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // MQTT_BROKER
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // LOG_LEVEL (default "info")
	Format string `yaml:"format"` // LOG_FORMAT ("json" or "console")
}

const (
	envKeyConfigFile     = "CAMVISION_CONFIG"
	envKeyProvider       = "PROVIDER"
	envKeyOllamaHost     = "OLLAMA_HOST"
	envKeyOllamaModel    = "OLLAMA_MODEL"
	envKeyOllamaEndpoint = "OLLAMA_ENDPOINT"
	envKeyGeminiModel    = "GEMINI_MODEL"
	envKeyGeminiVersion  = "GEMINI_API_VERSION"
	envKeyGoogleAPIKey   = "GOOGLE_API_KEY"
	envKeyOpenAIHost     = "OPENAI_BASE_URL"
	envKeyOpenAIModel    = "OPENAI_MODEL"
	envKeyOpenAIAPIKey   = "OPENAI_API_KEY"
	envKeyCaptureBackend = "CAPTURE_BACKEND"
	envKeyHTTPHost       = "HTTP_HOST"
	envKeyHTTPPort       = "HTTP_PORT"
	envKeyDBPath         = "DB_PATH"
	envKeyMQTTBroker     = "MQTT_BROKER"
	envKeyLogLevel       = "LOG_LEVEL"
	envKeyLogFormat      = "LOG_FORMAT"
	envKeyRequestTimeout = "REQUEST_TIMEOUT"
)

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Provider: "ollama",
		Ollama: OllamaConfig{
			Host:     "http://localhost:11434",
			Model:    "gemma3:4b",
			Endpoint: "chat",
		},
		Gemini: GeminiConfig{
			Host:    "https://generativelanguage.googleapis.com",
			Version: "v1beta",
			Model:   "gemini-2.5-flash",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Stream: StreamConfig{
			Question:     "Describe what you see.",
			FPS:          5,
			Width:        640,
			Height:       480,
			MaxInFlight:  2,
			BatchSize:    1,
			Quality:      80,
			MaxDimension: 1024,
		},
		Capture:        CaptureConfig{Backend: "synthetic"},
		HTTP:           HTTPConfig{Host: "127.0.0.1", Port: 8080},
		DBPath:         "./data/camvision.db",
		MQTT:           MQTTConfig{ClientID: "camvision", TopicPrefix: "camvision"},
		Log:            LogConfig{Level: "info", Format: "json"},
		RequestTimeout: 180 * time.Second,
	}
}

// Load resolves configuration from defaults, the optional YAML file and env vars.
// A missing file named by CAMVISION_CONFIG is an error; an unset variable is not.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv(envKeyConfigFile); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Provider = envOr(envKeyProvider, cfg.Provider)
	cfg.Ollama.Host = envOr(envKeyOllamaHost, cfg.Ollama.Host)
	cfg.Ollama.Model = envOr(envKeyOllamaModel, cfg.Ollama.Model)
	cfg.Ollama.Endpoint = envOr(envKeyOllamaEndpoint, cfg.Ollama.Endpoint)
	cfg.Gemini.Model = envOr(envKeyGeminiModel, cfg.Gemini.Model)
	cfg.Gemini.Version = envOr(envKeyGeminiVersion, cfg.Gemini.Version)
	cfg.Gemini.APIKey = envOr(envKeyGoogleAPIKey, cfg.Gemini.APIKey)
	cfg.OpenAI.Host = envOr(envKeyOpenAIHost, cfg.OpenAI.Host)
	cfg.OpenAI.Model = envOr(envKeyOpenAIModel, cfg.OpenAI.Model)
	cfg.OpenAI.APIKey = envOr(envKeyOpenAIAPIKey, cfg.OpenAI.APIKey)
	cfg.Capture.Backend = envOr(envKeyCaptureBackend, cfg.Capture.Backend)
	cfg.HTTP.Host = envOr(envKeyHTTPHost, cfg.HTTP.Host)
	cfg.HTTP.Port = envIntOr(envKeyHTTPPort, cfg.HTTP.Port)
	cfg.DBPath = envOr(envKeyDBPath, cfg.DBPath)
	cfg.MQTT.Broker = envOr(envKeyMQTTBroker, cfg.MQTT.Broker)
	cfg.Log.Level = envOr(envKeyLogLevel, cfg.Log.Level)
	cfg.Log.Format = envOr(envKeyLogFormat, cfg.Log.Format)
	cfg.RequestTimeout = envDurationOr(envKeyRequestTimeout, cfg.RequestTimeout)
}

// Validate returns every problem found; an empty result means the config is usable.
func (c Config) Validate() []string {
	var problems []string
	switch c.Provider {
	case "ollama", "gemini", "openai":
	default:
		problems = append(problems, fmt.Sprintf("provider %q must be one of ollama, gemini, openai", c.Provider))
	}
	if c.Provider == "gemini" && c.Gemini.APIKey == "" {
		problems = append(problems, "gemini.api_key is required when provider is gemini")
	}
	if c.Ollama.Endpoint != "chat" && c.Ollama.Endpoint != "generate" {
		problems = append(problems, fmt.Sprintf("ollama.endpoint %q must be chat or generate", c.Ollama.Endpoint))
	}
	if c.Capture.Backend != "synthetic" && c.Capture.Backend != "opencv" {
		problems = append(problems, fmt.Sprintf("capture.backend %q must be synthetic or opencv", c.Capture.Backend))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Stream.Quality < 0 || c.Stream.Quality > 100 {
		problems = append(problems, fmt.Sprintf("stream.quality %d must be within 1..100", c.Stream.Quality))
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		problems = append(problems, fmt.Sprintf("log.format %q must be json or console", c.Log.Format))
	}
	return problems
}

// Addr returns the listen address for the control API.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
