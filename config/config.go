package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. ISSUEWIZ_SERVER_PORT.
const EnvPrefix = "ISSUEWIZ"

// ServerConfig defines the HTTP server and the API metadata it advertises.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	Title           string        `mapstructure:"title" yaml:"title"`
	Description     string        `mapstructure:"description" yaml:"description"`
	Version         string        `mapstructure:"version" yaml:"version"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CORSConfig defines the cross-origin policy.
type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	AllowMethods     []string      `mapstructure:"allow_methods" yaml:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers" yaml:"allow_headers"`
	MaxAge           time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// OllamaConfig defines the Ollama configuration.
type OllamaConfig struct {
	Host  string `mapstructure:"host" yaml:"host"`
	Model string `mapstructure:"model" yaml:"model"`
}

// GeminiConfig defines the Gemini configuration. APIKey falls back to GEMINI_API_KEY.
type GeminiConfig struct {
	Model           string  `mapstructure:"model" yaml:"model"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature     float32 `mapstructure:"temperature" yaml:"temperature"`
	TopK            int32   `mapstructure:"top_k" yaml:"top_k"`
	TopP            float32 `mapstructure:"top_p" yaml:"top_p"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxPromptLength int           `mapstructure:"max_prompt_length" yaml:"max_prompt_length"`
	Ollama          OllamaConfig  `mapstructure:"ollama" yaml:"ollama"`
	Gemini          GeminiConfig  `mapstructure:"gemini" yaml:"gemini"`
}

// AnalysisConfig defines the issue analysis parameters.
type AnalysisConfig struct {
	MaxFiles             int           `mapstructure:"max_files" yaml:"max_files"`
	MaxCharsPerFile      int           `mapstructure:"max_chars_per_file" yaml:"max_chars_per_file"`
	MaxDescriptionLength int           `mapstructure:"max_description_length" yaml:"max_description_length"`
	MaxFileReadSize      int64         `mapstructure:"max_file_read_size" yaml:"max_file_read_size"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	FetchConcurrency     int           `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	AllowPrivateHosts    bool          `mapstructure:"allow_private_hosts" yaml:"allow_private_hosts"`
}

// LoggingConfig defines the logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	CORS     CORSConfig     `mapstructure:"cors" yaml:"cors"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// DefaultOrigins is the allow-list the web frontend is served from.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"https://issue-wiz.vercel.app/",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.title", "IssueWiz")
	v.SetDefault("server.description", "An AI-powered assistant for decoding open-source issues")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("cors.allow_origins", DefaultOrigins)
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.allow_methods", []string{"*"})
	v.SetDefault("cors.allow_headers", []string{"*"})
	v.SetDefault("cors.max_age", 10*time.Minute)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_prompt_length", 12000)
	v.SetDefault("llm.ollama.host", "http://127.0.0.1:11434")
	v.SetDefault("llm.ollama.model", "gemma3:latest")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.temperature", 0.7)
	v.SetDefault("llm.gemini.top_k", 40)
	v.SetDefault("llm.gemini.top_p", 0.95)
	v.SetDefault("llm.gemini.max_output_tokens", 2000)

	v.SetDefault("analysis.max_files", 3)
	v.SetDefault("analysis.max_chars_per_file", 1000)
	v.SetDefault("analysis.max_description_length", 500)
	v.SetDefault("analysis.max_file_read_size", 150000)
	v.SetDefault("analysis.fetch_timeout", 15*time.Second)
	v.SetDefault("analysis.fetch_concurrency", 3)
	v.SetDefault("analysis.allow_private_hosts", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the configuration. An explicit path must exist; without one,
// config.yaml in the working directory is used when present and defaults
// apply otherwise. Environment variables and the given flags override the
// file. Flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("port"); f != nil {
			if err := v.BindPFlag("server.port", f); err != nil {
				return nil, fmt.Errorf("binding port flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot catch by type alone. The
// cross-origin policy has its own validation in the cors package.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server mode: %s (must be debug, release, or test)", c.Server.Mode)
	}

	switch c.LLM.Provider {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("invalid llm provider: %s (must be ollama or gemini)", c.LLM.Provider)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Analysis.MaxFiles <= 0 {
		return errors.New("analysis.max_files must be positive")
	}
	if c.Analysis.MaxCharsPerFile <= 0 {
		return errors.New("analysis.max_chars_per_file must be positive")
	}
	if c.Analysis.MaxFileReadSize <= 0 {
		return errors.New("analysis.max_file_read_size must be positive")
	}
	if c.Analysis.FetchConcurrency <= 0 {
		return errors.New("analysis.fetch_concurrency must be positive")
	}
	return nil
}

// YAML renders the effective configuration. The Gemini key is masked.
func (c Config) YAML() ([]byte, error) {
	if c.LLM.Gemini.APIKey != "" {
		c.LLM.Gemini.APIKey = "********"
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
