// Package config provides configuration for the interview service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the interview service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Question plan
	PlanLength   int
	SeedQuestion string

	// Capture
	FrameInterval      time.Duration
	FrameWindow        time.Duration
	SpeechRestartDelay time.Duration
	SpeechFlushTimeout time.Duration

	// Question generation
	GeneratorKind         string
	QuestionBankPath      string
	QuestionBankSeed      uint64
	MaxGenerationAttempts int
	LLMBaseURL            string
	LLMAPIKey             string
	LLMModel              string
	LLMTimeout            time.Duration
	LLMMode               string
	LLMMaxRetries         int
	PolicyPath            string

	// Frame classification
	ClassifierURL         string
	ClassifierTimeout     time.Duration
	ClassifierConcurrency int

	// Sessions
	MaxSessions        int
	SessionIdleTimeout time.Duration
	ReaperInterval     time.Duration

	// Metrics
	MetricsEnabled bool

	// Websocket device bridge
	WSReadTimeout    time.Duration
	WSPingInterval   time.Duration
	WSMaxMessageSize int64
	WSFrameRate      float64
	WSFrameBurst     int
}

// Generator kinds.
const (
	GeneratorLLM  = "llm"
	GeneratorBank = "bank"
)

// DefaultSeedQuestion opens every session.
const DefaultSeedQuestion = "Tell me about yourself and your background in this field."

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8080)
	v.SetDefault("database_url", "file:interview.db?cache=shared&mode=rwc")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("plan_length", 5)
	v.SetDefault("seed_question", DefaultSeedQuestion)

	v.SetDefault("frame_interval", 2*time.Second)
	v.SetDefault("frame_window", 30*time.Second)
	v.SetDefault("speech_restart_delay", 250*time.Millisecond)
	v.SetDefault("speech_flush_timeout", 3*time.Second)

	v.SetDefault("generator_kind", GeneratorLLM)
	v.SetDefault("question_bank_path", "")
	v.SetDefault("question_bank_seed", 0)
	v.SetDefault("max_generation_attempts", 2)
	v.SetDefault("llm_base_url", "http://localhost:4000")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_timeout", 30*time.Second)
	v.SetDefault("llm_mode", "")
	v.SetDefault("llm_max_retries", 3)
	v.SetDefault("policy_path", "")

	v.SetDefault("classifier_url", "http://localhost:5001")
	v.SetDefault("classifier_timeout", 10*time.Second)
	v.SetDefault("classifier_concurrency", 4)

	v.SetDefault("max_sessions", 1000)
	v.SetDefault("session_idle_timeout", 30*time.Minute)
	v.SetDefault("reaper_interval", time.Minute)

	v.SetDefault("metrics_enabled", true)

	v.SetDefault("ws_read_timeout", 60*time.Second)
	v.SetDefault("ws_ping_interval", 30*time.Second)
	v.SetDefault("ws_max_message_size", 2<<20)
	v.SetDefault("ws_frame_rate", 2.0)
	v.SetDefault("ws_frame_burst", 4)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. Environment variables use the
// upper-cased key, e.g. HTTP_PORT or LLM_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:              v.GetInt("http_port"),
		DatabaseURL:           v.GetString("database_url"),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
		PlanLength:            v.GetInt("plan_length"),
		SeedQuestion:          v.GetString("seed_question"),
		FrameInterval:         v.GetDuration("frame_interval"),
		FrameWindow:           v.GetDuration("frame_window"),
		SpeechRestartDelay:    v.GetDuration("speech_restart_delay"),
		SpeechFlushTimeout:    v.GetDuration("speech_flush_timeout"),
		GeneratorKind:         v.GetString("generator_kind"),
		QuestionBankPath:      v.GetString("question_bank_path"),
		QuestionBankSeed:      v.GetUint64("question_bank_seed"),
		MaxGenerationAttempts: v.GetInt("max_generation_attempts"),
		LLMBaseURL:            v.GetString("llm_base_url"),
		LLMAPIKey:             v.GetString("llm_api_key"),
		LLMModel:              v.GetString("llm_model"),
		LLMTimeout:            v.GetDuration("llm_timeout"),
		LLMMode:               v.GetString("llm_mode"),
		LLMMaxRetries:         v.GetInt("llm_max_retries"),
		PolicyPath:            v.GetString("policy_path"),
		ClassifierURL:         v.GetString("classifier_url"),
		ClassifierTimeout:     v.GetDuration("classifier_timeout"),
		ClassifierConcurrency: v.GetInt("classifier_concurrency"),
		MaxSessions:           v.GetInt("max_sessions"),
		SessionIdleTimeout:    v.GetDuration("session_idle_timeout"),
		ReaperInterval:        v.GetDuration("reaper_interval"),
		MetricsEnabled:        v.GetBool("metrics_enabled"),
		WSReadTimeout:         v.GetDuration("ws_read_timeout"),
		WSPingInterval:        v.GetDuration("ws_ping_interval"),
		WSMaxMessageSize:      v.GetInt64("ws_max_message_size"),
		WSFrameRate:           v.GetFloat64("ws_frame_rate"),
		WSFrameBurst:          v.GetInt("ws_frame_burst"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.PlanLength < 1 {
		errs = append(errs, fmt.Errorf("plan_length must be at least 1, got %d", c.PlanLength))
	}
	if c.SeedQuestion == "" {
		errs = append(errs, errors.New("seed_question is required"))
	}
	if c.FrameInterval <= 0 || c.FrameWindow <= 0 {
		errs = append(errs, errors.New("frame_interval and frame_window must be positive"))
	}
	switch c.GeneratorKind {
	case GeneratorLLM:
	case GeneratorBank:
		if c.QuestionBankPath == "" {
			errs = append(errs, errors.New("question_bank_path is required for the bank generator"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generator_kind %q", c.GeneratorKind))
	}
	if c.ClassifierConcurrency < 1 {
		errs = append(errs, errors.New("classifier_concurrency must be at least 1"))
	}
	if c.MaxSessions < 1 {
		errs = append(errs, errors.New("max_sessions must be at least 1"))
	}
	return errors.Join(errs...)
}
