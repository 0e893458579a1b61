// Package config provides studymate configuration: a JSON user config with
// environment overrides, and externally editable YAML policy data (trusted
// domains, safety keyword lists, banned video keywords).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// UserConfig is the top-level configuration loaded from config.json.
type UserConfig struct {
	LLM      LLMConfig      `json:"llm"`
	Research ResearchConfig `json:"research"`
	Practice PracticeConfig `json:"practice"`
	Video    VideoConfig    `json:"video"`

	// PolicyDir is the directory holding the YAML policy files
	// (trusted_domains.yaml, safety_keywords.yaml, video_keywords.yaml).
	PolicyDir string `json:"policy_dir,omitempty"`
}

// LLMConfig selects the model provider and call budgets.
type LLMConfig struct {
	Provider      string        `json:"provider"` // "openai", "gemini"
	APIKey        string        `json:"api_key,omitempty"`
	BaseURL       string        `json:"base_url,omitempty"`
	Model         string        `json:"model,omitempty"`
	FallbackModel string        `json:"fallback_model,omitempty"`
	CallTimeout   time.Duration `json:"call_timeout,omitempty"` // per completion
}

// ResearchConfig bounds the research pipeline.
type ResearchConfig struct {
	MaxQueries   int           `json:"max_queries"`   // planned sub-queries per question
	MaxSources   int           `json:"max_sources"`   // accepted sources per question
	MaxFacts     int           `json:"max_facts"`     // aggregated facts per question
	FactsPerPage int           `json:"facts_per_page"` // extracted claims per source
	FetchTimeout time.Duration `json:"fetch_timeout"` // per page fetch
	MaxPageBytes int64         `json:"max_page_bytes"`
	MaxCleanLen  int           `json:"max_clean_len"` // cleaned text truncation
	UserAgent    string        `json:"user_agent,omitempty"`
	SearchURL    string        `json:"search_url,omitempty"`
}

// PracticeConfig holds the practice-protocol policy knobs. The give-up
// threshold is policy, not law; callers can raise it per deployment.
type PracticeConfig struct {
	MaxAttempts int `json:"max_attempts"` // incorrect attempts before re-explaining
}

// VideoConfig bounds the video matcher.
type VideoConfig struct {
	SearchURL    string        `json:"search_url,omitempty"`
	MaxResults   int           `json:"max_results"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// Default returns the compiled-in configuration.
func Default() *UserConfig {
	return &UserConfig{
		LLM: LLMConfig{
			Provider:      "openai",
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			FallbackModel: "gpt-4o",
			CallTimeout:   20 * time.Second,
		},
		Research: ResearchConfig{
			MaxQueries:   4,
			MaxSources:   4,
			MaxFacts:     5,
			FactsPerPage: 3,
			FetchTimeout: 8 * time.Second,
			MaxPageBytes: 1 << 20,
			MaxCleanLen:  6000,
			UserAgent:    "studymate/1.0 (tutoring research)",
			SearchURL:    "https://html.duckduckgo.com/html/",
		},
		Practice: PracticeConfig{MaxAttempts: 2},
		Video: VideoConfig{
			MaxResults:   8,
			FetchTimeout: 8 * time.Second,
		},
	}
}

// DefaultConfigPath returns ~/.studymate/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".studymate", "config.json")
	}
	return filepath.Join(home, ".studymate", "config.json")
}

// Load reads the config file at path, falling back to defaults for any
// field left unset, then applies environment overrides. A missing file is
// not an error; the defaults are returned.
func Load(path string) (*UserConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	fillDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// fillDefaults restores zero-valued budgets that json.Unmarshal may have
// clobbered when the file specifies only some fields.
func fillDefaults(cfg *UserConfig) {
	def := Default()
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.CallTimeout <= 0 {
		cfg.LLM.CallTimeout = def.LLM.CallTimeout
	}
	if cfg.Research.MaxQueries <= 0 {
		cfg.Research.MaxQueries = def.Research.MaxQueries
	}
	if cfg.Research.MaxSources <= 0 {
		cfg.Research.MaxSources = def.Research.MaxSources
	}
	if cfg.Research.MaxFacts <= 0 {
		cfg.Research.MaxFacts = def.Research.MaxFacts
	}
	if cfg.Research.FactsPerPage <= 0 {
		cfg.Research.FactsPerPage = def.Research.FactsPerPage
	}
	if cfg.Research.FetchTimeout <= 0 {
		cfg.Research.FetchTimeout = def.Research.FetchTimeout
	}
	if cfg.Research.MaxPageBytes <= 0 {
		cfg.Research.MaxPageBytes = def.Research.MaxPageBytes
	}
	if cfg.Research.MaxCleanLen <= 0 {
		cfg.Research.MaxCleanLen = def.Research.MaxCleanLen
	}
	if cfg.Research.UserAgent == "" {
		cfg.Research.UserAgent = def.Research.UserAgent
	}
	if cfg.Research.SearchURL == "" {
		cfg.Research.SearchURL = def.Research.SearchURL
	}
	if cfg.Practice.MaxAttempts <= 0 {
		cfg.Practice.MaxAttempts = def.Practice.MaxAttempts
	}
	if cfg.Video.MaxResults <= 0 {
		cfg.Video.MaxResults = def.Video.MaxResults
	}
	if cfg.Video.FetchTimeout <= 0 {
		cfg.Video.FetchTimeout = def.Video.FetchTimeout
	}
}

// applyEnvOverrides lets environment variables win over the file.
// Priority per key: env > config.json > default.
func applyEnvOverrides(cfg *UserConfig) {
	if v := os.Getenv("STUDYMATE_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("STUDYMATE_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("STUDYMATE_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if cfg.LLM.APIKey == "" {
		for _, env := range []string{"STUDYMATE_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
			if v := os.Getenv(env); v != "" {
				cfg.LLM.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("STUDYMATE_POLICY_DIR"); v != "" {
		cfg.PolicyDir = v
	}
}
