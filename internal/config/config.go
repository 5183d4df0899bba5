// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Run selection
	RunID string `json:"run_id,omitempty"` // Campaign run to execute

	// Recommendation
	Strategy string `json:"strategy,omitempty" validate:"omitempty,oneof=similarity cart repurchase fallback"`
	TopK     int    `json:"top_k,omitempty" validate:"gte=0"` // Fallback candidate slice size

	// Messaging
	DefaultChannel  string `json:"default_channel,omitempty"`   // Channel when the run names none
	MaxPreview      int    `json:"max_preview,omitempty" validate:"gte=0"` // Sample messages carried in the summary
	RequireAllSlots bool   `json:"require_all_slots,omitempty"` // Fail users with unfilled slots

	// Backends
	APIKey         string `json:"api_key,omitempty"`         // Gemini API key (similarity strategy)
	DatabaseURL    string `json:"database_url,omitempty"`    // PostgreSQL connection URL
	EmbeddingModel string `json:"embedding_model,omitempty"` // Gemini embedding model name

	// Behavior
	Verbose bool `json:"verbose,omitempty"` // Print detailed progress information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors, ok := err.(validator.ValidationErrors); ok && len(errors) > 0 {
			invalid = errors
			return fmt.Errorf("config error: field %q failed %q validation",
				invalid[0].Field(), invalid[0].Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.RunID == "" {
		result.RunID = defaults.RunID
	}
	if result.Strategy == "" {
		result.Strategy = defaults.Strategy
	}
	if result.DefaultChannel == "" {
		result.DefaultChannel = defaults.DefaultChannel
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.EmbeddingModel == "" {
		result.EmbeddingModel = defaults.EmbeddingModel
	}

	// Int fields: use default if zero
	if result.TopK == 0 {
		result.TopK = defaults.TopK
	}
	if result.MaxPreview == 0 {
		result.MaxPreview = defaults.MaxPreview
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
