// Package config resolves the layered configuration of the time-report tool.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/tailscale/hujson"
)

// Error variables for configuration loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
)

// ConfigFileName is the project config file looked up in the working directory.
const ConfigFileName = ".timereport.json"

// Config holds all configuration options.
type Config struct {
	StorageDir      string   `json:"storage_dir" validate:"required"`
	EssenceDB       string   `json:"essence_db" validate:"required"`
	NamesReference  string   `json:"names_reference,omitempty"`
	PredefinedSpend string   `json:"predefined_spend,omitempty"`
	TemplatesDir    string   `json:"templates_dir" validate:"required"`
	TrackerURL      string   `json:"tracker_url,omitempty" validate:"omitempty,url"`
	Projects        []string `json:"projects,omitempty" validate:"dive,oneof=cai is lingvo"`
	LogLevel        string   `json:"log_level" validate:"oneof=panic fatal error warn warning info debug trace"`
	AI              AI       `json:"ai"`

	// Secrets come from the environment only.
	Secrets Secrets `json:"-"`

	// Resolved at load time, not serialized.
	EffectiveCwd string  `json:"-"`
	Sources      Sources `json:"-"`
}

// AI configures essence generation.
type AI struct {
	Model                string  `json:"model" validate:"required"`
	BaseURL              string  `json:"base_url,omitempty" validate:"omitempty,url"`
	Temperature          float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxRequestsPerMinute float64 `json:"max_requests_per_minute" validate:"gt=0"`
}

// Secrets are credentials read from environment variables.
type Secrets struct {
	TrackerPAT   string `env:"TIMEREPORT_PAT"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StorageDir:   ".timereport",
		EssenceDB:    filepath.Join(".timereport", "essence.sqlite"),
		TemplatesDir: "templates",
		Projects:     []string{"cai", "is", "lingvo"},
		LogLevel:     "warn",
		AI: AI{
			Model:                "gpt-3.5-turbo",
			Temperature:          0.5,
			MaxRequestsPerMinute: 3,
		},
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/timereport/config.json or
// ~/.config/timereport/config.json, or "" if neither can be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "timereport", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "timereport", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	LogLevel        string            // --verbose maps to "debug"; empty means no override
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.timereport.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. CLI overrides.
//
// Secrets are parsed from Env. All paths in the returned Config are absolute.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	if globalPath := getGlobalConfigPath(input.Env); globalPath != "" {
		loaded, err := overlayConfigFile(&cfg, globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, ConfigFileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	loaded, err := overlayConfigFile(&cfg, projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
	}

	if input.LogLevel != "" {
		cfg.LogLevel = input.LogLevel
	}

	err = env.ParseWithOptions(&cfg.Secrets, env.Options{Environment: input.Env})
	if err != nil {
		return Config{}, fmt.Errorf("%w: environment: %w", ErrConfigInvalid, err)
	}

	err = validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.StorageDir = absPath(workDir, cfg.StorageDir)
	cfg.EssenceDB = absPath(workDir, cfg.EssenceDB)
	cfg.TemplatesDir = absPath(workDir, cfg.TemplatesDir)
	cfg.NamesReference = absPath(workDir, cfg.NamesReference)
	cfg.PredefinedSpend = absPath(workDir, cfg.PredefinedSpend)

	return cfg, nil
}

// overlayConfigFile decodes path on top of cfg. Keys absent from the file keep
// their current value. If mustExist is false a missing file is not an error.
func overlayConfigFile(cfg *Config, path string, mustExist bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return false, nil
		}

		return false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return false, fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}

	err = json.Unmarshal(standardized, cfg)
	if err != nil {
		return false, fmt.Errorf("%w %s: invalid JSON: %w", ErrConfigInvalid, path, err)
	}

	return true, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg Config) error {
	err := validate.Struct(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return nil
}

func absPath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}
