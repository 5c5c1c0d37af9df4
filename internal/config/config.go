// Package config loads the TOML session configuration: which shell to
// run, the fixed terminal size and the language model settings.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/CaptainPhantasy/gibberish/internal/errors"
	"github.com/CaptainPhantasy/gibberish/internal/terminal"
	"github.com/CaptainPhantasy/gibberish/internal/validation"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultModel  = "gpt-5.2"
	APIKeyEnvVar  = "OPENAI_API_KEY"
	columnsEnvKey = "COLUMNS"
	linesEnvKey   = "LINES"
)

//go:embed gibberish.toml
var DefaultContents string

type Skin string

const (
	SkinDefault Skin = "default"
	SkinLight   Skin = "light"
	SkinDark    Skin = "dark"
)

func (s *Skin) UnmarshalText(text []byte) error {
	switch v := Skin(text); v {
	case SkinDefault, SkinLight, SkinDark:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown skin %q (expected light, dark or default)", string(text))
	}
}

type Shell struct {
	Program string
	Args    []string
	Env     map[string]string
}

type LLM struct {
	APIKey        string
	Model         string
	BaseURL       string
	Skin          Skin
	InitialPrompt string
}

type Config struct {
	WaitMS uint64
	Yolo   bool
	Shell  Shell
	LLM    LLM
}

// file mirrors the TOML layout. Pointers mark keys that must be
// present.
type file struct {
	WaitMS *uint64 `toml:"wait_ms"`
	Yolo   bool    `toml:"yolo"`
	Shell  *struct {
		Program *string            `toml:"program"`
		Args    *[]string          `toml:"args"`
		Env     *map[string]string `toml:"env"`
	} `toml:"shell"`
	LLM *struct {
		APIKey        string  `toml:"api_key"`
		Model         string  `toml:"model"`
		BaseURL       string  `toml:"base_url"`
		Skin          Skin    `toml:"skin"`
		InitialPrompt *string `toml:"initial_prompt"`
	} `toml:"llm"`
}

// Parse decodes a config document. Unknown keys are ignored; missing
// required keys are errors. Defaults are applied for yolo, model and
// skin.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	var missing []string
	if f.WaitMS == nil {
		missing = append(missing, "wait_ms")
	}
	if f.Shell == nil {
		missing = append(missing, "shell")
	} else {
		if f.Shell.Program == nil {
			missing = append(missing, "shell.program")
		}
		if f.Shell.Args == nil {
			missing = append(missing, "shell.args")
		}
		if f.Shell.Env == nil {
			missing = append(missing, "shell.env")
		}
	}
	if f.LLM == nil {
		missing = append(missing, "llm")
	} else if f.LLM.InitialPrompt == nil {
		missing = append(missing, "llm.initial_prompt")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		WaitMS: *f.WaitMS,
		Yolo:   f.Yolo,
		Shell: Shell{
			Program: *f.Shell.Program,
			Args:    *f.Shell.Args,
			Env:     *f.Shell.Env,
		},
		LLM: LLM{
			APIKey:        f.LLM.APIKey,
			Model:         f.LLM.Model,
			BaseURL:       f.LLM.BaseURL,
			Skin:          f.LLM.Skin,
			InitialPrompt: *f.LLM.InitialPrompt,
		},
	}
	if cfg.LLM.Skin == "" {
		cfg.LLM.Skin = SkinDefault
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.Shell.Env == nil {
		cfg.Shell.Env = map[string]string{}
	}
	return cfg, nil
}

// TerminalSize reads the fixed size from shell.env COLUMNS and LINES.
func (c *Config) TerminalSize() (cols, rows int, err error) {
	cols, err = positiveEnv(c.Shell.Env, columnsEnvKey)
	if err != nil {
		return 0, 0, err
	}
	rows, err = positiveEnv(c.Shell.Env, linesEnvKey)
	if err != nil {
		return 0, 0, err
	}
	return cols, rows, nil
}

func positiveEnv(env map[string]string, key string) (int, error) {
	value, ok := env[key]
	if !ok {
		return 0, fmt.Errorf("missing shell.env.%s", key)
	}
	if value == "0" {
		return 0, fmt.Errorf("shell.env.%s must be greater than zero", key)
	}
	n, ok := validation.ParsePositiveInt(value)
	if !ok {
		return 0, fmt.Errorf("shell.env.%s must be a positive integer (got %q)", key, value)
	}
	return n, nil
}

// ResolveAPIKey fills a blank llm.api_key from envKey. A blank envKey is
// ignored.
func (c *Config) ResolveAPIKey(envKey string) {
	if validation.IsNonEmptyString(c.LLM.APIKey) {
		return
	}
	if validation.IsNonEmptyString(envKey) {
		c.LLM.APIKey = envKey
	}
}

func (c *Config) ValidateLLM() error {
	if !validation.IsNonEmptyString(c.LLM.APIKey) {
		return fmt.Errorf("llm.api_key must not be empty (or set %s)", APIKeyEnvVar)
	}
	if !validation.IsNonEmptyString(c.LLM.InitialPrompt) {
		return errors.New("llm.initial_prompt must not be empty")
	}
	return nil
}

// TerminalOptions returns the options for starting the shell session.
func (c *Config) TerminalOptions() (terminal.Options, error) {
	cols, rows, err := c.TerminalSize()
	if err != nil {
		return terminal.Options{}, err
	}
	return terminal.Options{
		Program: c.Shell.Program,
		Args:    c.Shell.Args,
		Env:     c.Shell.Env,
		Cols:    cols,
		Rows:    rows,
	}, nil
}

// DefaultPath is ~/.config/gibberish/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine HOME directory for default config path: %w", err)
	}
	return filepath.Join(home, ".config", "gibberish", "config.toml"), nil
}

// EnsureDefaultFile writes the bundled default config to path unless a
// file already exists there.
func EnsureDefaultFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config file %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(DefaultContents), 0o644); err != nil {
		return fmt.Errorf("failed to write default config file %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the config at path. An empty path selects
// DefaultPath, creating it from the bundled defaults when missing. The
// API key falls back to OPENAI_API_KEY.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, configError(apperrors.ErrorCategoryFileSystem, "failed to locate config file", "", err)
		}
		if err := EnsureDefaultFile(p); err != nil {
			return nil, configError(apperrors.ErrorCategoryFileSystem, "failed to create default config file", p, err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError(apperrors.ErrorCategoryFileSystem, "failed to read config file "+path, path, err,
			"Check the path passed to --config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, configError(apperrors.ErrorCategoryConfiguration, "failed to parse config file "+path, path, err)
	}

	cfg.ResolveAPIKey(os.Getenv(APIKeyEnvVar))

	if _, _, err := cfg.TerminalSize(); err != nil {
		return nil, configError(apperrors.ErrorCategoryValidation, "invalid terminal size in config file "+path, path, err,
			"Set shell.env.COLUMNS and shell.env.LINES to positive integers")
	}
	if err := cfg.ValidateLLM(); err != nil {
		return nil, configError(apperrors.ErrorCategoryValidation, "invalid llm settings in config file "+path, path, err,
			"Set llm.api_key or export "+APIKeyEnvVar,
			"Set llm.initial_prompt to the system prompt for the agent")
	}
	return cfg, nil
}

func configError(category apperrors.ErrorCategory, msg, path string, cause error, resolution ...string) error {
	opts := apperrors.UserErrorOptions{
		Level:      apperrors.ErrorLevelFatal,
		Category:   category,
		Resolution: resolution,
		Cause:      cause,
	}
	if path != "" {
		opts.Details = map[string]any{"path": path}
	}
	return apperrors.CreateUserError(msg, opts)
}
