package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RALPH_MODELS_REVIEWER
const EnvPrefix = "RALPH"

// DefaultRelPath is where the config lives relative to the repository root
const DefaultRelPath = ".github/agent_config.yml"

// ErrNotFound is returned when the config file does not exist
var ErrNotFound = errors.New("agent config not found")

// Config represents the agent configuration
type Config struct {
	Models   ModelsConfig   `mapstructure:"models" yaml:"models"`
	Retries  RetriesConfig  `mapstructure:"retries" yaml:"retries"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Project  ProjectConfig  `mapstructure:"project" yaml:"project"`
}

// ModelsConfig holds the model id for each agent role
type ModelsConfig struct {
	CoderDefault   string `mapstructure:"coder_default" yaml:"coder_default"`
	CoderHard      string `mapstructure:"coder_hard" yaml:"coder_hard"`
	PlannerDefault string `mapstructure:"planner_default" yaml:"planner_default"`
	PlannerHard    string `mapstructure:"planner_hard" yaml:"planner_hard"`
	Vision         string `mapstructure:"vision" yaml:"vision"`
	Reviewer       string `mapstructure:"reviewer" yaml:"reviewer"`
	Fixer          string `mapstructure:"fixer" yaml:"fixer"`
}

// RetriesConfig bounds the orchestration loops
type RetriesConfig struct {
	MaxCodingAttempts   int `mapstructure:"max_coding_attempts" yaml:"max_coding_attempts"`
	MaxReviewIterations int `mapstructure:"max_review_iterations" yaml:"max_review_iterations"`
	MaxHealAttempts     int `mapstructure:"max_heal_attempts" yaml:"max_heal_attempts"`
}

// TimeoutsConfig holds per-phase timeouts in seconds
type TimeoutsConfig struct {
	CodingSeconds     int `mapstructure:"coding_seconds" yaml:"coding_seconds"`
	ReviewSeconds     int `mapstructure:"review_seconds" yaml:"review_seconds"`
	FixSeconds        int `mapstructure:"fix_seconds" yaml:"fix_seconds"`
	ScreenshotSeconds int `mapstructure:"screenshot_seconds" yaml:"screenshot_seconds"`
	TestSeconds       int `mapstructure:"test_seconds" yaml:"test_seconds"`
}

func (t TimeoutsConfig) Coding() time.Duration     { return seconds(t.CodingSeconds) }
func (t TimeoutsConfig) Review() time.Duration     { return seconds(t.ReviewSeconds) }
func (t TimeoutsConfig) Fix() time.Duration        { return seconds(t.FixSeconds) }
func (t TimeoutsConfig) Screenshot() time.Duration { return seconds(t.ScreenshotSeconds) }
func (t TimeoutsConfig) Test() time.Duration       { return seconds(t.TestSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ProjectConfig describes the target project. Every field is optional.
type ProjectConfig struct {
	BaseBranch  string       `mapstructure:"base_branch" yaml:"base_branch"`
	TestCommand string       `mapstructure:"test_command" yaml:"test_command"`
	Server      ServerConfig `mapstructure:"server" yaml:"server"`
}

// ServerConfig describes the dev server started for frontend issues
type ServerConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	InstallCommand string `mapstructure:"install_command" yaml:"install_command"`
	StartCommand   string `mapstructure:"start_command" yaml:"start_command"`
	WorkingDir     string `mapstructure:"working_dir" yaml:"working_dir"`
	Port           int    `mapstructure:"port" yaml:"port"`
	HealthPath     string `mapstructure:"health_path" yaml:"health_path"`
}

// URL returns the server's health-check URL
func (s ServerConfig) URL() string {
	path := s.HealthPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://localhost:%d%s", s.Port, path)
}

// AppURL is the address the screenshot agent opens
func (s ServerConfig) AppURL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port)
}

// DefaultProject returns the project section used when the file omits it
func DefaultProject() ProjectConfig {
	return ProjectConfig{
		BaseBranch:  "main",
		TestCommand: "npm test",
		Server: ServerConfig{
			Enabled:        false,
			InstallCommand: "npm ci",
			StartCommand:   "node server.js",
			WorkingDir:     "backend",
			Port:           3000,
			HealthPath:     "/",
		},
	}
}

// requiredKeys lists every key that must be present in the file or the environment
var requiredKeys = []string{
	"models.coder_default",
	"models.coder_hard",
	"models.planner_default",
	"models.planner_hard",
	"models.vision",
	"models.reviewer",
	"models.fixer",
	"retries.max_coding_attempts",
	"retries.max_review_iterations",
	"retries.max_heal_attempts",
	"timeouts.coding_seconds",
	"timeouts.review_seconds",
	"timeouts.fix_seconds",
	"timeouts.screenshot_seconds",
	"timeouts.test_seconds",
}

// ResolvePath picks the config path: explicit flag, then RALPH_CONFIG_PATH,
// then <repoRoot>/.github/agent_config.yml
func ResolvePath(flagPath, repoRoot string, getenv func(string) string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := getenv("RALPH_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(repoRoot, DefaultRelPath)
}

// RepoRoot returns the repository root: explicit flag, then RALPH_REPO_ROOT,
// then the working directory
func RepoRoot(flagRoot string, getenv func(string) string) (string, error) {
	root := flagRoot
	if root == "" {
		root = getenv("RALPH_REPO_ROOT")
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repo root: %w", err)
	}
	return abs, nil
}

// Read loads the YAML file into a viper instance with RALPH_* overrides bound
func Read(configPath string) (*viper.Viper, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s: expected %s to exist in the repository root", ErrNotFound, configPath, DefaultRelPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// Load reads, parses and validates the config at configPath
func Load(configPath string) (*Config, error) {
	v, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	verr := &ValidationErrors{}
	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			verr.Add(key, "a value", nil, "missing required key")
		}
	}
	validate(&cfg, verr)
	if verr.HasErrors() {
		return nil, verr
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultProject()
	v.SetDefault("project.base_branch", d.BaseBranch)
	v.SetDefault("project.test_command", d.TestCommand)
	v.SetDefault("project.server.enabled", d.Server.Enabled)
	v.SetDefault("project.server.install_command", d.Server.InstallCommand)
	v.SetDefault("project.server.start_command", d.Server.StartCommand)
	v.SetDefault("project.server.working_dir", d.Server.WorkingDir)
	v.SetDefault("project.server.port", d.Server.Port)
	v.SetDefault("project.server.health_path", d.Server.HealthPath)
}
