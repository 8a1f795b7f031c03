// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Oracle  OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
	Memory  MemoryConfig  `mapstructure:"memory" yaml:"memory"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser driving the target.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	BodyTextLimit     int           `mapstructure:"body_text_limit" yaml:"body_text_limit"`
	ElementTextLimit  int           `mapstructure:"element_text_limit" yaml:"element_text_limit"`
}

// Mode selects the agent's running strategy.
type Mode string

const (
	ModeExploration Mode = "exploration"
	ModeAnomalyHunt Mode = "anomaly-hunt"
)

// AgentConfig drives the orchestrator. It is passed by value; the only
// sanctioned change at runtime is WithExcludedTexts, which returns a new value
// with a bumped Version.
type AgentConfig struct {
	Version            int                `mapstructure:"-" yaml:"-"`
	Mode               Mode               `mapstructure:"mode" yaml:"mode"`
	TargetURL          string             `mapstructure:"target_url" yaml:"target_url"`
	Objective          string             `mapstructure:"objective" yaml:"objective"`
	Duration           time.Duration      `mapstructure:"duration" yaml:"duration"`
	MaxActionsPerPage  int                `mapstructure:"max_actions_per_page" yaml:"max_actions_per_page"`
	ActionDelay        time.Duration      `mapstructure:"action_delay" yaml:"action_delay"`
	FailureThreshold   int                `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	PriorityRoutes     []string           `mapstructure:"priority_routes" yaml:"priority_routes"`
	StartPages         []string           `mapstructure:"start_pages" yaml:"start_pages"`
	Missions           []schemas.Mission  `mapstructure:"missions" yaml:"missions"`
	Viewports          []schemas.Viewport `mapstructure:"viewports" yaml:"viewports"`
	ExcludedTexts      []string           `mapstructure:"excluded_texts" yaml:"excluded_texts"`
	MissionRotateAfter int                `mapstructure:"mission_rotate_after" yaml:"mission_rotate_after"`
	SnapshotInterval   time.Duration      `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	HistoryCapacity    int                `mapstructure:"history_capacity" yaml:"history_capacity"`
	ElementCap         int                `mapstructure:"element_cap" yaml:"element_cap"`
	RecentActions      int                `mapstructure:"recent_actions" yaml:"recent_actions"`
	Instances          int                `mapstructure:"instances" yaml:"instances"`
	TypeSampleText     string             `mapstructure:"type_sample_text" yaml:"type_sample_text"`
	IncludeSubdomains  bool               `mapstructure:"include_subdomains" yaml:"include_subdomains"`
}

// WithExcludedTexts returns a copy of the configuration with texts appended to
// the exclusion list. The receiver is left untouched.
func (a AgentConfig) WithExcludedTexts(texts ...string) AgentConfig {
	next := a
	next.ExcludedTexts = make([]string, 0, len(a.ExcludedTexts)+len(texts))
	next.ExcludedTexts = append(next.ExcludedTexts, a.ExcludedTexts...)
	changed := false
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || containsFold(next.ExcludedTexts, t) {
			continue
		}
		next.ExcludedTexts = append(next.ExcludedTexts, t)
		changed = true
	}
	if changed {
		next.Version = a.Version + 1
	}
	return next
}

// IsExcluded reports whether visible text matches any entry of the exclusion list.
func (a AgentConfig) IsExcluded(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, ex := range a.ExcludedTexts {
		if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// OracleProvider names the backend used by the decision oracle.
type OracleProvider string

const (
	ProviderOllama OracleProvider = "ollama"
	ProviderGemini OracleProvider = "gemini"
	ProviderNone   OracleProvider = "none"
)

// OracleConfig configures the language-model decision oracle.
type OracleConfig struct {
	Provider            OracleProvider `mapstructure:"provider" yaml:"provider"`
	FallbackProvider    OracleProvider `mapstructure:"fallback_provider" yaml:"fallback_provider"`
	Model               string         `mapstructure:"model" yaml:"model"`
	Endpoint            string         `mapstructure:"endpoint" yaml:"endpoint"`
	GeminiModel         string         `mapstructure:"gemini_model" yaml:"gemini_model"`
	APIKey              string         `mapstructure:"api_key" yaml:"-"`
	Timeout             time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	AvailabilityTimeout time.Duration  `mapstructure:"availability_timeout" yaml:"availability_timeout"`
	Temperature         float64        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens           int            `mapstructure:"max_tokens" yaml:"max_tokens"`
	RateLimit           float64        `mapstructure:"rate_limit" yaml:"rate_limit"`
	WarmUp              bool           `mapstructure:"warm_up" yaml:"warm_up"`
	Summarize           bool           `mapstructure:"summarize" yaml:"summarize"`
}

// MemoryConfig locates the shared navigation memory file.
type MemoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ReportConfig controls where issue reports and catalog exports are written.
type ReportConfig struct {
	Dir               string `mapstructure:"dir" yaml:"dir"`
	ActionHistory     int    `mapstructure:"action_history" yaml:"action_history"`
	StepsPerIssue     int    `mapstructure:"steps_per_issue" yaml:"steps_per_issue"`
	ScreenshotOnIssue bool   `mapstructure:"screenshot_on_issue" yaml:"screenshot_on_issue"`
}

// StoreConfig enables the optional PostgreSQL issue sink.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "explorer")
	v.SetDefault("logger.log_file", "explorer.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.post_load_wait", "500ms")
	v.SetDefault("browser.screenshot_dir", "explorer-output/screenshots")
	v.SetDefault("browser.body_text_limit", 2000)
	v.SetDefault("browser.element_text_limit", 80)

	// -- Agent --
	v.SetDefault("agent.mode", string(ModeExploration))
	v.SetDefault("agent.target_url", "http://localhost:3000")
	v.SetDefault("agent.objective", "Explore every reachable feature of the application and exercise it like a curious user.")
	v.SetDefault("agent.duration", "30m")
	v.SetDefault("agent.max_actions_per_page", 15)
	v.SetDefault("agent.action_delay", "1s")
	v.SetDefault("agent.failure_threshold", 5)
	v.SetDefault("agent.priority_routes", []string{"/", "/polls", "/polls/new", "/forms", "/quizzes", "/settings"})
	v.SetDefault("agent.start_pages", []string{"/"})
	v.SetDefault("agent.missions", defaultMissions())
	v.SetDefault("agent.viewports", []map[string]interface{}{
		{"name": "desktop", "width": 1366, "height": 768},
		{"name": "tablet", "width": 768, "height": 1024},
		{"name": "mobile", "width": 390, "height": 844},
	})
	v.SetDefault("agent.excluded_texts", []string{"Log out", "Logout", "Sign out", "Delete account"})
	v.SetDefault("agent.mission_rotate_after", 10)
	v.SetDefault("agent.snapshot_interval", "5m")
	v.SetDefault("agent.history_capacity", 50)
	v.SetDefault("agent.element_cap", 20)
	v.SetDefault("agent.recent_actions", 5)
	v.SetDefault("agent.instances", 1)
	v.SetDefault("agent.type_sample_text", "Exploratory test input")
	v.SetDefault("agent.include_subdomains", false)

	// -- Oracle --
	v.SetDefault("oracle.provider", string(ProviderOllama))
	v.SetDefault("oracle.fallback_provider", "")
	v.SetDefault("oracle.model", "llama3.1:8b")
	v.SetDefault("oracle.endpoint", "http://localhost:11434")
	v.SetDefault("oracle.gemini_model", "gemini-2.5-flash")
	v.SetDefault("oracle.timeout", "45s")
	v.SetDefault("oracle.availability_timeout", "3s")
	v.SetDefault("oracle.temperature", 0.3)
	v.SetDefault("oracle.max_tokens", 256)
	v.SetDefault("oracle.rate_limit", 2.0)
	v.SetDefault("oracle.warm_up", true)
	v.SetDefault("oracle.summarize", true)

	// -- Memory --
	v.SetDefault("memory.path", "explorer-output/navigation-memory.json")

	// -- Report --
	v.SetDefault("report.dir", "explorer-output/reports")
	v.SetDefault("report.action_history", 200)
	v.SetDefault("report.steps_per_issue", 10)
	v.SetDefault("report.screenshot_on_issue", true)

	// -- Store --
	v.SetDefault("store.enabled", false)
}

func defaultMissions() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id": "create-poll", "name": "Create a poll", "persona": "organiser",
			"goal":        "Create a new poll with at least two options and publish it.",
			"start_route": "/polls/new", "success_pattern": "/poll/",
		},
		{
			"id": "vote", "name": "Vote on a poll", "persona": "participant",
			"goal":        "Open an existing poll, cast a vote and view the results.",
			"start_route": "/polls", "success_pattern": "results",
		},
		{
			"id": "build-quiz", "name": "Build a quiz", "persona": "teacher",
			"goal":        "Create a quiz with a question and a correct answer.",
			"start_route": "/quizzes",
		},
		{
			"id": "tweak-settings", "name": "Change settings", "persona": "power user",
			"goal":        "Change a preference in settings and confirm it persists after reload.",
			"start_route": "/settings", "success_pattern": "saved",
		},
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("oracle.api_key", "EXPLORER_ORACLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("store.dsn", "EXPLORER_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves "~" in every configured filesystem path.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Memory.Path, &c.Report.Dir, &c.Browser.ScreenshotDir, &c.Logger.LogFile} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", p, err)
	}
	return filepath.Clean(expanded), nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if c.Memory.Path == "" {
		return fmt.Errorf("memory.path must not be empty")
	}
	if c.Report.Dir == "" {
		return fmt.Errorf("report.dir must not be empty")
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when the store is enabled (EXPLORER_STORE_DSN)")
	}
	return nil
}

// Validate checks the provider selection and its credentials.
func (o *OracleConfig) Validate() error {
	for _, p := range []OracleProvider{o.Provider, o.FallbackProvider} {
		switch p {
		case "", ProviderOllama, ProviderNone:
		case ProviderGemini:
			if o.APIKey == "" {
				return fmt.Errorf("api_key is required for the gemini provider (EXPLORER_ORACLE_API_KEY)")
			}
		default:
			return fmt.Errorf("unknown provider %q (supported: ollama, gemini, none)", p)
		}
	}
	if o.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if o.FallbackProvider != "" && o.FallbackProvider == o.Provider {
		return fmt.Errorf("fallback_provider must differ from provider")
	}
	return nil
}

// Validate checks the agent settings.
func (a *AgentConfig) Validate() error {
	if a.Mode != ModeExploration && a.Mode != ModeAnomalyHunt {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeExploration, ModeAnomalyHunt, a.Mode)
	}
	if a.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if a.Duration <= 0 {
		return fmt.Errorf("duration must be a positive duration")
	}
	if a.MaxActionsPerPage <= 0 {
		return fmt.Errorf("max_actions_per_page must be a positive integer")
	}
	// The page budget resets the per-page counter, so a count at or above it is never reached.
	if a.MissionRotateAfter > 0 && a.MissionRotateAfter >= a.MaxActionsPerPage {
		return fmt.Errorf("mission_rotate_after (%d) must be lower than max_actions_per_page (%d)", a.MissionRotateAfter, a.MaxActionsPerPage)
	}
	if a.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be a positive integer")
	}
	if a.ActionDelay < 0 {
		return fmt.Errorf("action_delay must not be negative")
	}
	if len(a.PriorityRoutes) == 0 {
		return fmt.Errorf("priority_routes must list at least one route")
	}
	if a.Mode == ModeAnomalyHunt && len(a.Missions) == 0 {
		return fmt.Errorf("anomaly-hunt mode requires at least one mission")
	}
	if a.HistoryCapacity <= 0 {
		return fmt.Errorf("history_capacity must be a positive integer")
	}
	if a.ElementCap <= 0 {
		return fmt.Errorf("element_cap must be a positive integer")
	}
	if a.Instances <= 0 {
		return fmt.Errorf("instances must be a positive integer")
	}
	for _, vp := range a.Viewports {
		if vp.Width <= 0 || vp.Height <= 0 {
			return fmt.Errorf("viewport %q must have positive dimensions", vp.Name)
		}
	}
	return nil
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
