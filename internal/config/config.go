// File: internal/config/config.go
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix viper uses when mapping keys to environment variables.
const EnvPrefix = "AUTONOTE"

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Note     NoteConfig     `mapstructure:"note" yaml:"note"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Content  ContentConfig  `mapstructure:"content" yaml:"content"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	// ErrorFile receives only error level entries and above.
	ErrorFile  string      `mapstructure:"error_file" yaml:"error_file"`
	MaxSize    int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int         `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool        `mapstructure:"compress" yaml:"compress"`
	Colors     ColorConfig `mapstructure:"colors" yaml:"colors"`
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

// AppConfig carries process wide settings.
type AppConfig struct {
	Env          string `mapstructure:"env" yaml:"env"`
	Timezone     string `mapstructure:"timezone" yaml:"timezone"`
	PostingTime  string `mapstructure:"posting_time" yaml:"posting_time"`
	GCPProjectID string `mapstructure:"gcp_project_id" yaml:"gcp_project_id"`
}

// IsDevelopment reports whether error details may be exposed to HTTP clients.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "" || a.Env == "development"
}

// Location resolves the configured timezone, falling back to the local zone.
func (a AppConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RateLimit is the sustained number of requests per second each client IP may issue
	// against the task endpoints.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// BrowserConfig configures the headless browser process.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// NoteConfig describes the publication surface: credentials, URLs, selectors and pacing.
type NoteConfig struct {
	Email             string        `mapstructure:"email" yaml:"email"`
	Password          string        `mapstructure:"password" yaml:"password"`
	PostIntervalHours int           `mapstructure:"post_interval_hours" yaml:"post_interval_hours"`
	LoginURL          string        `mapstructure:"login_url" yaml:"login_url"`
	ComposeURL        string        `mapstructure:"compose_url" yaml:"compose_url"`
	AccountURL        string        `mapstructure:"account_url" yaml:"account_url"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	EditorTimeout     time.Duration `mapstructure:"editor_timeout" yaml:"editor_timeout"`
	Selectors         NoteSelectors `mapstructure:"selectors" yaml:"selectors"`
	Delays            NoteDelays    `mapstructure:"delays" yaml:"delays"`
}

// NoteSelectors are the CSS selectors of every element the driver touches.
type NoteSelectors struct {
	Email              string `mapstructure:"email" yaml:"email"`
	Password           string `mapstructure:"password" yaml:"password"`
	Submit             string `mapstructure:"submit" yaml:"submit"`
	AuthMarker         string `mapstructure:"auth_marker" yaml:"auth_marker"`
	InvalidCredentials string `mapstructure:"invalid_credentials" yaml:"invalid_credentials"`
	Editor             string `mapstructure:"editor" yaml:"editor"`
	Title              string `mapstructure:"title" yaml:"title"`
	Body               string `mapstructure:"body" yaml:"body"`
	PublishButton      string `mapstructure:"publish_button" yaml:"publish_button"`
	PublishModal       string `mapstructure:"publish_modal" yaml:"publish_modal"`
	PaidOption         string `mapstructure:"paid_option" yaml:"paid_option"`
	Price              string `mapstructure:"price" yaml:"price"`
	Hashtag            string `mapstructure:"hashtag" yaml:"hashtag"`
	Confirm            string `mapstructure:"confirm" yaml:"confirm"`
	ListItem           string `mapstructure:"list_item" yaml:"list_item"`
	ListTitle          string `mapstructure:"list_title" yaml:"list_title"`
	ListLink           string `mapstructure:"list_link" yaml:"list_link"`
	ListDate           string `mapstructure:"list_date" yaml:"list_date"`
}

// NoteDelays are the fixed settle pauses between UI steps.
type NoteDelays struct {
	BodyFocus    time.Duration `mapstructure:"body_focus" yaml:"body_focus"`
	TypingSettle time.Duration `mapstructure:"typing_settle" yaml:"typing_settle"`
	Hashtag      time.Duration `mapstructure:"hashtag" yaml:"hashtag"`
	DraftSettle  time.Duration `mapstructure:"draft_settle" yaml:"draft_settle"`
}

// CatalogConfig configures the commerce catalog client.
type CatalogConfig struct {
	AccessKey          string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey          string        `mapstructure:"secret_key" yaml:"secret_key"`
	AssociateTag       string        `mapstructure:"associate_tag" yaml:"associate_tag"`
	Region             string        `mapstructure:"region" yaml:"region"`
	Endpoint           string        `mapstructure:"endpoint" yaml:"endpoint"`
	Scheme             string        `mapstructure:"scheme" yaml:"scheme"`
	AffiliateBaseURL   string        `mapstructure:"affiliate_base_url" yaml:"affiliate_base_url"`
	RateLimitPerSecond int           `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent          string        `mapstructure:"user_agent" yaml:"user_agent"`
	Categories         []string      `mapstructure:"categories" yaml:"categories"`
	Keywords           []string      `mapstructure:"keywords" yaml:"keywords"`
	// KeywordsPerCategory bounds how many keywords are searched in each category.
	KeywordsPerCategory int     `mapstructure:"keywords_per_category" yaml:"keywords_per_category"`
	MinRating           float64 `mapstructure:"min_rating" yaml:"min_rating"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the language model used for article generation.
type LLMConfig struct {
	Provider           LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model              string        `mapstructure:"model" yaml:"model"`
	APIKey             string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url"`
	APITimeout         time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	Temperature        float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	PresencePenalty    float64       `mapstructure:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty   float64       `mapstructure:"frequency_penalty" yaml:"frequency_penalty"`
}

// RetryConfig configures the bounded retry applied to network calls and UI steps.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	// MaxDelay caps the doubling pause between attempts.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// ContentConfig configures article generation and posting defaults.
type ContentConfig struct {
	MaxProductsPerPost int      `mapstructure:"max_products_per_post" yaml:"max_products_per_post"`
	DefaultHashtags    []string `mapstructure:"default_hashtags" yaml:"default_hashtags"`
	CharacterVersion   string   `mapstructure:"character_version" yaml:"character_version"`
	MultiProductTheme  string   `mapstructure:"multi_product_theme" yaml:"multi_product_theme"`
}

// DatabaseConfig holds the database connection details. An empty URL disables run history.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
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
	v.SetDefault("logger.service_name", "autonote")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.error_file", "")
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

	// -- App --
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "Asia/Tokyo")
	v.SetDefault("app.posting_time", "09:00")
	v.SetDefault("app.gcp_project_id", "")

	// -- Server --
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.screenshot_dir", ".")

	// -- Note --
	v.SetDefault("note.post_interval_hours", 24)
	v.SetDefault("note.login_url", "https://note.com/login")
	v.SetDefault("note.compose_url", "https://note.com/new")
	v.SetDefault("note.account_url", "https://note.com/settings")
	v.SetDefault("note.auth_timeout", "10s")
	v.SetDefault("note.editor_timeout", "15s")
	v.SetDefault("note.selectors.email", `input[type="email"]`)
	v.SetDefault("note.selectors.password", `input[type="password"]`)
	v.SetDefault("note.selectors.submit", `button[type="submit"]`)
	v.SetDefault("note.selectors.auth_marker", ".p-headerUser")
	v.SetDefault("note.selectors.invalid_credentials", `.p-login__error, [role="alert"]`)
	v.SetDefault("note.selectors.editor", ".p-entryEditor")
	v.SetDefault("note.selectors.title", ".p-entryEditor-title textarea")
	v.SetDefault("note.selectors.body", ".p-entryEditor-body")
	v.SetDefault("note.selectors.publish_button", ".p-entryEditor-publishButton")
	v.SetDefault("note.selectors.publish_modal", ".p-publishModal")
	v.SetDefault("note.selectors.paid_option", `.p-publishModal-priceType input[value="paid"]`)
	v.SetDefault("note.selectors.price", ".p-publishModal-price input")
	v.SetDefault("note.selectors.hashtag", ".p-publishModal-hashtags input")
	v.SetDefault("note.selectors.confirm", ".p-publishModal-publishButton")
	v.SetDefault("note.selectors.list_item", ".p-noteList-item")
	v.SetDefault("note.selectors.list_title", ".p-noteList-title")
	v.SetDefault("note.selectors.list_link", "a")
	v.SetDefault("note.selectors.list_date", ".p-noteList-date")
	v.SetDefault("note.delays.body_focus", "1s")
	v.SetDefault("note.delays.typing_settle", "2s")
	v.SetDefault("note.delays.hashtag", "500ms")
	v.SetDefault("note.delays.draft_settle", "2s")

	// -- Catalog --
	v.SetDefault("catalog.region", "us-east-1")
	v.SetDefault("catalog.endpoint", "webservices.amazon.com")
	v.SetDefault("catalog.scheme", "https")
	v.SetDefault("catalog.affiliate_base_url", "https://www.amazon.co.jp")
	v.SetDefault("catalog.rate_limit_per_second", 10)
	v.SetDefault("catalog.timeout", "10s")
	v.SetDefault("catalog.user_agent", "AutoNoteWriter/1.0")
	v.SetDefault("catalog.categories", []string{"Home", "Kitchen", "Electronics", "Fashion"})
	v.SetDefault("catalog.keywords", []string{"ミニマル", "シンプル", "おしゃれ", "モダン", "スタイリッシュ", "北欧", "デザイン"})
	v.SetDefault("catalog.keywords_per_category", 2)
	v.SetDefault("catalog.min_rating", 4.0)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.rate_limit_per_minute", 60)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.presence_penalty", 0.1)
	v.SetDefault("llm.frequency_penalty", 0.1)

	// -- Retry --
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")

	// -- Content --
	v.SetDefault("content.max_products_per_post", 1)
	v.SetDefault("content.default_hashtags", []string{"シンプル", "おしゃれ", "アイテム"})
	v.SetDefault("content.character_version", "1.0")
	v.SetDefault("content.multi_product_theme", "おすすめアイテム")

	v.SetDefault("database.url", "")
}

// legacyEnv maps configuration keys to the plain environment variable names used by
// existing deployments. The prefixed name always takes precedence.
var legacyEnv = map[string]string{
	"catalog.access_key":            "AMAZON_ACCESS_KEY",
	"catalog.secret_key":            "AMAZON_SECRET_KEY",
	"catalog.associate_tag":         "AMAZON_ASSOCIATE_TAG",
	"catalog.region":                "AMAZON_REGION",
	"catalog.rate_limit_per_second": "AMAZON_API_RATE_LIMIT",
	"catalog.min_rating":            "MIN_REVIEW_RATING",
	"catalog.categories":            "PREFERRED_CATEGORIES",
	"llm.api_key":                   "OPENAI_API_KEY",
	"llm.model":                     "OPENAI_MODEL",
	"llm.base_url":                  "OPENAI_BASE_URL",
	"llm.rate_limit_per_minute":     "OPENAI_API_RATE_LIMIT",
	"note.email":                    "NOTE_EMAIL",
	"note.password":                 "NOTE_PASSWORD",
	"note.post_interval_hours":      "NOTE_POST_INTERVAL",
	"app.env":                       "NODE_ENV",
	"app.gcp_project_id":            "GCP_PROJECT_ID",
	"app.posting_time":              "POSTING_TIME",
	"app.timezone":                  "TIMEZONE",
	"server.port":                   "PORT",
	"logger.level":                  "LOG_LEVEL",
	"content.max_products_per_post": "MAX_PRODUCTS_PER_POST",
	"database.url":                  "DATABASE_URL",
}

// BindEnv binds every key to its prefixed environment variable and, where one exists,
// to its legacy unprefixed name.
func BindEnv(v *viper.Viper) {
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// It does not validate; commands that need credentials call Validate themselves.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

var gcpProjectPattern = regexp.MustCompile(`^[a-z][-a-z0-9]{5,29}$`)

// Check reports every missing or malformed setting. An empty slice means the
// configuration can run the full pipeline.
func (c *Config) Check() []string {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if len(c.Catalog.AccessKey) < 10 {
		add("catalog.access_key must be at least 10 characters")
	}
	if len(c.Catalog.SecretKey) < 20 {
		add("catalog.secret_key must be at least 20 characters")
	}
	if len(c.Catalog.AssociateTag) < 3 {
		add("catalog.associate_tag must be at least 3 characters")
	}
	if c.Catalog.RateLimitPerSecond <= 0 {
		add("catalog.rate_limit_per_second must be a positive integer")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if !strings.HasPrefix(c.LLM.APIKey, "sk-") {
			add("llm.api_key must be an OpenAI key starting with sk-")
		}
	case ProviderGemini:
		if c.LLM.APIKey == "" {
			add("llm.api_key is required")
		}
	default:
		add("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.RateLimitPerMinute <= 0 {
		add("llm.rate_limit_per_minute must be a positive integer")
	}

	if !strings.Contains(c.Note.Email, "@") {
		add("note.email must be an email address")
	}
	if len(c.Note.Password) < 6 {
		add("note.password must be at least 6 characters")
	}

	if c.App.GCPProjectID != "" && !gcpProjectPattern.MatchString(c.App.GCPProjectID) {
		add("app.gcp_project_id %q is not a valid project id", c.App.GCPProjectID)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		add("app.timezone %q is not a known location", c.App.Timezone)
	}

	if c.Retry.MaxAttempts <= 0 {
		add("retry.max_attempts must be a positive integer")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		add("browser viewport dimensions must be positive")
	}
	if c.Content.MaxProductsPerPost <= 0 {
		add("content.max_products_per_post must be a positive integer")
	}
	return issues
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if issues := c.Check(); len(issues) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Mask hides all but the first few characters of a secret for display.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
