package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Verifier  VerifierConfig  `yaml:"verifier" mapstructure:"verifier"`
	Ranker    RankerConfig    `yaml:"ranker" mapstructure:"ranker"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	FollowUp  FollowUpConfig  `yaml:"followup" mapstructure:"followup"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Compose   ComposeConfig   `yaml:"compose" mapstructure:"compose"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// VerifierConfig configures contact verification. Score weights are
// additive; a contact is verified at VerifiedThreshold and rejected below.
type VerifierConfig struct {
	SyntaxWeight       int      `yaml:"syntax_weight" mapstructure:"syntax_weight"`
	MXWeight           int      `yaml:"mx_weight" mapstructure:"mx_weight"`
	HRPatternWeight    int      `yaml:"hr_pattern_weight" mapstructure:"hr_pattern_weight"`
	CorporateWeight    int      `yaml:"corporate_weight" mapstructure:"corporate_weight"`
	DomainMatchWeight  int      `yaml:"domain_match_weight" mapstructure:"domain_match_weight"`
	VerifiedThreshold  int      `yaml:"verified_threshold" mapstructure:"verified_threshold"`
	DNSTimeoutSecs     int      `yaml:"dns_timeout_secs" mapstructure:"dns_timeout_secs"`
	DisposableDomains  []string `yaml:"disposable_domains" mapstructure:"disposable_domains"`
	FreeDomains        []string `yaml:"free_domains" mapstructure:"free_domains"`
	SystemPrefixes     []string `yaml:"system_prefixes" mapstructure:"system_prefixes"`
	HRKeywords         []string `yaml:"hr_keywords" mapstructure:"hr_keywords"`
	KnownBadAddresses  []string `yaml:"known_bad_addresses" mapstructure:"known_bad_addresses"`
	KnownGoodAddresses []string `yaml:"known_good_addresses" mapstructure:"known_good_addresses"`
}

// RankerConfig configures lead priority scoring. Tier membership lists are
// lowercase company names; tier bonuses and weights are tunables, not
// contracts.
type RankerConfig struct {
	FlagshipCompanies []string `yaml:"flagship_companies" mapstructure:"flagship_companies"`
	ScalingCompanies  []string `yaml:"scaling_companies" mapstructure:"scaling_companies"`
	FlagshipBonus     float64  `yaml:"flagship_bonus" mapstructure:"flagship_bonus"`
	ScalingBonus      float64  `yaml:"scaling_bonus" mapstructure:"scaling_bonus"`
	VolumeBonus       float64  `yaml:"volume_bonus" mapstructure:"volume_bonus"`
	FreshnessWeight   float64  `yaml:"freshness_weight" mapstructure:"freshness_weight"`
	KeywordBonus      float64  `yaml:"keyword_bonus" mapstructure:"keyword_bonus"`
	KeywordBonusCap   float64  `yaml:"keyword_bonus_cap" mapstructure:"keyword_bonus_cap"`
	VerifierWeight    float64  `yaml:"verifier_weight" mapstructure:"verifier_weight"`
	SkillProfilePath  string   `yaml:"skill_profile_path" mapstructure:"skill_profile_path"`
}

// SchedulerConfig configures a campaign run.
type SchedulerConfig struct {
	MaxSendsPerRun int    `yaml:"max_sends_per_run" mapstructure:"max_sends_per_run"`
	WorkerLimit    int    `yaml:"worker_limit" mapstructure:"worker_limit"`
	LockPath       string `yaml:"lock_path" mapstructure:"lock_path"`
}

// FollowUpConfig configures follow-up staging.
type FollowUpConfig struct {
	Day3Offset  int `yaml:"day3_offset_days" mapstructure:"day3_offset_days"`
	Day7Offset  int `yaml:"day7_offset_days" mapstructure:"day7_offset_days"`
	Day14Offset int `yaml:"day14_offset_days" mapstructure:"day14_offset_days"`
}

// RetryConfig configures bounce retries.
type RetryConfig struct {
	// MaxContactsPerCompany counts distinct contacts tried per company,
	// including the original recipient.
	MaxContactsPerCompany int `yaml:"max_contacts_per_company" mapstructure:"max_contacts_per_company"`
}

// TransportConfig configures the SMTP transport collaborator.
type TransportConfig struct {
	Host            string `yaml:"host" mapstructure:"host"`
	Port            int    `yaml:"port" mapstructure:"port"`
	Username        string `yaml:"username" mapstructure:"username"`
	Password        string `yaml:"password" mapstructure:"password"`
	FromEmail       string `yaml:"from_email" mapstructure:"from_email"`
	SendTimeoutSecs int    `yaml:"send_timeout_secs" mapstructure:"send_timeout_secs"`
	MaxSendRate     int    `yaml:"max_send_rate" mapstructure:"max_send_rate"`
	InRunRetries    int    `yaml:"in_run_retries" mapstructure:"in_run_retries"`
	RetryBackoffMs  int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackMs  int    `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	BreakerFailures int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSec int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	DryRun          bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// ComposeConfig configures email composition.
type ComposeConfig struct {
	SenderName    string `yaml:"sender_name" mapstructure:"sender_name"`
	SenderPhone   string `yaml:"sender_phone" mapstructure:"sender_phone"`
	ExperienceYrs int    `yaml:"experience_years" mapstructure:"experience_years"`
	SkillsArea    string `yaml:"skills_area" mapstructure:"skills_area"`
	AttachmentRef string `yaml:"attachment_ref" mapstructure:"attachment_ref"`
	UseModel      bool   `yaml:"use_model" mapstructure:"use_model"`
	AnthropicKey  string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model         string `yaml:"model" mapstructure:"model"`
}

// NotifyConfig configures the summary webhook.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotionConfig holds the optional Notion lead-queue credentials.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// ServerConfig configures the signal webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("verifier.syntax_weight", 20)
	v.SetDefault("verifier.mx_weight", 30)
	v.SetDefault("verifier.hr_pattern_weight", 20)
	v.SetDefault("verifier.corporate_weight", 15)
	v.SetDefault("verifier.domain_match_weight", 15)
	v.SetDefault("verifier.verified_threshold", 60)
	v.SetDefault("verifier.dns_timeout_secs", 5)
	v.SetDefault("verifier.disposable_domains", []string{
		"tempmail", "guerrillamail", "10minutemail", "mailinator",
		"throwaway", "fakeinbox", "temp-mail", "discard.email",
	})
	v.SetDefault("verifier.free_domains", []string{
		"gmail.com", "yahoo.com", "hotmail.com", "outlook.com",
		"aol.com", "icloud.com", "mail.com", "protonmail.com",
	})
	v.SetDefault("verifier.system_prefixes", []string{
		"noreply", "no-reply", "donotreply", "mailer-daemon",
		"postmaster", "abuse", "spam",
	})
	v.SetDefault("verifier.hr_keywords", []string{
		"career", "hr", "recruit", "hiring", "jobs", "job",
		"talent", "people", "staffing",
	})

	v.SetDefault("ranker.flagship_bonus", 30.0)
	v.SetDefault("ranker.scaling_bonus", 20.0)
	v.SetDefault("ranker.volume_bonus", 10.0)
	v.SetDefault("ranker.freshness_weight", 25.0)
	v.SetDefault("ranker.keyword_bonus", 2.0)
	v.SetDefault("ranker.keyword_bonus_cap", 20.0)
	v.SetDefault("ranker.verifier_weight", 10.0)
	v.SetDefault("ranker.skill_profile_path", "profile.yaml")

	v.SetDefault("scheduler.max_sends_per_run", 20)
	v.SetDefault("scheduler.worker_limit", 5)
	v.SetDefault("scheduler.lock_path", "outreach.lock")

	v.SetDefault("followup.day3_offset_days", 3)
	v.SetDefault("followup.day7_offset_days", 7)
	v.SetDefault("followup.day14_offset_days", 14)

	v.SetDefault("retry.max_contacts_per_company", 2)

	v.SetDefault("transport.host", "smtp.gmail.com")
	v.SetDefault("transport.port", 587)
	v.SetDefault("transport.send_timeout_secs", 30)
	v.SetDefault("transport.max_send_rate", 10)
	v.SetDefault("transport.in_run_retries", 2)
	v.SetDefault("transport.retry_backoff_ms", 500)
	v.SetDefault("transport.retry_max_backoff_ms", 5000)
	v.SetDefault("transport.breaker_failures", 5)
	v.SetDefault("transport.breaker_reset_secs", 30)

	v.SetDefault("compose.model", "claude-haiku-4-5-20251001")

	v.SetDefault("notify.timeout_secs", 10)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
