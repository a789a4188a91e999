package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Mail     MailConfig     `mapstructure:"mail"     validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// PublicURL is the externally reachable base URL used in activation links.
	PublicURL string `mapstructure:"public_url" validate:"required,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret"                     validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes"         validate:"required,gt=0,lt=44640"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0,lt=525600"`
	// VerificationTokenLifetimeMinutes bounds how long an account activation link stays valid.
	VerificationTokenLifetimeMinutes int `mapstructure:"verification_token_lifetime_minutes" validate:"required,gt=0"`
	// BCryptCost is the cost used to hash new passwords.
	BCryptCost int `mapstructure:"bcrypt_cost" validate:"required,gte=4,lte=31"`
}

// MailConfig selects and configures the outgoing mail transport.
type MailConfig struct {
	// Transport is one of "log" (write mails to the log), "smtp" or "gmail".
	Transport string      `mapstructure:"transport" validate:"required,oneof=log smtp gmail"`
	From      string      `mapstructure:"from"      validate:"required,email"`
	SMTP      SMTPConfig  `mapstructure:"smtp"      validate:"required_if=Transport smtp"`
	Gmail     GmailConfig `mapstructure:"gmail"     validate:"required_if=Transport gmail"`
}

// SMTPConfig holds the settings of the SMTP mail transport.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"omitempty,gt=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GmailConfig holds the OAuth2 client credentials of the Gmail API transport.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// TaskConfig contains settings for the deferred task runner.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count"           validate:"required,gt=0"`
	QueueSize           int `mapstructure:"queue_size"             validate:"required,gt=0"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"  validate:"required,gt=0"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"required,gt=0"`
	MaxAttempts         int `mapstructure:"max_attempts"           validate:"required,gt=0"`
}

// StorageConfig contains settings for issue attachment storage.
type StorageConfig struct {
	AttachmentsDir string `mapstructure:"attachments_dir" validate:"required"`
	MaxUploadMB    int    `mapstructure:"max_upload_mb"   validate:"required,gt=0"`
}
