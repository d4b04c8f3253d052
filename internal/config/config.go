package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Review   ReviewConfig
	AI       AIConfig
	WeChat   WeChatConfig
	Storage  StorageConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	FrontendURL string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
	Debug     bool
}

// ReviewConfig holds invitation and review settings
type ReviewConfig struct {
	InvitationCodeLength   int
	InvitationExpireDays   int
	DefaultInvitationQuota int
	BypassCodes            []string
	RejectTestCodes        []string
	Workers                int
	QueueSize              int
	TaskTimeout            time.Duration
}

// AIConfig holds extraction gateway settings
type AIConfig struct {
	APIType string // claude or openai
	APIKey  string
	APIURL  string
	Model   string
	Timeout time.Duration
}

// WeChatConfig holds mini-program login settings
type WeChatConfig struct {
	AppID     string
	AppSecret string
}

// StorageConfig holds local photo storage settings
type StorageConfig struct {
	UploadDir    string
	PostDir      string
	PublicPrefix string // URL prefix the upload root is served under
	AdminContact string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // console or json
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "rainbow_register"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "./rainbow_register.db"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", ""),
		},
		App: AppConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Debug:     getEnvBool("DEBUG", false),
		},
		Review: ReviewConfig{
			InvitationCodeLength:   getEnvInt("INVITATION_CODE_LENGTH", 6),
			InvitationExpireDays:   getEnvInt("INVITATION_EXPIRE_DAYS", 7),
			DefaultInvitationQuota: getEnvInt("DEFAULT_INVITATION_QUOTA", 2),
			BypassCodes:            getEnvList("REVIEW_BYPASS_CODES"),
			RejectTestCodes:        getEnvList("REVIEW_REJECT_TEST_CODES"),
			Workers:                getEnvInt("REVIEW_WORKERS", 4),
			QueueSize:              getEnvInt("REVIEW_QUEUE_SIZE", 256),
			TaskTimeout:            getEnvDuration("REVIEW_TASK_TIMEOUT", 2*time.Minute),
		},
		AI: AIConfig{
			APIType: getEnv("AI_API_TYPE", "openai"),
			APIKey:  getEnv("AI_API_KEY", ""),
			APIURL:  getEnv("AI_API_URL", ""),
			Model:   getEnv("AI_MODEL", "glm-4.7-flash"),
			Timeout: getEnvDuration("AI_TIMEOUT", 60*time.Second),
		},
		WeChat: WeChatConfig{
			AppID:     getEnv("WECHAT_APP_ID", ""),
			AppSecret: getEnv("WECHAT_APP_SECRET", ""),
		},
		Storage: StorageConfig{
			UploadDir:    getEnv("UPLOAD_DIR", "./uploads/photos"),
			PostDir:      getEnv("POST_DIR", "./uploads/posts"),
			PublicPrefix: getEnv("PUBLIC_UPLOAD_PREFIX", "/uploads/posts"),
			AdminContact: getEnv("ADMIN_CONTACT", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.AI.APIType {
	case "claude", "openai":
	default:
		return fmt.Errorf("unsupported AI_API_TYPE %q", c.AI.APIType)
	}

	if c.Review.InvitationCodeLength < 4 {
		return fmt.Errorf("INVITATION_CODE_LENGTH must be at least 4")
	}
	if c.Review.Workers < 1 {
		return fmt.Errorf("REVIEW_WORKERS must be at least 1")
	}

	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// InvitationTTL returns the default expiry window for minted codes
func (c *Config) InvitationTTL() time.Duration {
	return time.Duration(c.Review.InvitationExpireDays) * 24 * time.Hour
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
