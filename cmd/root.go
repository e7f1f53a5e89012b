package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/hr-intake/internal/server"
)

const (
	app = "hr-intake"
)

type Config struct {
	Storage  *StorageConfig  `mapstructure:"storage"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	AI       *AIConfig       `mapstructure:"ai"`
	Document *DocumentConfig `mapstructure:"document"`
	Export   *ExportConfig   `mapstructure:"export"`
	Auth     *AuthConfig     `mapstructure:"auth"`
	Server   server.Config   `mapstructure:"server"`
}

type StorageConfig struct {
	// Driver is memory or postgres.
	Driver          string `mapstructure:"driver"`
	DatabaseURL     string `mapstructure:"database-url"`
	DatabaseURLFile string `mapstructure:"database-url-file"`
	Migrate         bool   `mapstructure:"migrate"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	PasswordFile string        `mapstructure:"password-file"`
	DB           int           `mapstructure:"db"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey        string `mapstructure:"api-key"`
	APIKeyFile    string `mapstructure:"api-key-file"`
	Model         string `mapstructure:"model"`
	MaxRetries    int    `mapstructure:"max-retries"`
	MaxToolRounds int    `mapstructure:"max-tool-rounds"`
	MaxLogLength  int    `mapstructure:"max-log-length"`
}

type DocumentConfig struct {
	MaxTokens int `mapstructure:"max-tokens"`
}

type ExportConfig struct {
	Sheets *SheetsConfig `mapstructure:"sheets"`
	Kafka  *KafkaConfig  `mapstructure:"kafka"`
}

type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet-id"`
	Worksheet       string `mapstructure:"worksheet"`
	CredentialsFile string `mapstructure:"credentials-file"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuthConfig struct {
	// Username and Password describe a single user configured from the environment.
	Username string       `mapstructure:"username"`
	Password string       `mapstructure:"password"`
	Users    []UserConfig `mapstructure:"users"`
}

type UserConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	PasswordHash string `mapstructure:"password-hash"`
	Role         string `mapstructure:"role"`
}

var envBindings = map[string]string{
	"storage.driver":                 "STORAGE_DRIVER",
	"storage.database-url":           "DATABASE_URL",
	"storage.database-url-file":      "DATABASE_URL_FILE",
	"redis.addr":                     "REDIS_ADDR",
	"redis.password":                 "REDIS_PASSWORD",
	"ai.gemini.api-key":              "GEMINI_API_KEY",
	"ai.gemini.api-key-file":         "GEMINI_API_KEY_FILE",
	"ai.gemini.model":                "GEMINI_MODEL",
	"export.sheets.spreadsheet-id":   "GOOGLE_SHEETS_SPREADSHEET_ID",
	"export.sheets.credentials-file": "GOOGLE_CREDENTIALS_PATH",
	"export.kafka.brokers":           "KAFKA_BROKERS",
	"auth.username":                  "HR_INTAKE_USERNAME",
	"auth.password":                  "HR_INTAKE_PASSWORD",
	"server.addr":                    "HR_INTAKE_ADDR",
	"server.session-idle":            "HR_INTAKE_SESSION_IDLE",
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hr-intake is a conversational assistant that interviews recruiters to build an ideal candidate profile",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hr-intake.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Values from .env only fill variables that are not set yet.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional when everything comes from the environment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}

	return config, nil
}
