package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env                  string
		Build                string
		Debug                bool
		TestMode             bool
		AppName              string
		SecretKey            string
		AdminCode            string
		PasswordResetTimeout time.Duration
		DefaultFromEmail     string
		SendgridApiKey       string
		RollbarToken         string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Uploads  UploadsConfig
		Log      LogConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		BaseURL         string
		DebugHost       string
		ShutdownTimeout time.Duration
		SessionTTL      time.Duration
		RememberTTL     time.Duration
		CookieSecure    bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	UploadsConfig struct {
		Dir            string
		MaxFilenameLen int
	}

	LogConfig struct {
		Level  string
		Format string // json | console
	}
)

func (c DatabaseConfig) Address() string {
	if c.Port == "" {
		return c.Host
	}
	return c.Host + ":" + c.Port
}

// DefaultFrom parses DefaultFromEmail, falling back to a bare address.
func (c *Config) DefaultFrom() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// MailConfigured reports whether outbound email can be delivered.
func (c *Config) MailConfigured() bool {
	return c.SendgridApiKey != ""
}

// NewConfig loads the configuration: defaults < config/.env.<env> < environment.
func NewConfig() *Config {
	v := viper.New()

	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "CodeDays")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("adminCode", "!MADMIN")
	v.SetDefault("passwordResetTimeout", time.Hour)
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.baseURL", "http://localhost:8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.sessionTTL", 24*time.Hour)
	v.SetDefault("server.rememberTTL", 30*24*time.Hour)
	v.SetDefault("server.cookieSecure", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "codedays")
	v.SetDefault("database.user", "codedays")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.maxFilenameLen", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                  env,
		Build:                v.GetString("build"),
		Debug:                v.GetBool("debug"),
		TestMode:             v.GetBool("testMode"),
		AppName:              v.GetString("appName"),
		SecretKey:            v.GetString("secretKey"),
		AdminCode:            v.GetString("adminCode"),
		PasswordResetTimeout: v.GetDuration("passwordResetTimeout"),
		DefaultFromEmail:     v.GetString("defaultFromEmail"),
		SendgridApiKey:       v.GetString("sendgridApiKey"),
		RollbarToken:         v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			BaseURL:         strings.TrimRight(v.GetString("server.baseURL"), "/"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			SessionTTL:      v.GetDuration("server.sessionTTL"),
			RememberTTL:     v.GetDuration("server.rememberTTL"),
			CookieSecure:    v.GetBool("server.cookieSecure"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Uploads: UploadsConfig{
			Dir:            v.GetString("uploads.dir"),
			MaxFilenameLen: v.GetInt("uploads.maxFilenameLen"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// NewTestConfig returns the configuration used by package tests.
func NewTestConfig() *Config {
	return &Config{
		Env:                  "TEST",
		Build:                "test",
		TestMode:             true,
		AppName:              "CodeDays",
		SecretKey:            "test-secret-key-with-some-length",
		AdminCode:            "!MADMIN",
		PasswordResetTimeout: time.Hour,
		DefaultFromEmail:     "noreply@localhost",
		Server: ServerConfig{
			Address:         ":0",
			Host:            "localhost",
			BaseURL:         "http://localhost:8000",
			ShutdownTimeout: time.Second,
			SessionTTL:      24 * time.Hour,
			RememberTTL:     30 * 24 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "memory"},
		Uploads:  UploadsConfig{Dir: "uploads", MaxFilenameLen: 100},
		Log:      LogConfig{Level: "error", Format: "console"},
	}
}
