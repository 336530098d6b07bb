package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	LMSConfig struct {
		BaseURL string
		APIKey  string
		Timeout time.Duration
	}

	CacheConfig struct {
		StatsTTL     time.Duration
		DashboardTTL time.Duration
		ProgressTTL  time.Duration
	}

	CronConfig struct {
		ExportCleanup string
		StatsWarmup   string
		ExportMaxAge  time.Duration
	}

	Config struct {
		Env             string
		Build           string
		AppName         string
		Debug           bool
		TestMode        bool
		SecretKey       string
		FrontendBaseURL string
		WorkDir         string
		StorageRoot     string
		RollbarToken    string
		SendgridApiKey  string
		// GradingScale overrides the default letter thresholds, e.g. "A=93,A-=90,B+=87".
		GradingScale string
		JobWorkers   int

		PasswordResetTimeout time.Duration

		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		LMS      LMSConfig
		Cache    CacheConfig
		Cron     CronConfig
	}
)

// NewConfig loads the configuration of the current environment ($ENV: DEV (default), TEST, QA, PROD).
// Values are read from "<ENV>_"-prefixed environment variables, optionally seeded from config/.env.<env>.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		WorkDir:          wd,
		StorageRoot:      v.GetString("storageRoot"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		GradingScale:     v.GetString("gradingScale"),
		JobWorkers:       v.GetInt("jobWorkers"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		LMS: LMSConfig{
			BaseURL: strings.TrimRight(v.GetString("lms.baseURL"), "/"),
			APIKey:  v.GetString("lms.apiKey"),
			Timeout: v.GetDuration("lms.timeout"),
		},
		Cache: CacheConfig{
			StatsTTL:     v.GetDuration("cache.statsTTL"),
			DashboardTTL: v.GetDuration("cache.dashboardTTL"),
			ProgressTTL:  v.GetDuration("cache.progressTTL"),
		},
		Cron: CronConfig{
			ExportCleanup: v.GetString("cron.exportCleanup"),
			StatsWarmup:   v.GetString("cron.statsWarmup"),
			ExportMaxAge:  v.GetDuration("cron.exportMaxAge"),
		},
	}
	conf.PasswordResetTimeout = v.GetDuration("passwordResetTimeout")
	if conf.StorageRoot == "" {
		conf.StorageRoot = filepath.Join(wd, "media")
	}
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Academia")
	v.SetDefault("secretKey", "k2#x9!vq7=mz&bt0@r4(lw8%yh^c1_f6$pn3)sd+ga5*ej")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("storageRoot", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("gradingScale", "")
	v.SetDefault("jobWorkers", 2)
	v.SetDefault("passwordResetTimeout", 3*24*time.Hour)
	v.SetDefault("defaultFromEmail", "Academia <noreply@localhost>")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "academia")
	v.SetDefault("database.user", "academia")
	v.SetDefault("database.password", "academia")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lms.baseURL", "http://localhost:8080")
	v.SetDefault("lms.apiKey", "")
	v.SetDefault("lms.timeout", 10*time.Second)

	v.SetDefault("cache.statsTTL", 5*time.Minute)
	v.SetDefault("cache.dashboardTTL", 2*time.Minute)
	v.SetDefault("cache.progressTTL", 10*time.Minute)

	v.SetDefault("cron.exportCleanup", "0 3 * * *")
	v.SetDefault("cron.statsWarmup", "*/10 * * * *")
	v.SetDefault("cron.exportMaxAge", 7*24*time.Hour)
}

// DefaultFromEmail parses the configured sender; it falls back to a bare address.
func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
