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

const (
	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"

	DatabaseEnginePostgres = "postgres"
	DatabaseEngineMemory   = "memory" // non-persistent, DEV only
)

type (
	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Storage   StorageConfig
		Redis     RedisConfig
		RateLimit RateLimitConfig
		Otel      OtelConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxIdleConns  int
		MaxOpenConns  int
	}

	StorageConfig struct {
		Backend          string // local | gcs
		LocalDir         string
		PublicBaseURL    string
		ThumbnailsBucket string
		VideosBucket     string
		GCSEndpoint      string // emulator only
		MaxThumbnailSize int64
		MaxVideoSize     int64
	}

	RedisConfig struct {
		Addr        string
		Password    string
		DB          int
		DialTimeout time.Duration
	}

	RateLimitConfig struct {
		Requests int
		Window   time.Duration
	}

	OtelConfig struct {
		Enabled     bool
		ServiceName string
		Endpoint    string
		Insecure    bool
		SampleRatio float64
	}
)

func (dbc DatabaseConfig) Address() string {
	return dbc.Host + ":" + dbc.Port
}

// EmailServiceConfigured reports whether real emails can be delivered.
func (conf *Config) EmailServiceConfigured() bool {
	return conf.SendgridApiKey != "" || conf.Debug || conf.TestMode
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Cornelabs School")
	v.SetDefault("secretKey", "z9@k2l#x!0r3%6m$b5q+h8p^w1e*c4t(y7u)n&v-f_g=j[d]")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Cornelabs School <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Minute) // video uploads
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", DatabaseEnginePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "lms")
	v.SetDefault("database.user", "lms")
	v.SetDefault("database.password", "lms")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxOpenConns", 25)

	v.SetDefault("storage.backend", StorageBackendLocal)
	v.SetDefault("storage.localDir", "media")
	v.SetDefault("storage.publicBaseURL", "http://localhost:8000")
	v.SetDefault("storage.thumbnailsBucket", "thumbnails")
	v.SetDefault("storage.videosBucket", "course-videos")
	v.SetDefault("storage.maxThumbnailSize", 5<<20)
	v.SetDefault("storage.maxVideoSize", 500<<20)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialTimeout", 5*time.Second)

	v.SetDefault("rateLimit.requests", 5)
	v.SetDefault("rateLimit.window", time.Minute)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.serviceName", "lms-api")
	v.SetDefault("otel.sampleRatio", 1.0)
}

// NewConfig loads the app configuration from the environment.
// Variables are prefixed with the current ENV, e.g. PROD_SECRETKEY or PROD_SERVER_ADDRESS.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *fromEmail,
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
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
			MaxIdleConns:  v.GetInt("database.maxIdleConns"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Storage: StorageConfig{
			Backend:          v.GetString("storage.backend"),
			LocalDir:         v.GetString("storage.localDir"),
			PublicBaseURL:    strings.TrimRight(v.GetString("storage.publicBaseURL"), "/"),
			ThumbnailsBucket: v.GetString("storage.thumbnailsBucket"),
			VideosBucket:     v.GetString("storage.videosBucket"),
			GCSEndpoint:      v.GetString("storage.gcsEndpoint"),
			MaxThumbnailSize: v.GetInt64("storage.maxThumbnailSize"),
			MaxVideoSize:     v.GetInt64("storage.maxVideoSize"),
		},
		Redis: RedisConfig{
			Addr:        v.GetString("redis.addr"),
			Password:    v.GetString("redis.password"),
			DB:          v.GetInt("redis.db"),
			DialTimeout: v.GetDuration("redis.dialTimeout"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("rateLimit.requests"),
			Window:   v.GetDuration("rateLimit.window"),
		},
		Otel: OtelConfig{
			Enabled:     v.GetBool("otel.enabled"),
			ServiceName: v.GetString("otel.serviceName"),
			Endpoint:    v.GetString("otel.endpoint"),
			Insecure:    v.GetBool("otel.insecure"),
			SampleRatio: v.GetFloat64("otel.sampleRatio"),
		},
	}
}
