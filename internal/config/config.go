package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig describes the realtime backend the client connects to.
type ServerConfig struct {
	BaseURL       string `mapstructure:"BASE_URL"`       // http(s) or ws(s) base, e.g. http://localhost:8080
	WebSocketPath string `mapstructure:"WEBSOCKET_PATH"` // appended to BaseURL, e.g. /ws
}

// IdentityConfig holds the credential used when no token has been stored yet.
type IdentityConfig struct {
	Token string `mapstructure:"TOKEN"`
}

// APIConfig holds the companion REST service settings.
type APIConfig struct {
	BaseURL string        `mapstructure:"BASE_URL"`
	Timeout time.Duration `mapstructure:"TIMEOUT"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// LocalAPIConfig configures the local HTTP surface that exposes the synced state.
type LocalAPIConfig struct {
	Enabled   bool       `mapstructure:"ENABLED"`
	Addr      string     `mapstructure:"ADDR"`
	AccessKey string     `mapstructure:"ACCESS_KEY"` // empty disables the check
	CORS      CORSConfig `mapstructure:"CORS"`
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds        int           `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds         int           `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds       int           `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes     int           `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
	HandshakeTimeoutSeconds int           `mapstructure:"HANDSHAKE_TIMEOUT_SECONDS"`
	ReconnectDelay          time.Duration `mapstructure:"RECONNECT_DELAY"`
	SendBufferSize          int           `mapstructure:"SEND_BUFFER_SIZE"`
}

// DatabaseConfig holds configuration for the local message archive.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"ENABLED"`
	Type     string `mapstructure:"TYPE"` // "sqlite" or "postgres"
	Path     string `mapstructure:"PATH"` // sqlite only
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
}

// TokenStoreConfig selects where the login token is persisted between runs.
type TokenStoreConfig struct {
	Type       string `mapstructure:"TYPE"` // "bolt" or "redis"
	Path       string `mapstructure:"PATH"`
	Bucket     string `mapstructure:"BUCKET"`
	KeyPrefix  string `mapstructure:"KEY_PREFIX"`
	SealSecret string `mapstructure:"SEAL_SECRET"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// KafkaConfig holds configuration for the event mirror.
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"ENABLED"`
	Brokers     []string `mapstructure:"BROKERS"`
	ClientID    string   `mapstructure:"CLIENT_ID"`
	MirrorTopic string   `mapstructure:"MIRROR_TOPIC"`
	OutboxTopic string   `mapstructure:"OUTBOX_TOPIC"` // empty disables the outbox consumer
	GroupID     string   `mapstructure:"GROUP_ID"`
	Protocol    string   `mapstructure:"PROTOCOL"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string           `mapstructure:"APP_NAME"`
	AppVersion string           `mapstructure:"APP_VERSION"`
	Server     ServerConfig     `mapstructure:"SERVER"`
	Identity   IdentityConfig   `mapstructure:"IDENTITY"`
	API        APIConfig        `mapstructure:"API"`
	LocalAPI   LocalAPIConfig   `mapstructure:"LOCAL_API"`
	WebSocket  WebSocketConfig  `mapstructure:"WEBSOCKET"`
	Database   DatabaseConfig   `mapstructure:"DATABASE"`
	TokenStore TokenStoreConfig `mapstructure:"TOKEN_STORE"`
	Redis      RedisConfig      `mapstructure:"REDIS"`
	Kafka      KafkaConfig      `mapstructure:"KAFKA"`
}

// DefaultWebSocketConfig returns the websocket defaults used when no file or
// environment overrides them.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWaitSeconds:        10,
		PongWaitSeconds:         60,
		PingPeriodSeconds:       54, // (60 * 9) / 10
		MaxMessageSizeBytes:     64 * 1024,
		HandshakeTimeoutSeconds: 10,
		ReconnectDelay:          3 * time.Second,
		SendBufferSize:          256,
	}
}

// LoadConfig reads configuration from file, a .env file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is the normal case outside development.
	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return
	}
	err = nil

	v := viper.New()

	v.SetDefault("APP_NAME", "IM-Sync")
	v.SetDefault("APP_VERSION", "0.1.0")

	v.SetDefault("SERVER.BASE_URL", "http://localhost:8080")
	v.SetDefault("SERVER.WEBSOCKET_PATH", "/ws")

	v.SetDefault("IDENTITY.TOKEN", "")

	v.SetDefault("API.BASE_URL", "http://localhost:8080/api")
	v.SetDefault("API.TIMEOUT", 10*time.Second)

	v.SetDefault("LOCAL_API.ENABLED", true)
	v.SetDefault("LOCAL_API.ADDR", "127.0.0.1:8090")
	v.SetDefault("LOCAL_API.ACCESS_KEY", "")
	v.SetDefault("LOCAL_API.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("LOCAL_API.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("LOCAL_API.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Access-Key"})
	v.SetDefault("LOCAL_API.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("LOCAL_API.CORS.MAX_AGE", 300)

	ws := DefaultWebSocketConfig()
	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", ws.WriteWaitSeconds)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", ws.PongWaitSeconds)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", ws.PingPeriodSeconds)
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", ws.MaxMessageSizeBytes)
	v.SetDefault("WEBSOCKET.HANDSHAKE_TIMEOUT_SECONDS", ws.HandshakeTimeoutSeconds)
	v.SetDefault("WEBSOCKET.RECONNECT_DELAY", ws.ReconnectDelay)
	v.SetDefault("WEBSOCKET.SEND_BUFFER_SIZE", ws.SendBufferSize)

	v.SetDefault("DATABASE.ENABLED", false)
	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.PATH", "./im-sync.db")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.DB_NAME", "im_sync")
	v.SetDefault("DATABASE.SSL_MODE", "disable")

	v.SetDefault("TOKEN_STORE.TYPE", "bolt")
	v.SetDefault("TOKEN_STORE.PATH", "./im-sync-session.db")
	v.SetDefault("TOKEN_STORE.BUCKET", "session")
	v.SetDefault("TOKEN_STORE.KEY_PREFIX", "imsync:token:")
	v.SetDefault("TOKEN_STORE.SEAL_SECRET", "change_me_local_seal_secret")

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	v.SetDefault("KAFKA.ENABLED", false)
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "im-sync-client")
	v.SetDefault("KAFKA.MIRROR_TOPIC", "im-sync-events")
	v.SetDefault("KAFKA.OUTBOX_TOPIC", "")
	v.SetDefault("KAFKA.GROUP_ID", "im-sync-outbox")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// SERVER_BASE_URL overrides Server.BaseURL, and so on.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// Defaults are enough to run against a local backend.
	}

	err = v.Unmarshal(&config)
	return
}
