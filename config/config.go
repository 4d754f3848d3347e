package config

import "time"

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required" envDefault:"5432"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"require"`
}

// ListenerConfig drives both the batch run and the daemon.
type ListenerConfig struct {
	BatchLookback         time.Duration `env:"LISTENER_BATCH_LOOKBACK" envDefault:"48h"`
	DaemonLookback        time.Duration `env:"LISTENER_DAEMON_LOOKBACK" envDefault:"72h"`
	BackoffMin            time.Duration `env:"LISTENER_BACKOFF_MIN" envDefault:"2s"`
	BackoffMax            time.Duration `env:"LISTENER_BACKOFF_MAX" envDefault:"60s"`
	IdlePollInterval      time.Duration `env:"LISTENER_IDLE_POLL_INTERVAL" envDefault:"2m"`
	ConfigRefreshInterval time.Duration `env:"LISTENER_CONFIG_REFRESH_INTERVAL" envDefault:"10m"`
	RunTimeout            time.Duration `env:"LISTENER_RUN_TIMEOUT" envDefault:"5m"`
	ResponseMaxChars      int           `env:"LISTENER_RESPONSE_MAX_CHARS" envDefault:"10000"`
	StripQuotedReplies    bool          `env:"LISTENER_STRIP_QUOTED_REPLIES" envDefault:"true"`
	DaemonEnabled         bool          `env:"LISTENER_DAEMON_ENABLED" envDefault:"true"`
}

// DefaultListenerConfig mirrors the env defaults for callers that do not parse the environment.
func DefaultListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		BatchLookback:         48 * time.Hour,
		DaemonLookback:        72 * time.Hour,
		BackoffMin:            2 * time.Second,
		BackoffMax:            60 * time.Second,
		IdlePollInterval:      2 * time.Minute,
		ConfigRefreshInterval: 10 * time.Minute,
		RunTimeout:            5 * time.Minute,
		ResponseMaxChars:      10000,
		StripQuotedReplies:    true,
		DaemonEnabled:         true,
	}
}
