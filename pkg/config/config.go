package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

// Webhooks configures best-effort outbound dispatch of system events.
type Webhooks struct {
	Enabled     bool   `mapstructure:"ENABLED"`
	URI         string `mapstructure:"URI"`
	HeaderName  string `mapstructure:"HEADER_NAME"`
	HeaderValue string `mapstructure:"HEADER_VALUE"`
}

// Loyalty carries the points-program settings consumed by command handlers and
// the expiration sweep. Handlers receive this struct explicitly; domain code
// never reads ambient configuration.
type Loyalty struct {
	PointsDaysActive int      `mapstructure:"POINTS_DAYS_ACTIVE"`
	AllTimeActive    bool     `mapstructure:"ALL_TIME_ACTIVE"`
	ExpiryNotifyDays int      `mapstructure:"EXPIRY_NOTIFY_DAYS"`
	ExpiryBatchSize  int      `mapstructure:"EXPIRY_BATCH_SIZE"`
	Webhooks         Webhooks `mapstructure:"WEBHOOKS"`
}

// PointsValidity returns the configured validity window for adding transfers,
// or zero when points never expire.
func (l Loyalty) PointsValidity() time.Duration {
	if l.AllTimeActive || l.PointsDaysActive <= 0 {
		return 0
	}
	return time.Duration(l.PointsDaysActive) * 24 * time.Hour
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Database   struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Worker struct {
		Concurrency int `mapstructure:"CONCURRENCY"`
		SweepHour   int `mapstructure:"SWEEP_HOUR"`
		SweepMinute int `mapstructure:"SWEEP_MINUTE"`
	} `mapstructure:"WORKER"`
	Loyalty Loyalty `mapstructure:"LOYALTY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Loyalty.ExpiryBatchSize <= 0 {
		cfg.Loyalty.ExpiryBatchSize = 1000
	}
	if cfg.Loyalty.ExpiryNotifyDays <= 0 {
		cfg.Loyalty.ExpiryNotifyDays = 10
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 10
	}
}
