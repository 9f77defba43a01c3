package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env           string            `yaml:"env" env:"ENV" env-default:"local"`
	HTTP          HTTPConfig        `yaml:"http"`
	PostgresCfg   PostgresConfig    `yaml:"postgres"`
	RedisCfg      RedisConfig       `yaml:"redis"`
	NatsCfg       NatsConfig        `yaml:"nats"`
	BinanceConfig BinanceConfig     `yaml:"binance_http_client"`
	RiskCfg       RiskConfig        `yaml:"risk"`
	Coordinator   CoordinatorConfig `yaml:"coordinator"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env-default:":8080"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"6379"`
	Db       int    `yaml:"db"`
	Password string `yaml:"password"`
}

type NatsConfig struct {
	URL string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
}

type BinanceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Endpoint     string        `yaml:"ticker_price_endpoint"`
	Streams      []string      `yaml:"streams"`
	PollInterval time.Duration `yaml:"poll_interval" env-default:"5s"`
}

// RiskConfig carries the per-user limits applied lazily on first lookup.
type RiskConfig struct {
	MaxPositionSize    float64       `yaml:"max_position_size" env-default:"1000000"`
	MaxDailyLoss       float64       `yaml:"max_daily_loss" env-default:"50000"`
	MaxLeverage        int64         `yaml:"max_leverage" env-default:"10"`
	MaxConcentration   float64       `yaml:"max_concentration" env-default:"0.5"`
	MaxOrdersPerMinute int           `yaml:"max_orders_per_minute" env-default:"100"`
	InitialMargin      float64       `yaml:"initial_margin" env-default:"100000"`
	LimitsTTL          time.Duration `yaml:"limits_ttl" env-default:"10m"`
}

type CoordinatorConfig struct {
	RiskTimeout     time.Duration `yaml:"risk_timeout" env-default:"3s"`
	MarketFillDelay time.Duration `yaml:"market_fill_delay" env-default:"100ms"`
	PersistRetries  int           `yaml:"persist_retries" env-default:"3"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config file is empty")
	}

	return MustLoadByPath(path)
}

func MustLoadByPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found " + path)
	}

	var config Config

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		panic("failed to read config " + err.Error())
	}

	return &config
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
