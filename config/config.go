package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Dataset DatasetConfig
	Redis   RedisConfig
	Index   IndexConfig
}

type ServerConfig struct {
	Addr string
}

type DatasetConfig struct {
	// Path is the operator override for the dataset location. When set it
	// is authoritative; Candidates are only probed when it is empty.
	Path       string
	Candidates []string
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

type IndexConfig struct {
	MinChildren int
	MaxChildren int
	// Prewarm triggers the index build in the background at startup so the
	// first query does not pay for it.
	Prewarm bool
}

// Load reads config.yaml from the working directory if present, then
// applies POINTS_* environment overrides. A missing config file is fine;
// defaults and environment are enough to boot.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("dataset.path", "")
	v.SetDefault("dataset.candidates", []string{"data/points.csv", "points.csv"})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlseconds", 60)
	v.SetDefault("index.minchildren", 25)
	v.SetDefault("index.maxchildren", 50)
	v.SetDefault("index.prewarm", false)

	v.SetEnvPrefix("POINTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// POINTS_DATASET is the documented override for the source file.
	if err := v.BindEnv("dataset.path", "POINTS_DATASET"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
