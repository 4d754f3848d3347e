package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cronconfig "github.com/customeros/lenderinbox/internal/cron/config"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	ListenerConfig *ListenerConfig
	CronConfig     *cronconfig.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		ListenerConfig: &ListenerConfig{},
		CronConfig:     &cronconfig.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading lenderinbox config: %v", err)
	}

	return config, nil
}
