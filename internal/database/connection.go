package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/lenderinbox/config"
)

const (
	defaultMaxConn         = 100
	defaultMaxIdleConn     = 10
	defaultConnMaxLifetime = time.Hour
)

func NewConnection(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	portInt, err := strconv.Atoi(dbConfig.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid port number: %w", err)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(orDefault(dbConfig.MaxIdleConn, defaultMaxIdleConn))
	sqlDB.SetMaxOpenConns(orDefault(dbConfig.MaxConn, defaultMaxConn))
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
	} else {
		sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
	}

	return db, nil
}

func validateConfig(config *config.DatabaseConfig) error {
	switch {
	case config == nil:
		return fmt.Errorf("database config is nil")
	case config.Host == "":
		return fmt.Errorf("database host config is empty")
	case config.Port == "":
		return fmt.Errorf("database port config is empty")
	case config.User == "":
		return fmt.Errorf("database user config is empty")
	case config.Password == "":
		return fmt.Errorf("database password config is empty")
	case config.DBName == "":
		return fmt.Errorf("database name config is empty")
	case config.SSLMode == "":
		return fmt.Errorf("database SSLMode config is empty")
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "SILENT":
		return logger.Silent
	case "ERROR":
		return logger.Error
	case "INFO":
		return logger.Info
	default:
		return logger.Warn
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
