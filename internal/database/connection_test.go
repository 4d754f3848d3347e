package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"

	"github.com/customeros/lenderinbox/config"
)

func TestValidateConfig(t *testing.T) {
	valid := config.DatabaseConfig{
		Host: "localhost", Port: "5432", User: "u", Password: "p", DBName: "db", SSLMode: "disable",
	}
	assert.NoError(t, validateConfig(&valid))
	assert.Error(t, validateConfig(nil))

	missingHost := valid
	missingHost.Host = ""
	assert.EqualError(t, validateConfig(&missingHost), "database host config is empty")

	missingSSL := valid
	missingSSL.SSLMode = ""
	assert.Error(t, validateConfig(&missingSSL))
}

func TestNewConnection_InvalidPort(t *testing.T) {
	_, err := NewConnection(&config.DatabaseConfig{
		Host: "localhost", Port: "abc", User: "u", Password: "p", DBName: "db", SSLMode: "disable",
	})
	assert.ErrorContains(t, err, "invalid port number")
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, gormLogLevel("info"))
	assert.Equal(t, logger.Error, gormLogLevel("ERROR"))
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Warn, gormLogLevel("WARN"))
	assert.Equal(t, logger.Warn, gormLogLevel(""))
}
