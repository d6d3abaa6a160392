package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "culturemaker",
			Password: "culturemaker",
			DBName:   "culturemaker",
		}, cfg)
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "cmk"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/cmk?sslmode=disable", cfg.DSN())
}

func TestEnvBool(t *testing.T) {
	t.Setenv("CMK_TEST_FLAG", "Yes")
	assert.True(t, envBool("CMK_TEST_FLAG"))
	t.Setenv("CMK_TEST_FLAG", "off")
	assert.False(t, envBool("CMK_TEST_FLAG"))
}
