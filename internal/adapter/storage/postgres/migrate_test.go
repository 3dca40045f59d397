package postgres

import (
	"testing"

	"learncoins-ledger/config"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL_UsesPgx5Scheme(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "lms", Password: "secret", DBName: "lms", SSLMode: "disable"}
	assert.Equal(t, "pgx5://lms:secret@db:5432/lms?sslmode=disable", cfg.MigrateURL())
}
