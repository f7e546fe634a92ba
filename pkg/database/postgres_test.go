package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/coach-change-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "svc", Password: "pw", Name: "coach_change", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=svc password=pw dbname=coach_change sslmode=require", dsn)
}
