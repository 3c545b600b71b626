package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convivencia-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "secret", Name: "convivencia_escolar", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=convivencia_escolar sslmode=disable application_name=convivencia-api", dsn)
}

func TestPingReportsUnreachableDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = Ping(context.Background(), sqlx.NewDb(db, "sqlmock"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
	assert.NoError(t, mock.ExpectationsWereMet())
}
