package database

import (
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_CreateDedupTable(t *testing.T) {
	b, err := fs.ReadFile(Migrations(), "001_create_dedup_claims.sql")
	require.NoError(t, err)

	sql := string(b)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS dedup_claims")
	assert.Contains(t, sql, "event_id   TEXT PRIMARY KEY")
	assert.Contains(t, sql, "expires_at BIGINT NOT NULL")
	assert.Contains(t, sql, "---- create above / drop below ----")
}

func TestQueryTracer(t *testing.T) {
	tr := queryTracer(PoolOptions{Logger: zerolog.Nop()})
	tl, ok := tr.(*tracelog.TraceLog)
	require.True(t, ok)
	assert.Equal(t, tracelog.LogLevelWarn, tl.LogLevel)

	assert.NotNil(t, queryTracer(PoolOptions{NewRelic: true}))
}
