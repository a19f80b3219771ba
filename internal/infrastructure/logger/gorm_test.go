package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

const selectRuns = `SELECT * FROM "sync_runs" WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT 1`

func TestNewGormLogger_Options(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)

	var _ gormlogger.Interface = gl
}

func TestGormLogger_LogMode(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Info)
	changed, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gl.logLevel, "original must be unchanged")
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
}

func TestGormLogger_Messages(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "suppressed %s", "info")
	gl.Warn(ctx, "warning %d", 42)
	gl.Error(ctx, "failure")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "warning 42", logs[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	fc := func() (string, int64) { return selectRuns, 1 }

	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		opts      []GormLoggerOption
		begin     time.Time
		err       error
		wantCount int
		wantMsg   string
	}{
		{name: "error", level: gormlogger.Error, begin: time.Now(), err: errors.New("connection reset"), wantCount: 1, wantMsg: "SQL Error"},
		{name: "record not found ignored", level: gormlogger.Error, begin: time.Now(), err: gormlogger.ErrRecordNotFound, wantCount: 0},
		{
			name:      "record not found reported",
			level:     gormlogger.Error,
			opts:      []GormLoggerOption{WithIgnoreRecordNotFoundError(false)},
			begin:     time.Now(),
			err:       gormlogger.ErrRecordNotFound,
			wantCount: 1,
			wantMsg:   "SQL Error",
		},
		{
			name:      "slow query",
			level:     gormlogger.Warn,
			opts:      []GormLoggerOption{WithSlowThreshold(time.Nanosecond)},
			begin:     time.Now().Add(-time.Second),
			wantCount: 1,
			wantMsg:   "SLOW SQL >= 1ns",
		},
		{name: "normal query at info", level: gormlogger.Info, begin: time.Now(), wantCount: 1, wantMsg: "SQL Query"},
		{name: "normal query at warn", level: gormlogger.Warn, begin: time.Now(), wantCount: 0},
		{name: "silent", level: gormlogger.Silent, begin: time.Now(), err: errors.New("x"), wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gl := NewGormLogger(zap.New(core), tt.level, tt.opts...)

			gl.Trace(context.Background(), tt.begin, fc, tt.err)

			logs := recorded.All()
			require.Len(t, logs, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantMsg, logs[0].Message)
				assert.Equal(t, selectRuns, logs[0].ContextMap()["sql"])
			}
		})
	}
}

func TestGormLogger_Trace_ContextFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
	ctx = context.WithValue(ctx, TenantIDKey, "tenant-9")

	gl.Trace(ctx, time.Now(), func() (string, int64) { return selectRuns, 0 }, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "tenant-9", fields["tenant_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}
