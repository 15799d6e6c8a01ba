package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
)

func TestNew_WritesRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	l := New(&config.Logger{
		Path:       dir,
		Level:      "info",
		FileOutput: true,
		MaxSize:    1,
		MaxBackups: 1,
	})

	l.Info("tenant pool created")
	l.Error("lease failed")
	_ = l.Sync()

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "tenant pool created")
	assert.NotContains(t, string(info), "lease failed")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "lease failed")
}

func TestNew_NoOutputsIsSafe(t *testing.T) {
	l := New(&config.Logger{Level: "bogus"})
	assert.NotPanics(t, func() { l.Info("dropped") })
}

func TestNewGormLogger_DefaultLevel(t *testing.T) {
	gl := NewGormLogger(New(&config.Logger{}), 0).(*CustomGormLogger)
	assert.Equal(t, gormlogger.Error, gl.LogLevel)

	silent := gl.LogMode(gormlogger.Silent).(*CustomGormLogger)
	assert.Equal(t, gormlogger.Silent, silent.LogLevel)
}

func TestSugarHelpers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prevLogger, prevSugar := Logger, DefaultLogger
	Logger = zap.New(core)
	DefaultLogger = Logger.Sugar()
	t.Cleanup(func() { Logger, DefaultLogger = prevLogger, prevSugar })

	Infof("progress relay starting on %s", "0.0.0.0:3001")
	Errorf("shutdown: %v", "pool close failed")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "progress relay starting on 0.0.0.0:3001", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "shutdown: pool close failed", entries[1].Message)
}
