package util

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zap.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zap.InfoLevel, ParseLevel("verbose"))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput(true, "warn", zapcore.AddSync(&buf))

	log.Info("hidden")
	log.Warn("shown", zap.String("module", "leads"))
	_ = log.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"module":"leads"`)
}

func TestSetKeyValue(t *testing.T) {
	vi := viper.New()
	vi.SetDefault("central.database", "core")

	assert.True(t, SetKeyValue(vi, "TDB_CENTRAL_DATABASE", "other"))
	assert.Equal(t, "other", vi.GetString("central.database"))

	assert.False(t, SetKeyValue(vi, "TDB_NEW_KEY", "x"))
	assert.Equal(t, "x", vi.GetString("new_key"))

	assert.False(t, SetKeyValue(vi, "TDB_", "x"))
}
