package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDuration(t *testing.T) {
	t.Setenv("TB_SECS", "5")
	t.Setenv("TB_DUR", "250ms")
	t.Setenv("TB_BAD", "soon")

	assert.Equal(t, 5*time.Second, getDuration("TB_SECS", time.Minute))
	assert.Equal(t, 250*time.Millisecond, getDuration("TB_DUR", time.Minute))
	assert.Equal(t, time.Minute, getDuration("TB_BAD", time.Minute))
	assert.Equal(t, time.Minute, getDuration("TB_MISSING", time.Minute))
}

func TestLoad_EditorDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := Load()

	assert.Equal(t, time.Second, cfg.Editor.StrokeDebounce)
	assert.Equal(t, 50, cfg.Editor.HistoryCapacity)
	assert.Equal(t, int64(2*1024*1024), cfg.Editor.MaxUploadBytes)
	assert.True(t, cfg.Editor.AutoSave)
	assert.False(t, cfg.Editor.RequeueFailedStrokes)
}

func TestGetBool(t *testing.T) {
	t.Setenv("TB_YES", "yes")
	t.Setenv("TB_NO", "nope")

	assert.True(t, getBool("TB_YES", false))
	assert.False(t, getBool("TB_NO", true))
	assert.True(t, getBool("TB_UNSET", true))
}
