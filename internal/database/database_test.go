package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestGormLogger_ErrorsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(zerolog.New(&buf), false)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, errors.New("connection reset"))

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "connection reset")
	assert.Contains(t, buf.String(), `"component":"gorm"`)
}

func TestGormLogger_SkipsNotFoundAndFastQueries(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(zerolog.New(&buf), false)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM datasets", 0
	}, gorm.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	assert.Empty(t, buf.String())
}

func TestGormLogger_DebugTracesEveryQuery(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(zerolog.New(&buf), true)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), "SELECT 1")
}
