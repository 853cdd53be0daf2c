package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_WritesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, "debug")

	log.WithFields(map[string]any{"table_id": "t-5"}).Info("lock acquired")

	out := buf.String()
	assert.Contains(t, out, "lock acquired")
	assert.Contains(t, out, "table_id")
}

func TestNew_RespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, "error")

	log.Info("hidden")

	assert.NotContains(t, buf.String(), "hidden")
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	assert.NotNil(t, l)
	// must not panic
	l.WithContext(context.Background()).WithFields(map[string]any{"k": 1}).Error("x")
}
