package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/chatprobe/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	return out
}

func TestJSONLogger_WritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(&buf, "probe", logging.LevelDebug)

	l.Info("navigated", logging.Field{Key: "url", Value: "http://localhost:5173/chat"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "navigated", lines[0]["msg"])
	assert.Equal(t, "probe", lines[0]["component"])
	fields := lines[0]["fields"].(map[string]any)
	assert.Equal(t, "http://localhost:5173/chat", fields["url"])
}

func TestJSONLogger_DropsBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(&buf, "", logging.LevelWarn)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e", logging.Err(errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "boom", lines[1]["fields"].(map[string]any)["error"])
}

func TestJSONLogger_WithCarriesFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	root := logging.NewLogger(&buf, "root", logging.LevelDebug)

	child := root.With(
		logging.Field{Key: "component", Value: "browser"},
		logging.Field{Key: "run_id", Value: "abc"},
	)
	child.Info("launched")
	root.Info("untouched")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "browser", lines[0]["component"])
	assert.Equal(t, "abc", lines[0]["fields"].(map[string]any)["run_id"])
	assert.Equal(t, "root", lines[1]["component"])
	assert.Nil(t, lines[1]["fields"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logging.Level{
		"debug":   logging.LevelDebug,
		"WARN":    logging.LevelWarn,
		"warning": logging.LevelWarn,
		"error":   logging.LevelError,
		"":        logging.LevelInfo,
		"bogus":   logging.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, logging.ParseLevel(in), in)
	}
}
