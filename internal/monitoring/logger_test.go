package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	prev := Logf
	t.Cleanup(func() { Logf = prev })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)

	Logf("run %d", 7)
	assert.Equal(t, []string{"run 7"}, *lines)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted") })
	assert.Len(t, *lines, 1)
}

func TestPrefixed_ResolvesLoggerLate(t *testing.T) {
	logf := Prefixed("[run abc] ")
	lines := capture(t)

	logf("kept %d rows", 42)
	assert.Equal(t, []string{"[run abc] kept 42 rows"}, *lines)
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}
