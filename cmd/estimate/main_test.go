package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Defaults(t *testing.T) {
	got, err := parseArgs(nil, 10, 16)
	require.NoError(t, err)
	assert.Equal(t, 10, got.rows)
	assert.Equal(t, 16, got.cols)
	assert.Equal(t, defaultStart, got.window.Start)
	assert.Equal(t, defaultEnd, got.window.End)
}

func TestParseArgs_Positional(t *testing.T) {
	got, err := parseArgs([]string{"20", "32", "2019-02-01T06:00:00Z", "2019-02-05T06:00:00Z"}, 10, 16)
	require.NoError(t, err)
	assert.Equal(t, 20, got.rows)
	assert.Equal(t, 32, got.cols)
	assert.Equal(t, time.Date(2019, 2, 1, 6, 0, 0, 0, time.UTC), got.window.Start)
	assert.Equal(t, time.Date(2019, 2, 5, 6, 0, 0, 0, time.UTC), got.window.End)
}

func TestParseArgs_Errors(t *testing.T) {
	for name, args := range map[string][]string{
		"too few":  {"10", "16"},
		"too many": {"10", "16", "2018-01-07T00:00:00Z", "2018-01-11T00:00:00Z", "x"},
		"rows":     {"ten", "16", "2018-01-07T00:00:00Z", "2018-01-11T00:00:00Z"},
		"cols":     {"10", "1.5", "2018-01-07T00:00:00Z", "2018-01-11T00:00:00Z"},
		"start":    {"10", "16", "2018-01-07", "2018-01-11T00:00:00Z"},
		"end":      {"10", "16", "2018-01-07T00:00:00Z", "2018-01-11 00:00:00"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseArgs(args, 10, 16)
			assert.Error(t, err)
		})
	}
}
