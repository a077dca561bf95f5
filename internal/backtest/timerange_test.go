package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimerange(t *testing.T) {
	tr, err := ParseTimerange("20251026-20251125")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC), tr.Start)
	assert.Equal(t, time.Date(2025, 11, 25, 23, 59, 59, 999999999, time.UTC), tr.End)
	assert.Equal(t, "20251026-20251125", tr.String())

	tr, err = ParseTimerange("20251026-")
	require.NoError(t, err)
	assert.True(t, tr.End.IsZero())

	tr, err = ParseTimerange("")
	require.NoError(t, err)
	assert.True(t, tr.Start.IsZero())
	assert.True(t, tr.End.IsZero())

	for _, bad := range []string{"20251026", "2025-10-26", "20251126-20251026", "x-"} {
		_, err := ParseTimerange(bad)
		assert.Error(t, err, bad)
	}
}
