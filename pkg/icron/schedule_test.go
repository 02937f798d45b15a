package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfoDaily(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 6 * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 6*time.Hour+30*time.Minute, info.TimeSinceLast)
	assert.Equal(t, 17*time.Hour+30*time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfoWithSeconds(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 30, 10, 0, time.UTC)

	info, err := GetTriggerInfo("30 */15 * * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 10, 12, 30, 30, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 15, 30, 0, time.UTC), info.Last)
}

func TestGetTriggerInfoInvalid(t *testing.T) {
	_, err := GetTriggerInfo("not a cron", time.Now())
	assert.Error(t, err)
}
