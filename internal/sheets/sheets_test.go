package sheets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRowIndex(t *testing.T) {
	row, err := parseRowIndex("Лист1!A7:I7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), row)

	row, err = parseRowIndex("Sheet1!A123:I123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), row)

	row, err = parseRowIndex("A2:I2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row)

	_, err = parseRowIndex("Лист1!A:I")
	assert.Error(t, err)
}

func TestDisabledMirrorIsSilent(t *testing.T) {
	// Missing credentials produce a disabled mirror; every call degrades to
	// a no-op instead of an error, so callers need no special casing.
	m := New(context.Background(), "", "")
	require.NotNil(t, m)

	row, err := m.AppendCheckRow(context.Background(), 1, "alice", "Kaspi", "file-1")
	require.NoError(t, err)
	assert.Zero(t, row)

	now := time.Now()
	assert.NoError(t, m.UpdateCheckStatus(context.Background(), 7, "✅ Подтверждено", &now, &now))
	assert.NoError(t, m.AppendBookingRow(context.Background(), 1, "alice", "online", "slot", ""))
}
