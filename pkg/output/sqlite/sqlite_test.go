package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	o, err := Open(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer func() {
		if err := o.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, o.Publish(sensor.Reading{Cycle: 1, Status: ranging.StatusInProgress, Raw: "1,_,_", Timestamp: ts}))
	require.NoError(t, o.Publish(sensor.Reading{Cycle: 2, Status: ranging.StatusSuccess, DistanceCM: 25, Raw: "0,_,2500", Timestamp: ts.Add(time.Second)}))

	rows, err := o.Readings()
	require.NoError(t, err)
	want := []Row{
		{Cycle: 1, StatusCode: 1, Status: "In-progress", Raw: "1,_,_", Timestamp: "2026-10-19T12:00:00Z"},
		{Cycle: 2, StatusCode: 0, Status: "Success", DistanceCM: sql.NullFloat64{Float64: 25, Valid: true}, Raw: "0,_,2500", Timestamp: "2026-10-19T12:00:01Z"},
	}
	assert.Equal(t, want, rows)
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")

	o, err := Open(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, o.Publish(sensor.Reading{Cycle: 1, Status: ranging.StatusTimedOut}))
	require.NoError(t, o.Close())

	o, err = Open(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer o.Close()
	rows, err := o.Readings()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Timed out", rows[0].Status)
	assert.False(t, rows[0].DistanceCM.Valid)
}
