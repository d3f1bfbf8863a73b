package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanupd/pkg/models"
)

func sample(i int) models.PerformanceSample {
	return models.PerformanceSample{
		DurationSeconds:  float64(10 + i),
		RecordsProcessed: int64(100 * i),
		CPUUsage:         20,
		MemoryUsage:      30,
		Success:          i%2 == 0,
		Timestamp:        time.Date(2026, 1, 1, i, 0, 0, 0, time.UTC),
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "metrics.json"))

	samples, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestFileStore_AppendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	store := NewFileStore(path)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(sample(i)))
	}

	// A fresh store sees everything that was appended
	reopened := NewFileStore(path)
	samples, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for i, s := range samples {
		assert.Equal(t, int64(100*i), s.RecordsProcessed)
		assert.True(t, sample(i).Timestamp.Equal(s.Timestamp))
	}

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestSQLiteStore_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(sample(i)))
	}
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	samples, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.True(t, samples[0].Success)
	assert.False(t, samples[1].Success)
	assert.True(t, sample(3).Timestamp.Equal(samples[3].Timestamp))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("redis", "x")
	assert.Error(t, err)
}
