package state

import (
	"fmt"

	"cleanupd/pkg/models"
)

// Store drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// SampleStore persists performance samples in insertion order.
// Append must not return until the sample is durable.
type SampleStore interface {
	Load() ([]models.PerformanceSample, error)
	Append(sample models.PerformanceSample) error
	Close() error
}

// Open creates a sample store for the given driver
func Open(driver, path string) (SampleStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown metrics store driver %q", driver)
	}
}
