package app

import (
	"time"

	"autodesk/internal/config"
	"autodesk/internal/storage"
)

// mapStorageConfig reports false when run history is disabled.
func mapStorageConfig(s config.StorageSettings) (storage.Config, bool) {
	if s.Driver == "" {
		return storage.Config{}, false
	}
	busy := s.BusyTimeout
	if busy <= 0 {
		busy = 1 * time.Second
	}
	return storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}, true
}
