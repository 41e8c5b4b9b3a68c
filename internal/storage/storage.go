// internal/storage/storage.go
package storage

import "github.com/tacsim/battlesim/pkg/core"

// Backend is the interface all recording backends must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Match management
	StartMatch(info *core.MatchInfo) error
	EndMatch() error

	// Event recording
	RecordZoneEvent(e *core.ZoneCaptureEvent) error
	RecordKillEvent(e *core.KillEvent) error
	RecordTickSample(s *core.TickSample) error
	RecordResult(r *core.MatchResult) error
}

// Exportable is an optional interface for backends that write a replay file
// at match end.
type Exportable interface {
	GetExportedFilePath() string
}
