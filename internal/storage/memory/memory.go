// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/queue"
	"github.com/tacsim/battlesim/pkg/core"
)

// Backend buffers match data in memory and exports a replay JSON at match
// end. Writes go through lock-free-for-the-caller queues so the tick loop
// never contends with an export in progress.
type Backend struct {
	cfg   config.MemoryConfig
	match *core.MatchInfo

	zoneEvents  *queue.Queue[core.ZoneCaptureEvent]
	killEvents  *queue.Queue[core.KillEvent]
	tickSamples *queue.Queue[core.TickSample]

	result *core.MatchResult

	lastExportPath string
	mu             sync.Mutex
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:         cfg,
		zoneEvents:  queue.New[core.ZoneCaptureEvent](),
		killEvents:  queue.New[core.KillEvent](),
		tickSamples: queue.New[core.TickSample](),
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// StartMatch begins recording a new match, dropping any prior buffers.
func (b *Backend) StartMatch(info *core.MatchInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.match = info
	b.result = nil
	b.zoneEvents.Clear()
	b.killEvents.Clear()
	b.tickSamples.Clear()

	return nil
}

// EndMatch finalizes and exports the match data.
func (b *Backend) EndMatch() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.match == nil {
		return nil
	}
	return b.exportJSON()
}

// RecordZoneEvent buffers a zone-ownership transition.
func (b *Backend) RecordZoneEvent(e *core.ZoneCaptureEvent) error {
	b.zoneEvents.Push(*e)
	return nil
}

// RecordKillEvent buffers a kill.
func (b *Backend) RecordKillEvent(e *core.KillEvent) error {
	b.killEvents.Push(*e)
	return nil
}

// RecordTickSample buffers one tick's telemetry.
func (b *Backend) RecordTickSample(s *core.TickSample) error {
	b.tickSamples.Push(*s)
	return nil
}

// RecordResult stores the terminal result.
func (b *Backend) RecordResult(r *core.MatchResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = r
	return nil
}

// GetExportedFilePath returns the path of the last written replay file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExportPath
}
