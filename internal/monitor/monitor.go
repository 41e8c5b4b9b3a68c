// Package monitor runs a background status sampler. It periodically writes a
// human-readable status file next to the replay output and logs a one-line
// summary, so a running match can be inspected without attaching a spectator
// client.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tacsim/battlesim/pkg/core"
)

// Source supplies the match state the monitor reports on.
type Source interface {
	Snapshot() core.TickSample
	ZoneStatuses() []core.ZoneStatus
	Tickets() (us, opfor float64)
	Ended() bool
}

// Service samples match status on an interval.
type Service struct {
	source   Source
	log      *slog.Logger
	interval time.Duration
	dir      string

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
}

// NewService creates a status monitor writing status.json into dir.
func NewService(source Source, dir string, interval time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{
		source:   source,
		log:      log,
		interval: interval,
		dir:      dir,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the sampler goroutine is active.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// status is the file layout written each sample.
type status struct {
	Time         time.Time         `json:"time"`
	Tick         uint64            `json:"tick"`
	Phase        string            `json:"phase"`
	Ended        bool              `json:"ended"`
	TicketsUS    float64           `json:"ticketsUS"`
	TicketsOPFOR float64           `json:"ticketsOPFOR"`
	Combatants   int               `json:"combatants"`
	Tiers        map[string]int    `json:"tiers"`
	Zones        map[string]string `json:"zones"`
	TickMs       float64           `json:"tickDurationMs"`
}

// Sample collects the current status snapshot.
func (s *Service) Sample() status {
	sample := s.source.Snapshot()
	us, opfor := s.source.Tickets()

	st := status{
		Time:         time.Now(),
		Tick:         sample.Tick,
		Phase:        sample.Phase.String(),
		Ended:        s.source.Ended(),
		TicketsUS:    us,
		TicketsOPFOR: opfor,
		Combatants:   sample.Combatants,
		Tiers: map[string]int{
			"high":   sample.TierHigh,
			"medium": sample.TierMedium,
			"low":    sample.TierLow,
			"culled": sample.TierCulled,
		},
		Zones:  make(map[string]string),
		TickMs: sample.TickDurationMs,
	}
	for _, z := range s.source.ZoneStatuses() {
		st.Zones[z.ID] = fmt.Sprintf("%s %s %.0f%%", z.Owner, z.State, z.Progress)
	}
	return st
}

// Start launches the sampler goroutine. Calling Start on a running monitor is
// a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	statusPath := filepath.Join(s.dir, "status.json")
	statusFile, err := os.Create(statusPath)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return fmt.Errorf("error creating status file: %w", err)
	}

	go func() {
		defer statusFile.Close()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.log.Debug("status monitor started", "path", statusPath)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				st := s.Sample()

				data, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					s.log.Error("error marshaling status", "error", err)
					continue
				}
				statusFile.Truncate(0)
				statusFile.Seek(0, 0)
				statusFile.Write(append(data, '\n'))

				s.log.Info("match status",
					"tick", st.Tick,
					"phase", st.Phase,
					"ticketsUS", st.TicketsUS,
					"ticketsOPFOR", st.TicketsOPFOR,
					"combatants", st.Combatants,
					"tickMs", st.TickMs,
				)
			}
		}
	}()

	return nil
}

// Stop halts the sampler goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
