// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tacsim/battlesim/internal/geo"
	"github.com/tacsim/battlesim/pkg/core"
)

// ReplayExport is the root JSON structure of an exported match replay.
type ReplayExport struct {
	MatchName    string          `json:"matchName"`
	WorldSize    float64         `json:"worldSize"`
	IsTDM        bool            `json:"isTDM"`
	StartTime    string          `json:"startTime"`
	StartTickets float64         `json:"startTickets"`
	ZoneEvents   []ZoneEventJSON `json:"zoneEvents"`
	Kills        []KillJSON      `json:"kills"`
	Ticks        []TickJSON      `json:"ticks"`
	Result       *ResultJSON     `json:"result,omitempty"`
}

// ZoneEventJSON is one ownership transition in the replay.
type ZoneEventJSON struct {
	Tick     uint64 `json:"tick"`
	ZoneID   string `json:"zoneId"`
	ZoneName string `json:"zoneName"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// KillJSON is one kill in the replay. FireLine is the shot rendered as a
// WKT line from killer to victim, empty when the killer is unknown.
type KillJSON struct {
	Tick     uint64  `json:"tick"`
	Killer   string  `json:"killer"`
	Victim   string  `json:"victim"`
	KillerID string  `json:"killerId"`
	VictimID string  `json:"victimId"`
	FireLine string  `json:"fireLine,omitempty"`
	Distance float64 `json:"distance"`
}

// TickJSON is one telemetry sample in the replay.
type TickJSON struct {
	Tick           uint64  `json:"tick"`
	Phase          string  `json:"phase"`
	TicketsUS      float64 `json:"ticketsUS"`
	TicketsOPFOR   float64 `json:"ticketsOPFOR"`
	Combatants     int     `json:"combatants"`
	TierHigh       int     `json:"tierHigh"`
	TierMedium     int     `json:"tierMedium"`
	TierLow        int     `json:"tierLow"`
	TierCulled     int     `json:"tierCulled"`
	RaycastsUsed   uint64  `json:"raycastsUsed"`
	RaycastsDenied uint64  `json:"raycastsDenied"`
	TickDurationMs float64 `json:"tickDurationMs"`
}

// ResultJSON is the terminal outcome in the replay.
type ResultJSON struct {
	Tick         uint64  `json:"tick"`
	Winner       string  `json:"winner"`
	Reason       string  `json:"reason"`
	TicketsUS    float64 `json:"ticketsUS"`
	TicketsOPFOR float64 `json:"ticketsOPFOR"`
	DurationSecs float64 `json:"durationSecs"`
}

// exportJSON writes the match data to a (optionally gzipped) JSON file.
// Caller holds b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	matchName := strings.ReplaceAll(b.match.Name, " ", "_")
	matchName = strings.ReplaceAll(matchName, ":", "_")
	timestamp := b.match.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", matchName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", matchName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() ReplayExport {
	export := ReplayExport{
		MatchName:    b.match.Name,
		WorldSize:    b.match.WorldSize,
		IsTDM:        b.match.IsTDM,
		StartTime:    b.match.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
		StartTickets: b.match.TicketsUS,
		ZoneEvents:   make([]ZoneEventJSON, 0),
		Kills:        make([]KillJSON, 0),
		Ticks:        make([]TickJSON, 0),
	}

	for _, e := range b.zoneEvents.Drain() {
		export.ZoneEvents = append(export.ZoneEvents, ZoneEventJSON{
			Tick:     e.Tick,
			ZoneID:   e.ZoneID,
			ZoneName: e.ZoneName,
			From:     e.PrevOwner.String(),
			To:       e.NewOwner.String(),
		})
	}

	for _, k := range b.killEvents.Drain() {
		kj := KillJSON{
			Tick:     k.Tick,
			Killer:   k.Killer.String(),
			Victim:   k.Victim.String(),
			KillerID: k.KillerID,
			VictimID: k.VictimID,
			Distance: k.Distance,
		}
		if k.Killer != core.FactionNone {
			kj.FireLine = geo.TraceWKT([]core.Position3D{k.KillerPos, k.VictimPos})
		}
		export.Kills = append(export.Kills, kj)
	}

	for _, s := range b.tickSamples.Drain() {
		export.Ticks = append(export.Ticks, TickJSON{
			Tick:           s.Tick,
			Phase:          s.Phase.String(),
			TicketsUS:      s.TicketsUS,
			TicketsOPFOR:   s.TicketsOPFOR,
			Combatants:     s.Combatants,
			TierHigh:       s.TierHigh,
			TierMedium:     s.TierMedium,
			TierLow:        s.TierLow,
			TierCulled:     s.TierCulled,
			RaycastsUsed:   s.RaycastsUsed,
			RaycastsDenied: s.RaycastsDenied,
			TickDurationMs: s.TickDurationMs,
		})
	}

	if b.result != nil {
		export.Result = &ResultJSON{
			Tick:         b.result.Tick,
			Winner:       b.result.Winner.String(),
			Reason:       b.result.Reason.String(),
			TicketsUS:    b.result.TicketsUS,
			TicketsOPFOR: b.result.TicketsOPFOR,
			DurationSecs: b.result.Duration.Seconds(),
		}
	}

	return export
}

func (b *Backend) writeJSON(path string, export ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(export); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

func (b *Backend) writeGzipJSON(path string, export ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(export); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gz.Close()
}
