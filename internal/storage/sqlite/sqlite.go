// Package sqlitestorage implements the storage.Backend interface on a
// SQLite database. Matches and their events land in relational tables so
// finished matches can be queried across runs; an empty path keeps the
// database in memory for tests.
package sqlitestorage

import (
	"encoding/json"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/geo"
	"github.com/tacsim/battlesim/internal/model"
	"github.com/tacsim/battlesim/pkg/core"
)

// Backend records match data into SQLite.
type Backend struct {
	cfg     config.SQLiteConfig
	db      *gorm.DB
	matchID uint
}

// New creates a new SQLite storage backend.
func New(cfg config.SQLiteConfig) (*Backend, error) {
	return &Backend{cfg: cfg}, nil
}

// Init opens the database and migrates the schema.
func (b *Backend) Init() error {
	path := b.cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.db = db
	return nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// StartMatch inserts the match row; subsequent events reference it.
func (b *Backend) StartMatch(info *core.MatchInfo) error {
	m := model.Match{
		Name:         info.Name,
		WorldSize:    info.WorldSize,
		IsTDM:        info.IsTDM,
		StartTime:    info.StartTime,
		StartTickets: info.TicketsUS,
	}
	if err := b.db.Create(&m).Error; err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	b.matchID = m.ID
	info.ID = m.ID
	return nil
}

// EndMatch is a no-op; rows are already durable.
func (b *Backend) EndMatch() error {
	return nil
}

// RecordZoneEvent inserts a zone-ownership transition.
func (b *Backend) RecordZoneEvent(e *core.ZoneCaptureEvent) error {
	row := model.ZoneCaptureEvent{
		MatchID:   b.matchID,
		Time:      e.Time,
		Tick:      e.Tick,
		ZoneID:    e.ZoneID,
		ZoneName:  e.ZoneName,
		PrevOwner: e.PrevOwner.String(),
		NewOwner:  e.NewOwner.String(),
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert zone event: %w", err)
	}
	return nil
}

// RecordKillEvent inserts a kill. The shot is stored as a WKT line from
// killer to victim when the killer is known.
func (b *Backend) RecordKillEvent(e *core.KillEvent) error {
	row := model.KillEvent{
		MatchID:  b.matchID,
		Time:     e.Time,
		Tick:     e.Tick,
		KillerID: e.KillerID,
		VictimID: e.VictimID,
		Killer:   e.Killer.String(),
		Victim:   e.Victim.String(),
		Distance: e.Distance,
	}
	if e.Killer != core.FactionNone {
		row.FireLine = geo.TraceWKT([]core.Position3D{e.KillerPos, e.VictimPos})
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert kill event: %w", err)
	}
	return nil
}

// tickPerformance is the JSON blob stored per tick sample.
type tickPerformance struct {
	TierHigh        int     `json:"tierHigh"`
	TierMedium      int     `json:"tierMedium"`
	TierLow         int     `json:"tierLow"`
	TierCulled      int     `json:"tierCulled"`
	FullAIUpdates   int     `json:"fullAIUpdates"`
	StaggeredSkips  uint64  `json:"staggeredSkips"`
	RaycastsUsed    uint64  `json:"raycastsUsed"`
	RaycastsDenied  uint64  `json:"raycastsDenied"`
	TickDurationMs  float64 `json:"tickDurationMs"`
	AIBudgetOverrun bool    `json:"aiBudgetOverrun"`
}

// RecordTickSample inserts one tick's telemetry.
func (b *Backend) RecordTickSample(s *core.TickSample) error {
	perf, err := json.Marshal(tickPerformance{
		TierHigh:        s.TierHigh,
		TierMedium:      s.TierMedium,
		TierLow:         s.TierLow,
		TierCulled:      s.TierCulled,
		FullAIUpdates:   s.FullAIUpdates,
		StaggeredSkips:  s.StaggeredSkips,
		RaycastsUsed:    s.RaycastsUsed,
		RaycastsDenied:  s.RaycastsDenied,
		TickDurationMs:  s.TickDurationMs,
		AIBudgetOverrun: s.AIBudgetOverrun,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal performance: %w", err)
	}

	row := model.TickSample{
		MatchID:      b.matchID,
		Time:         s.Time,
		Tick:         s.Tick,
		Phase:        s.Phase.String(),
		TicketsUS:    s.TicketsUS,
		TicketsOPFOR: s.TicketsOPFOR,
		Combatants:   s.Combatants,
		Performance:  datatypes.JSON(perf),
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert tick sample: %w", err)
	}
	return nil
}

// RecordResult inserts the terminal result.
func (b *Backend) RecordResult(r *core.MatchResult) error {
	row := model.MatchResult{
		MatchID:      b.matchID,
		Time:         r.Time,
		Tick:         r.Tick,
		Winner:       r.Winner.String(),
		Reason:       r.Reason.String(),
		TicketsUS:    r.TicketsUS,
		TicketsOPFOR: r.TicketsOPFOR,
		DurationSecs: r.Duration.Seconds(),
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert match result: %w", err)
	}
	return nil
}
