package sim

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/dispatcher"
	"github.com/tacsim/battlesim/internal/lod"
	"github.com/tacsim/battlesim/internal/los"
	"github.com/tacsim/battlesim/internal/match"
	"github.com/tacsim/battlesim/internal/spatial"
	"github.com/tacsim/battlesim/internal/storage"
	"github.com/tacsim/battlesim/internal/zone"
	"github.com/tacsim/battlesim/pkg/core"
)

// HUDNotifier receives one-way gameplay notifications for display. Nil is
// fine; notifications are then dropped.
type HUDNotifier interface {
	AddZoneCapture(zoneName string, wasLostByPlayerFaction bool)
	AddMatchEnd(winner core.Faction, reason core.VictoryReason)
}

// sampleEveryTicks is how often a TickSample goes to the recorder.
const sampleEveryTicks = 30

// losSweepEveryTicks bounds visibility-cache growth.
const losSweepEveryTicks = 300

// Options are the collaborators and tuning for one match. Terrain, HUD,
// Recorder and Events may be nil: a missing collaborator degrades behavior
// (always-visible LOS, no notifications, no recording) but never fails a
// tick.
type Options struct {
	Match   config.MatchConfig
	Capture config.CaptureConfig
	LOD     config.LODConfig
	Raycast config.RaycastConfig

	WorldSize float64
	Zones     []core.ZoneDefinition

	Terrain  los.TerrainRaycaster
	HUD      HUDNotifier
	Recorder storage.Backend
	Events   *dispatcher.Dispatcher

	// PlayerFaction drives the "was lost by player faction" flag on HUD
	// zone notifications.
	PlayerFaction core.Faction

	AIUpdate AIUpdateFunc
	Logger   *slog.Logger

	// Seed fixes scheduler stagger offsets for reproducible runs. Now
	// overrides the clock, for tests.
	Seed int64
	Now  func() time.Time
}

// Match is one running simulation. Not safe for concurrent use; Tick is the
// single entry point and runs on one goroutine.
type Match struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time

	roster     *Roster
	index      *spatial.Index
	combatants *CombatantSystem
	zones      *ZoneManager

	perceptionBudget *los.Budget
	fireBudget       *los.Budget
	perceptionLOS    *los.Cache
	fireLOS          *los.Cache

	tick    uint64
	elapsed time.Duration
	phase   core.GamePhase

	ticketsUS    float64
	ticketsOPFOR float64
	killsUS      int
	killsOPFOR   int

	startTime time.Time
	result    core.VictoryResult
	ended     bool
}

// NewMatch builds a match from options and starts the recorder.
func NewMatch(opts Options) (*Match, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	classifier := lod.NewClassifier(opts.LOD)
	scheduler, err := lod.NewScheduler(opts.LOD, opts.Seed, opts.Now)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	perceptionBudget, err := los.NewBudget("perception", opts.Raycast.PerceptionPerFrame)
	if err != nil {
		return nil, fmt.Errorf("creating perception budget: %w", err)
	}
	fireBudget, err := los.NewBudget("fire", opts.Raycast.FirePerFrame)
	if err != nil {
		return nil, fmt.Errorf("creating fire budget: %w", err)
	}

	cacheOpts := los.CacheOptions{
		TTL:        opts.Raycast.CacheTTL,
		MaxRange:   opts.Raycast.MaxRange,
		FOVDegrees: opts.Raycast.FOVDegrees,
		Now:        opts.Now,
	}
	fireCacheOpts := cacheOpts
	// Fire resolution has no cone; a shot can go anywhere.
	fireCacheOpts.FOVDegrees = 0

	captureLogic, err := zone.NewLogic(opts.Capture, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating capture logic: %w", err)
	}

	roster := NewRoster()
	index := spatial.NewIndex(opts.WorldSize)

	m := &Match{
		opts: opts,
		log:  opts.Logger,
		now:  opts.Now,

		roster:     roster,
		index:      index,
		combatants: NewCombatantSystem(roster, index, classifier, scheduler, opts.AIUpdate),
		zones: NewZoneManager(opts.Zones, captureLogic, roster, index,
			opts.Capture.OccupancyInterval, opts.Logger, opts.Now),

		perceptionBudget: perceptionBudget,
		fireBudget:       fireBudget,
		perceptionLOS:    los.NewCache(opts.Terrain, perceptionBudget, cacheOpts),
		fireLOS:          los.NewCache(opts.Terrain, fireBudget, fireCacheOpts),

		phase:        core.PhaseSetup,
		ticketsUS:    opts.Match.StartTickets,
		ticketsOPFOR: opts.Match.StartTickets,
		startTime:    opts.Now(),
	}

	if opts.Recorder != nil {
		info := &core.MatchInfo{
			Name:         opts.Match.Name,
			WorldSize:    opts.WorldSize,
			IsTDM:        opts.Match.IsTDM,
			StartTime:    m.startTime,
			TicketsUS:    m.ticketsUS,
			TicketsOPFOR: m.ticketsOPFOR,
		}
		if err := opts.Recorder.StartMatch(info); err != nil {
			return nil, fmt.Errorf("starting recorder: %w", err)
		}
	}

	return m, nil
}

// Spawn adds a combatant to the simulation.
func (m *Match) Spawn(c core.Combatant) {
	m.roster.Spawn(c)
	m.index.Update(c.ID, c.Position)
}

// Despawn removes a combatant entirely.
func (m *Match) Despawn(id string) {
	if !m.roster.Despawn(id) {
		return
	}
	m.combatants.Remove(id)
	m.perceptionLOS.Invalidate(id)
	m.fireLOS.Invalidate(id)
}

// Combatant looks up a live combatant by id. The pointer is owned by the
// roster; callers may mutate it between ticks but must not retain it across
// a despawn.
func (m *Match) Combatant(id string) (*core.Combatant, bool) {
	return m.roster.Get(id)
}

// SetObservers updates the spectator positions used for LOD relevance.
func (m *Match) SetObservers(observers []core.Position3D) {
	m.combatants.SetObservers(observers)
}

// CanSee answers a perception visibility query between two combatants,
// drawing on the perception raycast budget.
func (m *Match) CanSee(observerID, targetID string) bool {
	obs, ok := m.roster.Get(observerID)
	if !ok {
		return false
	}
	tgt, ok := m.roster.Get(targetID)
	if !ok {
		return false
	}
	return m.perceptionLOS.CanSee(observerID, targetID, obs.Position, tgt.Position, obs.Velocity)
}

// FireLineClear answers a shot-occlusion query, drawing on the fire raycast
// budget. No view-cone restriction applies.
func (m *Match) FireLineClear(shooterID, targetID string) bool {
	shooter, ok := m.roster.Get(shooterID)
	if !ok {
		return false
	}
	tgt, ok := m.roster.Get(targetID)
	if !ok {
		return false
	}
	return m.fireLOS.CanSee(shooterID, targetID, shooter.Position, tgt.Position, core.Position3D{})
}

// ReportKill marks the victim dead, updates kill counts and publishes the
// event. Combat resolution itself happens outside the core.
func (m *Match) ReportKill(killerID, victimID string) {
	victim, ok := m.roster.Get(victimID)
	if !ok {
		return
	}

	var distance float64
	var killerPos core.Position3D
	killerFaction := core.FactionNone
	if killer, ok := m.roster.Get(killerID); ok {
		killerFaction = killer.Faction
		killerPos = killer.Position
		distance = killer.Position.DistanceTo(victim.Position)
	}

	victim.State = core.StateDead
	switch killerFaction {
	case core.FactionUS:
		m.killsUS++
	case core.FactionOPFOR:
		m.killsOPFOR++
	}

	// Each death costs the victim's side a ticket.
	switch victim.Faction {
	case core.FactionUS:
		m.ticketsUS = max(m.ticketsUS-1, 0)
	case core.FactionOPFOR:
		m.ticketsOPFOR = max(m.ticketsOPFOR-1, 0)
	}

	ev := core.KillEvent{
		Time:      m.now(),
		Tick:      m.tick,
		KillerID:  killerID,
		VictimID:  victimID,
		Killer:    killerFaction,
		Victim:    victim.Faction,
		KillerPos: killerPos,
		VictimPos: victim.Position,
		Distance:  distance,
	}
	m.publish(dispatcher.TopicCombatantKilled, ev)
	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.RecordKillEvent(&ev); err != nil {
			m.log.Error("recording kill failed", "error", err)
		}
	}
}

// Tick advances the simulation by dt. Order matters: spatial updates and AI
// first, then occupancy and capture, then tickets, phase and victory. Once
// the match has ended Tick is a no-op.
func (m *Match) Tick(dt time.Duration) {
	if m.ended {
		return
	}

	tickStart := m.now()
	m.tick++
	m.elapsed += dt
	dtSecs := dt.Seconds()

	m.perceptionBudget.ResetFrame()
	m.fireBudget.ResetFrame()

	m.combatants.Tick(m.zones.ActiveZoneCenters())

	transitions := m.zones.Tick(dtSecs)
	for _, tr := range transitions {
		m.handleTransition(tr)
	}

	if m.phase == core.PhaseCombat || m.phase == core.PhaseOvertime {
		m.applyBleed(dtSecs)
	}

	m.phase = match.DeterminePhase(m.elapsed, match.DurationsFromConfig(m.opts.Match),
		m.ticketsUS, m.ticketsOPFOR, m.opts.Match.OvertimeTicketMargin, m.phase)

	result := match.EvaluateVictory(m.victoryState())
	if result.ShouldEnterOvertime && m.phase == core.PhaseCombat {
		m.phase = core.PhaseOvertime
		m.log.Info("overtime", "ticketsUS", m.ticketsUS, "ticketsOPFOR", m.ticketsOPFOR)
	}
	if result.Decided() {
		m.finish(result)
		return
	}

	if m.tick%losSweepEveryTicks == 0 {
		m.perceptionLOS.Sweep()
		m.fireLOS.Sweep()
	}
	if m.tick%sampleEveryTicks == 0 {
		m.recordSample(m.now().Sub(tickStart))
	}
}

// Phase returns the current match phase.
func (m *Match) Phase() core.GamePhase {
	return m.phase
}

// Tickets returns the current ticket pools.
func (m *Match) Tickets() (us, opfor float64) {
	return m.ticketsUS, m.ticketsOPFOR
}

// Elapsed returns the simulated time advanced so far.
func (m *Match) Elapsed() time.Duration {
	return m.elapsed
}

// Result returns the victory result; Decided is false while the match runs.
func (m *Match) Result() core.VictoryResult {
	return m.result
}

// Ended reports whether the match is over.
func (m *Match) Ended() bool {
	return m.ended
}

// PhaseTimeRemaining returns the time left in the current phase.
func (m *Match) PhaseTimeRemaining() time.Duration {
	return match.PhaseTimeRemaining(m.elapsed, match.DurationsFromConfig(m.opts.Match), m.phase)
}

// ZoneStatuses returns display snapshots of every zone.
func (m *Match) ZoneStatuses() []core.ZoneStatus {
	return m.zones.ZoneStatuses()
}

// Snapshot assembles the current tick sample without recording it.
func (m *Match) Snapshot() core.TickSample {
	tiers := m.combatants.TierCounts()
	report := m.combatants.LastReport()
	perception := m.perceptionBudget.Stats()
	fire := m.fireBudget.Stats()

	return core.TickSample{
		Time:            m.now(),
		Tick:            m.tick,
		Phase:           m.phase,
		TicketsUS:       m.ticketsUS,
		TicketsOPFOR:    m.ticketsOPFOR,
		Combatants:      m.roster.Len(),
		TierHigh:        tiers.High,
		TierMedium:      tiers.Medium,
		TierLow:         tiers.Low,
		TierCulled:      tiers.Culled,
		FullAIUpdates:   report.Completed,
		StaggeredSkips:  uint64(report.Deferred),
		RaycastsUsed:    perception.TotalRequested + fire.TotalRequested,
		RaycastsDenied:  perception.TotalDenied + fire.TotalDenied,
		AIBudgetOverrun: report.SevereOverBudget,
	}
}

func (m *Match) handleTransition(tr zone.Transition) {
	ev := core.ZoneCaptureEvent{
		Time:      m.now(),
		Tick:      m.tick,
		ZoneID:    tr.ZoneID,
		ZoneName:  tr.ZoneName,
		PrevOwner: tr.PrevOwner,
		NewOwner:  tr.NewOwner,
	}
	m.publish(dispatcher.TopicZoneCaptured, ev)

	if m.opts.HUD != nil {
		lost := m.opts.PlayerFaction != core.FactionNone && tr.PrevOwner == m.opts.PlayerFaction
		m.opts.HUD.AddZoneCapture(tr.ZoneName, lost)
	}
	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.RecordZoneEvent(&ev); err != nil {
			m.log.Error("recording zone event failed", "error", err)
		}
	}
}

func (m *Match) applyBleed(dtSecs float64) {
	rate, bleeding := m.zones.BleedRate()
	if rate == 0 {
		return
	}
	switch bleeding {
	case core.FactionUS:
		m.ticketsUS = max(m.ticketsUS-rate*dtSecs, 0)
	case core.FactionOPFOR:
		m.ticketsOPFOR = max(m.ticketsOPFOR-rate*dtSecs, 0)
	}
}

func (m *Match) victoryState() match.State {
	capturable, us, opfor := m.zones.ControlCounts()
	return match.State{
		Phase:           m.phase,
		Elapsed:         m.elapsed,
		Durations:       match.DurationsFromConfig(m.opts.Match),
		IsTDM:           m.opts.Match.IsTDM,
		KillTarget:      m.opts.Match.KillTarget,
		KillsUS:         m.killsUS,
		KillsOPFOR:      m.killsOPFOR,
		TicketsUS:       m.ticketsUS,
		TicketsOPFOR:    m.ticketsOPFOR,
		TicketMargin:    m.opts.Match.OvertimeTicketMargin,
		ZonesCapturable: capturable,
		ZonesUS:         us,
		ZonesOPFOR:      opfor,
	}
}

func (m *Match) finish(result core.VictoryResult) {
	m.result = result
	m.phase = core.PhaseEnded
	m.ended = true

	m.log.Info("match ended",
		"winner", result.Winner.String(),
		"reason", result.Reason.String(),
		"tick", m.tick,
		"ticketsUS", m.ticketsUS,
		"ticketsOPFOR", m.ticketsOPFOR)

	final := core.MatchResult{
		Time:         m.now(),
		Tick:         m.tick,
		Winner:       result.Winner,
		Reason:       result.Reason,
		TicketsUS:    m.ticketsUS,
		TicketsOPFOR: m.ticketsOPFOR,
		Duration:     m.elapsed,
	}
	m.publish(dispatcher.TopicMatchEnded, final)

	if m.opts.HUD != nil {
		m.opts.HUD.AddMatchEnd(result.Winner, result.Reason)
	}
	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.RecordResult(&final); err != nil {
			m.log.Error("recording result failed", "error", err)
		}
		if err := m.opts.Recorder.EndMatch(); err != nil {
			m.log.Error("finalizing recorder failed", "error", err)
		}
	}
}

func (m *Match) recordSample(tickDuration time.Duration) {
	if m.opts.Recorder == nil {
		return
	}
	sample := m.Snapshot()
	sample.TickDurationMs = float64(tickDuration.Microseconds()) / 1000
	if err := m.opts.Recorder.RecordTickSample(&sample); err != nil {
		m.log.Error("recording tick sample failed", "error", err)
	}
}

func (m *Match) publish(topic string, payload any) {
	if m.opts.Events == nil {
		return
	}
	err := m.opts.Events.Publish(dispatcher.Event{
		Topic:     topic,
		Tick:      m.tick,
		Timestamp: m.now(),
		Payload:   payload,
	})
	if err != nil {
		m.log.Error("publishing event failed", "topic", topic, "error", err)
	}
}
