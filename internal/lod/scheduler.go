package lod

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/queue"
	"github.com/tacsim/battlesim/pkg/core"
)

// budgetCheckStride: elapsed time is sampled every this many updates rather
// than per update, keeping clock reads off the hot path.
const budgetCheckStride = 8

// maxIntervalScale bounds how far the stagger widens under sustained load.
const maxIntervalScale = 4

// UpdateReport summarizes one scheduler pass.
type UpdateReport struct {
	Completed        int
	Deferred         int
	Elapsed          time.Duration
	SevereOverBudget bool
}

// SchedulerStats is a snapshot of the scheduler's cumulative counters.
type SchedulerStats struct {
	FrameCounter             uint64
	IntervalScale            int
	StaggeredSkips           uint64
	AIBudgetExceededEvents   uint64
	AISevereOverBudgetEvents uint64
}

// Scheduler staggers full AI updates over ticks. It is cooperative and
// best-effort: work that does not fit the budget this tick is deferred to
// the next, never dropped and never blocked on.
// Not safe for concurrent use; the tick loop is the single caller.
type Scheduler struct {
	cfg config.LODConfig

	frameCounter  uint64
	intervalScale int

	offsets  map[string]int
	deferred *queue.Queue[string]
	rng      *rand.Rand
	now      func() time.Time

	staggeredSkips           uint64
	budgetExceededEvents     uint64
	severeOverBudgetEvents   uint64

	exceededCounter metric.Int64Counter
	skipsCounter    metric.Int64Counter
}

// NewScheduler creates a scheduler. seed fixes the stagger offsets for
// reproducible runs; now may override the clock for tests (nil means
// time.Now). Uses the global OTel meter for metrics.
func NewScheduler(cfg config.LODConfig, seed int64, now func() time.Time) (*Scheduler, error) {
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{
		cfg:           cfg,
		intervalScale: 1,
		offsets:       make(map[string]int),
		deferred:      queue.New[string](),
		rng:           rand.New(rand.NewSource(seed)),
		now:           now,
	}

	m := meter()
	var err error

	s.exceededCounter, err = m.Int64Counter(
		"ai.budget.exceeded",
		metric.WithDescription("Ticks where the AI wall-clock budget was exceeded"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating budget counter: %w", err)
	}

	s.skipsCounter, err = m.Int64Counter(
		"ai.staggered.skips",
		metric.WithDescription("Full updates deferred to a later tick"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skips counter: %w", err)
	}

	return s, nil
}

// Forget drops per-combatant scheduling state, called on despawn.
func (s *Scheduler) Forget(id string) {
	delete(s.offsets, id)
}

func (s *Scheduler) offset(id string, interval int) int {
	if o, ok := s.offsets[id]; ok {
		return o
	}
	o := 0
	if interval > 1 {
		o = s.rng.Intn(interval)
	}
	s.offsets[id] = o
	return o
}

// due reports whether a combatant's full update lands on this tick.
func (s *Scheduler) due(id string, tier core.LODTier) bool {
	var interval int
	switch tier {
	case core.TierHigh:
		interval = s.cfg.HighInterval
	case core.TierMedium:
		interval = s.cfg.MediumInterval
	default:
		// Low and culled tiers never receive full updates.
		return false
	}
	if interval < 1 {
		interval = 1
	}
	interval *= s.intervalScale
	return (s.frameCounter+uint64(s.offset(id, interval)))%uint64(interval) == 0
}

// RunFullUpdates executes one tick's worth of full AI updates. combatants
// must already carry this tick's tiers. fn runs one combatant's full update.
// Work deferred from earlier ticks runs first, then newly due combatants up
// to the per-tier caps; whatever the wall-clock budget cuts off is deferred.
func (s *Scheduler) RunFullUpdates(combatants []*core.Combatant, fn func(id string)) UpdateReport {
	s.frameCounter++
	start := s.now()
	budget := time.Duration(s.cfg.AIBudgetMs * float64(time.Millisecond))

	byID := make(map[string]*core.Combatant, len(combatants))
	for _, c := range combatants {
		byID[c.ID] = c
	}

	// Deferred work from previous ticks runs first, regardless of caps.
	pending := make([]string, 0, len(combatants))
	for _, id := range s.deferred.Drain() {
		if _, ok := byID[id]; ok {
			pending = append(pending, id)
		}
	}
	queued := make(map[string]bool, len(pending))
	for _, id := range pending {
		queued[id] = true
	}

	highBudget := s.cfg.MaxHighFullUpdates
	mediumBudget := s.cfg.MaxMediumFullUpdates
	for _, c := range combatants {
		if queued[c.ID] || !c.Alive() || !s.due(c.ID, c.Tier) {
			continue
		}
		switch c.Tier {
		case core.TierHigh:
			if highBudget <= 0 {
				s.skip(1)
				continue
			}
			highBudget--
		case core.TierMedium:
			if mediumBudget <= 0 {
				s.skip(1)
				continue
			}
			mediumBudget--
		}
		pending = append(pending, c.ID)
	}

	report := UpdateReport{}
	for i, id := range pending {
		if i > 0 && i%budgetCheckStride == 0 && budget > 0 {
			elapsed := s.now().Sub(start)
			if elapsed > budget {
				severe := float64(elapsed) > float64(budget)*s.cfg.SevereOverBudgetFactor
				s.recordOverrun(severe)
				report.SevereOverBudget = severe

				remaining := pending[i:]
				s.deferred.Push(remaining...)
				s.skip(len(remaining))
				report.Deferred = len(remaining)

				s.widenStagger()
				report.Elapsed = elapsed
				return report
			}
		}
		fn(id)
		report.Completed++
	}

	report.Elapsed = s.now().Sub(start)
	s.relaxStagger(report.Elapsed, budget)
	return report
}

func (s *Scheduler) skip(n int) {
	s.staggeredSkips += uint64(n)
	s.skipsCounter.Add(context.Background(), int64(n))
}

func (s *Scheduler) recordOverrun(severe bool) {
	if severe {
		s.severeOverBudgetEvents++
	} else {
		s.budgetExceededEvents++
	}
	s.exceededCounter.Add(context.Background(), 1)
}

func (s *Scheduler) widenStagger() {
	if s.intervalScale < maxIntervalScale {
		s.intervalScale++
	}
}

// relaxStagger narrows the stagger again once ticks run comfortably under
// budget.
func (s *Scheduler) relaxStagger(elapsed, budget time.Duration) {
	if s.intervalScale > 1 && budget > 0 && elapsed < budget/2 {
		s.intervalScale--
	}
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		FrameCounter:             s.frameCounter,
		IntervalScale:            s.intervalScale,
		StaggeredSkips:           s.staggeredSkips,
		AIBudgetExceededEvents:   s.budgetExceededEvents,
		AISevereOverBudgetEvents: s.severeOverBudgetEvents,
	}
}
