// Package los implements pair-wise line-of-sight checks behind a cache and
// a hard per-tick raycast budget. Terrain raycasts are the most expensive
// operation in the simulation; the budget caps worst-case per-tick cost no
// matter how many combatants are fielded, trading perception accuracy for
// throughput under load.
package los

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BudgetStats is a snapshot of one raycast budget.
type BudgetStats struct {
	Name                 string
	MaxPerFrame          int
	UsedThisFrame        int
	DeniedThisFrame      int
	TotalRequested       uint64
	TotalDenied          uint64
	TotalExhaustedFrames uint64
	SaturationRate       float64
	DenialRate           float64
}

// Budget is a per-tick cap on terrain raycasts, shared by every consumer of
// one class of casts. Two independent budgets exist in a match: perception
// (AI targeting) and fire resolution (shot occlusion).
// Not safe for concurrent use; the tick loop is the single writer.
type Budget struct {
	name        string
	maxPerFrame int

	usedThisFrame   int
	deniedThisFrame int

	totalRequested       uint64
	totalDenied          uint64
	totalExhaustedFrames uint64

	requested metric.Int64Counter
	denied    metric.Int64Counter
	attrs     metric.MeasurementOption
}

// NewBudget creates a budget allowing maxPerFrame raycasts per tick.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewBudget(name string, maxPerFrame int) (*Budget, error) {
	b := &Budget{
		name:        name,
		maxPerFrame: maxPerFrame,
		attrs:       metric.WithAttributes(attribute.String("budget", name)),
	}

	m := meter()
	var err error

	b.requested, err = m.Int64Counter(
		"raycast.requests",
		metric.WithDescription("Total raycasts requested against this budget"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requested counter: %w", err)
	}

	b.denied, err = m.Int64Counter(
		"raycast.denials",
		metric.WithDescription("Total raycasts denied by budget exhaustion"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating denied counter: %w", err)
	}

	return b, nil
}

// TryAcquire requests one raycast. It returns true when the caller may cast
// this tick; a false return is telemetry, not an error.
func (b *Budget) TryAcquire() bool {
	b.totalRequested++
	b.requested.Add(context.Background(), 1, b.attrs)

	if b.usedThisFrame < b.maxPerFrame {
		b.usedThisFrame++
		return true
	}

	b.deniedThisFrame++
	b.totalDenied++
	b.denied.Add(context.Background(), 1, b.attrs)
	return false
}

// ResetFrame closes out the current tick. A tick that consumed the whole
// budget counts as an exhausted frame.
func (b *Budget) ResetFrame() {
	if b.maxPerFrame > 0 && b.usedThisFrame >= b.maxPerFrame {
		b.totalExhaustedFrames++
	}
	b.usedThisFrame = 0
	b.deniedThisFrame = 0
}

// Remaining returns how many raycasts are still allowed this tick.
func (b *Budget) Remaining() int {
	return b.maxPerFrame - b.usedThisFrame
}

// Stats returns a snapshot of the budget counters.
func (b *Budget) Stats() BudgetStats {
	s := BudgetStats{
		Name:                 b.name,
		MaxPerFrame:          b.maxPerFrame,
		UsedThisFrame:        b.usedThisFrame,
		DeniedThisFrame:      b.deniedThisFrame,
		TotalRequested:       b.totalRequested,
		TotalDenied:          b.totalDenied,
		TotalExhaustedFrames: b.totalExhaustedFrames,
	}
	if b.maxPerFrame > 0 {
		s.SaturationRate = float64(b.usedThisFrame) / float64(b.maxPerFrame)
	}
	if b.totalRequested > 0 {
		s.DenialRate = float64(b.totalDenied) / float64(b.totalRequested)
	}
	return s
}
