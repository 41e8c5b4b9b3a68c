package main

import (
	"fmt"
	"math/rand"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/sim"
	"github.com/tacsim/battlesim/pkg/core"
)

// killChance is the per-update probability that a clear shot connects. Kept
// low so matches are decided by zone control more often than attrition.
const killChance = 0.02

// forces generates and drives the two opposing sides. Each bot walks toward
// the nearest zone its faction does not own and takes opportunistic shots at
// enemies in range. The logic runs inside the scheduler's full updates, so a
// bot's reaction speed follows its LOD tier.
type forces struct {
	cfg   config.ScenarioConfig
	rng   *rand.Rand
	match *sim.Match

	spawns     map[core.Faction]core.Position3D
	objectives []core.ZoneDefinition
	byFaction  map[core.Faction][]string
}

func newForces(cfg config.ScenarioConfig, zones []core.ZoneDefinition, worldSize float64, seed int64) *forces {
	f := &forces{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		spawns:    make(map[core.Faction]core.Position3D),
		byFaction: make(map[core.Faction][]string),
	}

	for _, z := range zones {
		if z.IsHomeBase && z.Owner != core.FactionNone {
			f.spawns[z.Owner] = z.Position
			continue
		}
		f.objectives = append(f.objectives, z)
	}
	// Without home bases, deploy from opposite corners.
	if _, ok := f.spawns[core.FactionUS]; !ok {
		f.spawns[core.FactionUS] = core.Position3D{X: worldSize * 0.05, Y: worldSize * 0.05}
	}
	if _, ok := f.spawns[core.FactionOPFOR]; !ok {
		f.spawns[core.FactionOPFOR] = core.Position3D{X: worldSize * 0.95, Y: worldSize * 0.95}
	}

	return f
}

// Deploy spawns both sides around their home positions.
func (f *forces) Deploy(m *sim.Match) {
	f.match = m
	f.deployFaction(core.FactionUS, "us")
	f.deployFaction(core.FactionOPFOR, "op")
}

func (f *forces) deployFaction(faction core.Faction, prefix string) {
	spawn := f.spawns[faction]
	for i := 0; i < f.cfg.CombatantsPerFaction; i++ {
		id := fmt.Sprintf("%s_%d", prefix, i)
		f.match.Spawn(core.Combatant{
			ID:      id,
			Faction: faction,
			Position: core.Position3D{
				X: spawn.X + (f.rng.Float64()-0.5)*100,
				Y: spawn.Y + (f.rng.Float64()-0.5)*100,
			},
			Health: 100,
			State:  core.StateAlive,
		})
		f.byFaction[faction] = append(f.byFaction[faction], id)
	}
}

// Centroids returns the mean position of each side's living combatants.
// The headless runner anchors LOD relevance here: the fighting is wherever
// the forces are, so the centroids keep marching bots in the active tiers.
func (f *forces) Centroids() []core.Position3D {
	out := make([]core.Position3D, 0, len(f.byFaction))
	for _, ids := range f.byFaction {
		var sum core.Position3D
		alive := 0
		for _, id := range ids {
			c, ok := f.match.Combatant(id)
			if !ok || !c.Alive() {
				continue
			}
			sum = sum.Add(c.Position)
			alive++
		}
		if alive > 0 {
			out = append(out, sum.Scale(1/float64(alive)))
		}
	}
	return out
}

// Update is one bot's full AI pass, invoked by the scheduler.
func (f *forces) Update(id string) {
	c, ok := f.match.Combatant(id)
	if !ok || !c.Alive() {
		return
	}

	f.move(c)
	f.engage(c)
}

func (f *forces) move(c *core.Combatant) {
	target, ok := f.nearestObjective(c)
	if !ok {
		return
	}

	dir := target.Sub(c.Position)
	dist := dir.Length()
	if dist < 1 {
		c.Velocity = core.Position3D{}
		return
	}

	// Scheduler cadence is the movement cadence, so distance per update is
	// the configured stride. A small lateral jitter keeps bots from
	// stacking on one line.
	step := dir.Normalize().Scale(min(f.cfg.MoveSpeed, dist))
	step.X += (f.rng.Float64() - 0.5) * f.cfg.MoveSpeed * 0.5
	step.Y += (f.rng.Float64() - 0.5) * f.cfg.MoveSpeed * 0.5

	c.Position = c.Position.Add(step)
	c.Velocity = dir.Normalize()
}

// nearestObjective picks the closest zone the bot's faction does not hold.
func (f *forces) nearestObjective(c *core.Combatant) (core.Position3D, bool) {
	statuses := f.match.ZoneStatuses()
	owned := make(map[string]core.Faction, len(statuses))
	for _, s := range statuses {
		owned[s.ID] = s.Owner
	}

	best := core.Position3D{}
	bestDist := -1.0
	for _, z := range f.objectives {
		if owned[z.ID] == c.Faction {
			continue
		}
		d := c.Position.DistanceTo(z.Position)
		if bestDist < 0 || d < bestDist {
			best = z.Position
			bestDist = d
		}
	}
	if bestDist < 0 {
		// Everything is held; defend the closest objective.
		for _, z := range f.objectives {
			d := c.Position.DistanceTo(z.Position)
			if bestDist < 0 || d < bestDist {
				best = z.Position
				bestDist = d
			}
		}
	}
	return best, bestDist >= 0
}

func (f *forces) engage(c *core.Combatant) {
	enemyID, ok := f.nearestEnemy(c)
	if !ok {
		return
	}

	if !f.match.CanSee(c.ID, enemyID) {
		return
	}
	if !f.match.FireLineClear(c.ID, enemyID) {
		return
	}
	if f.rng.Float64() < killChance {
		f.match.ReportKill(c.ID, enemyID)
	}
}

func (f *forces) nearestEnemy(c *core.Combatant) (string, bool) {
	var bestID string
	bestDist := f.cfg.EngageRange
	for _, id := range f.byFaction[c.Faction.Opponent()] {
		enemy, ok := f.match.Combatant(id)
		if !ok || !enemy.Alive() {
			continue
		}
		d := c.Position.DistanceTo(enemy.Position)
		if d <= bestDist {
			bestID = id
			bestDist = d
		}
	}
	return bestID, bestID != ""
}
