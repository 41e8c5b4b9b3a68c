package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacsim/battlesim/pkg/core"
)

func TestRoster_SpawnAndGet(t *testing.T) {
	r := NewRoster()

	h := r.Spawn(core.Combatant{ID: "us_1", Faction: core.FactionUS, Health: 100})

	c, ok := r.Get("us_1")
	require.True(t, ok)
	assert.Equal(t, core.FactionUS, c.Faction)

	byHandle, ok := r.ByHandle(h)
	require.True(t, ok)
	assert.Same(t, c, byHandle)
	assert.Equal(t, 1, r.Len())
}

func TestRoster_DespawnInvalidatesHandle(t *testing.T) {
	r := NewRoster()

	h := r.Spawn(core.Combatant{ID: "us_1"})
	require.True(t, r.Despawn("us_1"))

	_, ok := r.Get("us_1")
	assert.False(t, ok)
	_, ok = r.ByHandle(h)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	assert.False(t, r.Despawn("us_1"), "second despawn is a no-op")
}

func TestRoster_SlotReuseRejectsStaleHandle(t *testing.T) {
	r := NewRoster()

	old := r.Spawn(core.Combatant{ID: "us_1"})
	r.Despawn("us_1")

	// The freed slot is reused; the old handle's generation is stale.
	r.Spawn(core.Combatant{ID: "op_1", Faction: core.FactionOPFOR})

	_, ok := r.ByHandle(old)
	assert.False(t, ok)

	c, ok := r.Get("op_1")
	require.True(t, ok)
	assert.Equal(t, core.FactionOPFOR, c.Faction)
}

func TestRoster_SpawnReplacesExistingID(t *testing.T) {
	r := NewRoster()

	r.Spawn(core.Combatant{ID: "us_1", Health: 100})
	r.Spawn(core.Combatant{ID: "us_1", Health: 40})

	assert.Equal(t, 1, r.Len())
	c, _ := r.Get("us_1")
	assert.Equal(t, 40.0, c.Health)
}

func TestRoster_Combatants(t *testing.T) {
	r := NewRoster()
	for i := 0; i < 5; i++ {
		r.Spawn(core.Combatant{ID: fmt.Sprintf("c%d", i)})
	}
	r.Despawn("c2")

	combatants := r.Combatants()
	assert.Len(t, combatants, 4)
	for _, c := range combatants {
		assert.NotEqual(t, "c2", c.ID)
	}
}

func TestRoster_MutationThroughPointer(t *testing.T) {
	r := NewRoster()
	r.Spawn(core.Combatant{ID: "us_1", Health: 100})

	c, _ := r.Get("us_1")
	c.Health = 25
	c.State = core.StateSuppressing

	again, _ := r.Get("us_1")
	assert.Equal(t, 25.0, again.Health)
	assert.Equal(t, core.StateSuppressing, again.State)
}
