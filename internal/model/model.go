// Package model holds the database schema for match recording.
package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels lists every struct representing a table in the schema.
var DatabaseModels = []interface{}{
	&Match{},
	&ZoneCaptureEvent{},
	&KillEvent{},
	&TickSample{},
	&MatchResult{},
}

// Match is one recorded match.
type Match struct {
	gorm.Model
	Name         string    `json:"name" gorm:"size:255"`
	WorldSize    float64   `json:"worldSize"`
	IsTDM        bool      `json:"isTDM"`
	StartTime    time.Time `json:"startTime"`
	StartTickets float64   `json:"startTickets"`

	ZoneCaptureEvents []ZoneCaptureEvent `json:"-" gorm:"foreignkey:MatchID"`
	KillEvents        []KillEvent        `json:"-" gorm:"foreignkey:MatchID"`
	TickSamples       []TickSample       `json:"-" gorm:"foreignkey:MatchID"`
}

// ZoneCaptureEvent is one zone-ownership transition.
type ZoneCaptureEvent struct {
	gorm.Model
	MatchID   uint      `json:"matchId"`
	Match     Match     `json:"-"`
	Time      time.Time `json:"time"`
	Tick      uint64    `json:"tick"`
	ZoneID    string    `json:"zoneId" gorm:"size:64;index:idx_zone_capture_zone"`
	ZoneName  string    `json:"zoneName" gorm:"size:255"`
	PrevOwner string    `json:"prevOwner" gorm:"size:16"`
	NewOwner  string    `json:"newOwner" gorm:"size:16"`
}

// KillEvent is one combatant killing another.
type KillEvent struct {
	gorm.Model
	MatchID  uint      `json:"matchId"`
	Match    Match     `json:"-"`
	Time     time.Time `json:"time"`
	Tick     uint64    `json:"tick"`
	KillerID string    `json:"killerId" gorm:"size:64"`
	VictimID string    `json:"victimId" gorm:"size:64"`
	Killer   string    `json:"killer" gorm:"size:16"`
	Victim   string    `json:"victim" gorm:"size:16"`
	FireLine string    `json:"fireLine" gorm:"size:256"`
	Distance float64   `json:"distance"`
}

// TickSample is periodic per-tick telemetry. Tier counts and budget counters
// are stored as a JSON blob; they are analysis data, never queried by column.
type TickSample struct {
	gorm.Model
	MatchID      uint           `json:"matchId"`
	Match        Match          `json:"-"`
	Time         time.Time      `json:"time"`
	Tick         uint64         `json:"tick" gorm:"index:idx_tick_sample_tick"`
	Phase        string         `json:"phase" gorm:"size:16"`
	TicketsUS    float64        `json:"ticketsUS"`
	TicketsOPFOR float64        `json:"ticketsOPFOR"`
	Combatants   int            `json:"combatants"`
	Performance  datatypes.JSON `json:"performance"`
}

// MatchResult is the terminal record of a finished match.
type MatchResult struct {
	gorm.Model
	MatchID      uint      `json:"matchId"`
	Match        Match     `json:"-"`
	Time         time.Time `json:"time"`
	Tick         uint64    `json:"tick"`
	Winner       string    `json:"winner" gorm:"size:16"`
	Reason       string    `json:"reason" gorm:"size:32"`
	TicketsUS    float64   `json:"ticketsUS"`
	TicketsOPFOR float64   `json:"ticketsOPFOR"`
	DurationSecs float64   `json:"durationSecs"`
}
