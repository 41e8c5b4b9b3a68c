// Package config loads simulation configuration with viper: defaults first,
// then an optional battlesim.cfg.json overriding them.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MemoryConfig holds in-memory/JSON recording backend settings.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds sqlite recording backend settings.
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// StorageConfig selects and configures the match recording backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB performance-export settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// ScenarioConfig controls the generated opposing forces in a headless run.
type ScenarioConfig struct {
	CombatantsPerFaction int     `json:"combatantsPerFaction" mapstructure:"combatantsPerFaction"`
	Seed                 int64   `json:"seed" mapstructure:"seed"`
	MoveSpeed            float64 `json:"moveSpeed" mapstructure:"moveSpeed"`
	EngageRange          float64 `json:"engageRange" mapstructure:"engageRange"`
}

// APIConfig holds the replay upload endpoint settings.
type APIConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Key     string `json:"key" mapstructure:"key"`
}

// StreamConfig holds the live spectator websocket feed settings.
type StreamConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Address  string        `json:"address" mapstructure:"address"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// ZoneConfig is one capture zone as written in the scenario file. Position is
// a coordinate string, either planar "x,y,z" meters or geodetic "lon,lat"
// when world.geodetic is set.
type ZoneConfig struct {
	ID              string  `json:"id" mapstructure:"id"`
	Name            string  `json:"name" mapstructure:"name"`
	Position        string  `json:"position" mapstructure:"position"`
	Radius          float64 `json:"radius" mapstructure:"radius"`
	Owner           string  `json:"owner" mapstructure:"owner"`
	IsHomeBase      bool    `json:"isHomeBase" mapstructure:"isHomeBase"`
	TicketBleedRate float64 `json:"ticketBleedRate" mapstructure:"ticketBleedRate"`
}

// MatchConfig holds the match mode, phase durations and ticket economy.
type MatchConfig struct {
	Name                 string        `json:"name" mapstructure:"name"`
	SetupDuration        time.Duration `json:"setupDuration" mapstructure:"setupDuration"`
	CombatDuration       time.Duration `json:"combatDuration" mapstructure:"combatDuration"`
	OvertimeDuration     time.Duration `json:"overtimeDuration" mapstructure:"overtimeDuration"`
	StartTickets         float64       `json:"startTickets" mapstructure:"startTickets"`
	OvertimeTicketMargin float64       `json:"overtimeTicketMargin" mapstructure:"overtimeTicketMargin"`
	KillTarget           int           `json:"killTarget" mapstructure:"killTarget"`
	IsTDM                bool          `json:"isTDM" mapstructure:"isTDM"`
}

// CaptureConfig holds the zone capture tuning values.
type CaptureConfig struct {
	Speed             float64       `json:"speed" mapstructure:"speed"`
	DwellSeconds      float64       `json:"dwellSeconds" mapstructure:"dwellSeconds"`
	OccupancyInterval time.Duration `json:"occupancyInterval" mapstructure:"occupancyInterval"`
	BleedPerZone      float64       `json:"bleedPerZone" mapstructure:"bleedPerZone"`
}

// LODConfig holds the detail-tier thresholds and scheduler caps. These are
// tuning values, not correctness invariants.
type LODConfig struct {
	HighDistance           float64 `json:"highDistance" mapstructure:"highDistance"`
	MediumDistance         float64 `json:"mediumDistance" mapstructure:"mediumDistance"`
	LowDistance            float64 `json:"lowDistance" mapstructure:"lowDistance"`
	ZoneProximityBonus     float64 `json:"zoneProximityBonus" mapstructure:"zoneProximityBonus"`
	MaxHighFullUpdates     int     `json:"maxHighFullUpdates" mapstructure:"maxHighFullUpdates"`
	MaxMediumFullUpdates   int     `json:"maxMediumFullUpdates" mapstructure:"maxMediumFullUpdates"`
	AIBudgetMs             float64 `json:"aiBudgetMs" mapstructure:"aiBudgetMs"`
	HighInterval           int     `json:"highInterval" mapstructure:"highInterval"`
	MediumInterval         int     `json:"mediumInterval" mapstructure:"mediumInterval"`
	SevereOverBudgetFactor float64 `json:"severeOverBudgetFactor" mapstructure:"severeOverBudgetFactor"`
}

// RaycastConfig holds line-of-sight budgets and cache settings.
type RaycastConfig struct {
	PerceptionPerFrame int           `json:"perceptionPerFrame" mapstructure:"perceptionPerFrame"`
	FirePerFrame       int           `json:"firePerFrame" mapstructure:"firePerFrame"`
	CacheTTL           time.Duration `json:"cacheTTL" mapstructure:"cacheTTL"`
	MaxRange           float64       `json:"maxRange" mapstructure:"maxRange"`
	FOVDegrees         float64       `json:"fovDegrees" mapstructure:"fovDegrees"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file is
// not an error; defaults apply.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("world.size", 4096.0)
	viper.SetDefault("world.geodetic", false)
	viper.SetDefault("world.tickRate", 30)

	viper.SetDefault("match.name", "Skirmish")
	viper.SetDefault("match.setupDuration", "60s")
	viper.SetDefault("match.combatDuration", "25m")
	viper.SetDefault("match.overtimeDuration", "5m")
	viper.SetDefault("match.startTickets", 500.0)
	viper.SetDefault("match.overtimeTicketMargin", 50.0)
	viper.SetDefault("match.killTarget", 0)
	viper.SetDefault("match.isTDM", false)

	viper.SetDefault("capture.speed", 5.0)
	viper.SetDefault("capture.dwellSeconds", 1.0)
	viper.SetDefault("capture.occupancyInterval", "100ms")
	viper.SetDefault("capture.bleedPerZone", 0.5)

	viper.SetDefault("lod.highDistance", 150.0)
	viper.SetDefault("lod.mediumDistance", 400.0)
	viper.SetDefault("lod.lowDistance", 900.0)
	viper.SetDefault("lod.zoneProximityBonus", 100.0)
	viper.SetDefault("lod.maxHighFullUpdates", 20)
	viper.SetDefault("lod.maxMediumFullUpdates", 10)
	viper.SetDefault("lod.aiBudgetMs", 8.0)
	viper.SetDefault("lod.highInterval", 1)
	viper.SetDefault("lod.mediumInterval", 3)
	viper.SetDefault("lod.severeOverBudgetFactor", 2.0)

	viper.SetDefault("raycast.perceptionPerFrame", 64)
	viper.SetDefault("raycast.firePerFrame", 32)
	viper.SetDefault("raycast.cacheTTL", "500ms")
	viper.SetDefault("raycast.maxRange", 1200.0)
	viper.SetDefault("raycast.fovDegrees", 200.0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/battlesim.db")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "battlesim")

	viper.SetDefault("scenario.combatantsPerFaction", 32)
	viper.SetDefault("scenario.seed", 0)
	viper.SetDefault("scenario.moveSpeed", 4.0)
	viper.SetDefault("scenario.engageRange", 300.0)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.url", "http://localhost:5000")
	viper.SetDefault("api.key", "")

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.address", "localhost:8077")
	viper.SetDefault("stream.interval", "1s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "battlesim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("battlesim.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float64 config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the recording backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB export configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetScenarioConfig returns the generated-forces settings.
func GetScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		CombatantsPerFaction: viper.GetInt("scenario.combatantsPerFaction"),
		Seed:                 viper.GetInt64("scenario.seed"),
		MoveSpeed:            viper.GetFloat64("scenario.moveSpeed"),
		EngageRange:          viper.GetFloat64("scenario.engageRange"),
	}
}

// GetAPIConfig returns the replay upload configuration.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled: viper.GetBool("api.enabled"),
		URL:     viper.GetString("api.url"),
		Key:     viper.GetString("api.key"),
	}
}

// GetStreamConfig returns the spectator stream configuration.
func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled:  viper.GetBool("stream.enabled"),
		Address:  viper.GetString("stream.address"),
		Interval: viper.GetDuration("stream.interval"),
	}
}

// GetMatchConfig returns the match mode, durations and ticket settings.
func GetMatchConfig() MatchConfig {
	return MatchConfig{
		Name:                 viper.GetString("match.name"),
		SetupDuration:        viper.GetDuration("match.setupDuration"),
		CombatDuration:       viper.GetDuration("match.combatDuration"),
		OvertimeDuration:     viper.GetDuration("match.overtimeDuration"),
		StartTickets:         viper.GetFloat64("match.startTickets"),
		OvertimeTicketMargin: viper.GetFloat64("match.overtimeTicketMargin"),
		KillTarget:           viper.GetInt("match.killTarget"),
		IsTDM:                viper.GetBool("match.isTDM"),
	}
}

// GetCaptureConfig returns the zone capture tuning values.
func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Speed:             viper.GetFloat64("capture.speed"),
		DwellSeconds:      viper.GetFloat64("capture.dwellSeconds"),
		OccupancyInterval: viper.GetDuration("capture.occupancyInterval"),
		BleedPerZone:      viper.GetFloat64("capture.bleedPerZone"),
	}
}

// GetLODConfig returns the LOD/scheduler tuning values.
func GetLODConfig() LODConfig {
	return LODConfig{
		HighDistance:           viper.GetFloat64("lod.highDistance"),
		MediumDistance:         viper.GetFloat64("lod.mediumDistance"),
		LowDistance:            viper.GetFloat64("lod.lowDistance"),
		ZoneProximityBonus:     viper.GetFloat64("lod.zoneProximityBonus"),
		MaxHighFullUpdates:     viper.GetInt("lod.maxHighFullUpdates"),
		MaxMediumFullUpdates:   viper.GetInt("lod.maxMediumFullUpdates"),
		AIBudgetMs:             viper.GetFloat64("lod.aiBudgetMs"),
		HighInterval:           viper.GetInt("lod.highInterval"),
		MediumInterval:         viper.GetInt("lod.mediumInterval"),
		SevereOverBudgetFactor: viper.GetFloat64("lod.severeOverBudgetFactor"),
	}
}

// GetRaycastConfig returns the raycast budget configuration.
func GetRaycastConfig() RaycastConfig {
	return RaycastConfig{
		PerceptionPerFrame: viper.GetInt("raycast.perceptionPerFrame"),
		FirePerFrame:       viper.GetInt("raycast.firePerFrame"),
		CacheTTL:           viper.GetDuration("raycast.cacheTTL"),
		MaxRange:           viper.GetFloat64("raycast.maxRange"),
		FOVDegrees:         viper.GetFloat64("raycast.fovDegrees"),
	}
}

// GetZones returns the scenario zone list.
func GetZones() ([]ZoneConfig, error) {
	var zones []ZoneConfig
	if err := viper.UnmarshalKey("zones", &zones); err != nil {
		return nil, fmt.Errorf("error decoding zones: %w", err)
	}
	return zones, nil
}
