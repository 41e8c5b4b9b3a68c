package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"world": { "size": 8192 },
		"match": { "isTDM": true, "killTarget": 30 }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battlesim.cfg.json"), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 8192.0, viper.GetFloat64("world.size"))
	assert.Equal(t, true, viper.GetBool("match.isTDM"))
	assert.Equal(t, 30, viper.GetInt("match.killTarget"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battlesim.cfg.json"), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, 4096.0, viper.GetFloat64("world.size"))
	assert.Equal(t, 30, viper.GetInt("world.tickRate"))
	assert.Equal(t, 500.0, viper.GetFloat64("match.startTickets"))
	assert.Equal(t, 50.0, viper.GetFloat64("match.overtimeTicketMargin"))
	assert.Equal(t, 1.0, viper.GetFloat64("capture.dwellSeconds"))
	assert.Equal(t, 0.5, viper.GetFloat64("capture.bleedPerZone"))
	assert.Equal(t, 64, viper.GetInt("raycast.perceptionPerFrame"))
	assert.Equal(t, 32, viper.GetInt("raycast.firePerFrame"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./recordings", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("stream.enabled"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "battlesim", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, 4096.0, viper.GetFloat64("world.size"))
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battlesim.cfg.json"), []byte(`{not json`), 0644))

	err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	sc := GetStorageConfig()
	assert.Equal(t, "memory", sc.Type)
	assert.Equal(t, "./recordings", sc.Memory.OutputDir)
	assert.Equal(t, true, sc.Memory.CompressOutput)
	assert.Equal(t, "./recordings/battlesim.db", sc.SQLite.Path)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/match.db" }
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battlesim.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/match.db", sc.SQLite.Path)
}

func TestGetOTelConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"otel": {
			"enabled": true,
			"serviceName": "my-sim",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battlesim.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-sim", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetLODConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	lc := GetLODConfig()
	assert.Equal(t, 150.0, lc.HighDistance)
	assert.Equal(t, 400.0, lc.MediumDistance)
	assert.Equal(t, 900.0, lc.LowDistance)
	assert.Equal(t, 20, lc.MaxHighFullUpdates)
	assert.Equal(t, 10, lc.MaxMediumFullUpdates)
	assert.Equal(t, 8.0, lc.AIBudgetMs)
	assert.Equal(t, 2.0, lc.SevereOverBudgetFactor)
}

func TestGetRaycastConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	rc := GetRaycastConfig()
	assert.Equal(t, 64, rc.PerceptionPerFrame)
	assert.Equal(t, 32, rc.FirePerFrame)
	assert.Equal(t, 500*time.Millisecond, rc.CacheTTL)
	assert.Equal(t, 1200.0, rc.MaxRange)
}

func TestGetZones(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"zones": [
			{ "id": "alpha", "name": "Hilltop", "position": "100,200,15", "radius": 40, "owner": "", "isHomeBase": false, "ticketBleedRate": 1 },
			{ "id": "us_base", "name": "US Base", "position": "0,0,0", "radius": 80, "owner": "US", "isHomeBase": true, "ticketBleedRate": 0 }
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battlesim.cfg.json"), []byte(cfg), 0644))
	require.NoError(t, Load(dir))

	zones, err := GetZones()
	require.NoError(t, err)
	require.Len(t, zones, 2)

	assert.Equal(t, "alpha", zones[0].ID)
	assert.Equal(t, "Hilltop", zones[0].Name)
	assert.Equal(t, 40.0, zones[0].Radius)
	assert.False(t, zones[0].IsHomeBase)

	assert.Equal(t, "US", zones[1].Owner)
	assert.True(t, zones[1].IsHomeBase)
}
