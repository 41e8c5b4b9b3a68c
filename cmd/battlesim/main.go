// Command battlesim runs a headless battlefield simulation: two generated
// forces fight over configured capture zones until a victory condition is
// met. The match is recorded for replay, optionally streamed to spectators
// over WebSocket and exported to InfluxDB.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tacsim/battlesim/internal/api"
	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/dispatcher"
	"github.com/tacsim/battlesim/internal/geo"
	"github.com/tacsim/battlesim/internal/influx"
	"github.com/tacsim/battlesim/internal/logging"
	"github.com/tacsim/battlesim/internal/monitor"
	intotel "github.com/tacsim/battlesim/internal/otel"
	"github.com/tacsim/battlesim/internal/sim"
	"github.com/tacsim/battlesim/internal/storage"
	"github.com/tacsim/battlesim/internal/stream"
	"github.com/tacsim/battlesim/pkg/core"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// tickContext publishes the loop position so every log record, from any
// goroutine, can be placed on the match timeline.
type tickContext struct {
	tick  atomic.Uint64
	phase atomic.Int32
}

func (t *tickContext) attrs() []slog.Attr {
	return []slog.Attr{
		slog.Uint64("tick", t.tick.Load()),
		slog.String("phase", core.GamePhase(t.phase.Load()).String()),
	}
}

// stateCache is a tick-thread-written, any-thread-read snapshot of match
// state. The match itself is single-threaded; the monitor and the spectator
// stream read from here instead.
type stateCache struct {
	mu     sync.RWMutex
	sample core.TickSample
	zones  []core.ZoneStatus
	ended  bool
}

func (c *stateCache) update(m *sim.Match) {
	sample := m.Snapshot()
	zones := m.ZoneStatuses()
	c.mu.Lock()
	c.sample = sample
	c.zones = zones
	c.ended = m.Ended()
	c.mu.Unlock()
}

func (c *stateCache) Snapshot() core.TickSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sample
}

func (c *stateCache) ZoneStatuses() []core.ZoneStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zones
}

func (c *stateCache) Tickets() (us, opfor float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sample.TicketsUS, c.sample.TicketsOPFOR
}

func (c *stateCache) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("battlesim %s (built %s)\n", Version, BuildDate)
		return
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(opts cliOptions) error {
	sessionStart := time.Now()

	if err := config.Load(opts.configDir); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.OpenFile(
		logging.LogFilePath(logsDir, "battlesim", sessionStart),
		os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	var otelLogWriter io.Writer
	if otelCfg.Enabled {
		f, err := os.Create(logging.LogFilePath(logsDir, "battlesim.otel", sessionStart))
		if err != nil {
			return fmt.Errorf("creating otel log file: %w", err)
		}
		defer f.Close()
		otelLogWriter = f
	}
	provider, err := intotel.New(intotel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    otelLogWriter,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}
	defer provider.Shutdown(context.Background())

	tickCtx := &tickContext{}
	logManager := logging.NewManager()
	logManager.Setup(logFile, config.GetString("logLevel"), provider.LoggerProvider(), tickCtx.attrs)
	log := logManager.Logger()
	defer logManager.Flush(context.Background())

	log.Info("battlesim starting", "version", Version, "buildDate", BuildDate)

	recorder, err := storage.NewBackend(config.GetStorageConfig())
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := recorder.Init(); err != nil {
		return fmt.Errorf("initializing storage backend: %w", err)
	}
	defer recorder.Close()

	events, err := dispatcher.New(log)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	worldSize := config.GetFloat("world.size")

	zoneCfgs, err := config.GetZones()
	if err != nil {
		return fmt.Errorf("reading zone config: %w", err)
	}
	zones, err := geo.ZonesFromConfig(zoneCfgs, config.GetBool("world.geodetic"), nil)
	if err != nil {
		return fmt.Errorf("building zones: %w", err)
	}
	if len(zones) == 0 {
		log.Info("no zones configured, using default layout")
		zones = defaultZones(worldSize)
	}

	cache := &stateCache{}

	var hud sim.HUDNotifier
	streamCfg := config.GetStreamConfig()
	var streamServer *stream.Server
	if streamCfg.Enabled {
		streamServer = stream.NewServer(streamCfg, cache, log)
		if err := streamServer.Start(); err != nil {
			return fmt.Errorf("starting spectator stream: %w", err)
		}
		defer streamServer.Close()
		hud = streamServer

		events.Subscribe(dispatcher.TopicCombatantKilled, "stream",
			func(e dispatcher.Event) error {
				if kill, ok := e.Payload.(core.KillEvent); ok {
					streamServer.BroadcastKill(kill)
				}
				return nil
			}, dispatcher.Buffered(1024))
	}

	matchCfg := config.GetMatchConfig()
	if opts.matchName != "" {
		matchCfg.Name = opts.matchName
	}
	if opts.tdm {
		matchCfg.IsTDM = true
	}

	influxCfg := config.GetInfluxConfig()
	var perfExporter *influx.Exporter
	if influxCfg.Enabled {
		perfExporter = influx.NewExporter(influxCfg,
			filepath.Join(logsDir, "influx_backup.gz"), log)
		if err := perfExporter.Connect(); err != nil {
			log.Warn("influx exporter unavailable", "error", err)
			perfExporter = nil
		} else {
			defer perfExporter.Close()
			subscribeInflux(events, perfExporter, matchCfg.Name, log)
		}
	}

	scenario := config.GetScenarioConfig()
	if opts.combatants > 0 {
		scenario.CombatantsPerFaction = opts.combatants
	}
	seed := scenario.Seed
	if opts.seed != 0 {
		seed = opts.seed
	}
	if seed == 0 {
		seed = sessionStart.UnixNano()
	}

	forces := newForces(scenario, zones, worldSize, seed)

	m, err := sim.NewMatch(sim.Options{
		Match:         matchCfg,
		Capture:       config.GetCaptureConfig(),
		LOD:           config.GetLODConfig(),
		Raycast:       config.GetRaycastConfig(),
		WorldSize:     worldSize,
		Zones:         zones,
		HUD:           hud,
		PlayerFaction: core.FactionUS,
		Recorder:      recorder,
		Events:        events,
		AIUpdate:      forces.Update,
		Logger:        log,
		Seed:          seed,
	})
	if err != nil {
		return fmt.Errorf("creating match: %w", err)
	}
	forces.Deploy(m)
	m.SetObservers(forces.Centroids())
	cache.update(m)

	mon := monitor.NewService(cache, logsDir, time.Second, log)
	if err := mon.Start(); err != nil {
		log.Warn("status monitor unavailable", "error", err)
	} else {
		defer mon.Stop()
	}

	tickRate := config.GetInt("world.tickRate")
	if tickRate <= 0 {
		tickRate = 30
	}
	dt := time.Second / time.Duration(tickRate)

	log.Info("match starting",
		"name", matchCfg.Name,
		"seed", seed,
		"tickRate", tickRate,
		"zones", len(zones),
		"combatantsPerFaction", scenario.CombatantsPerFaction)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(dt)
	defer ticker.Stop()

loop:
	for !m.Ended() {
		select {
		case <-ticker.C:
			m.SetObservers(forces.Centroids())
			m.Tick(dt)
			snap := m.Snapshot()
			tickCtx.tick.Store(snap.Tick)
			tickCtx.phase.Store(int32(snap.Phase))
			cache.update(m)
		case s := <-sigCh:
			log.Info("signal received, aborting match", "signal", s.String())
			// Flush whatever was recorded so far.
			if err := recorder.EndMatch(); err != nil {
				log.Error("finalizing recorder after abort failed", "error", err)
			}
			break loop
		}
	}

	if m.Ended() {
		printResult(m)
		uploadReplay(recorder, m, matchCfg.Name, log)
	}
	return nil
}

func subscribeInflux(events *dispatcher.Dispatcher, exp *influx.Exporter, matchName string, log *slog.Logger) {
	events.Subscribe(dispatcher.TopicZoneCaptured, "influx",
		func(e dispatcher.Event) error {
			if ev, ok := e.Payload.(core.ZoneCaptureEvent); ok {
				return exp.WriteZoneCapture(matchName, ev)
			}
			return nil
		}, dispatcher.Buffered(1024), dispatcher.Logged())
	events.Subscribe(dispatcher.TopicCombatantKilled, "influx",
		func(e dispatcher.Event) error {
			if ev, ok := e.Payload.(core.KillEvent); ok {
				return exp.WriteKill(matchName, ev)
			}
			return nil
		}, dispatcher.Buffered(1024), dispatcher.Logged())
	events.Subscribe(dispatcher.TopicMatchEnded, "influx",
		func(e dispatcher.Event) error {
			if ev, ok := e.Payload.(core.MatchResult); ok {
				return exp.WriteResult(matchName, ev)
			}
			return nil
		}, dispatcher.Buffered(16), dispatcher.Logged())
}

// uploadReplay pushes the exported replay to the web frontend if configured
// and the backend produced a file.
func uploadReplay(recorder storage.Backend, m *sim.Match, matchName string, log *slog.Logger) {
	apiCfg := config.GetAPIConfig()
	if !apiCfg.Enabled {
		return
	}
	exp, ok := recorder.(storage.Exportable)
	if !ok {
		log.Debug("storage backend does not export files, skipping upload")
		return
	}
	path := exp.GetExportedFilePath()
	if path == "" {
		return
	}

	result := m.Result()
	client := api.New(apiCfg)
	err := client.Upload(path, api.UploadMetadata{
		MatchName:       matchName,
		DurationSeconds: m.Elapsed().Seconds(),
		Winner:          result.Winner,
		Reason:          result.Reason,
	})
	if err != nil {
		log.Error("replay upload failed", "path", path, "error", err)
		return
	}
	log.Info("replay uploaded", "path", path)
}

// defaultZones lays out a symmetric five-zone map: home bases in opposite
// corners, three capturable zones across the middle.
func defaultZones(worldSize float64) []core.ZoneDefinition {
	edge := worldSize * 0.1
	mid := worldSize * 0.5
	return []core.ZoneDefinition{
		{
			ID:         "us_base",
			Name:       "US Base",
			Position:   core.Position3D{X: edge, Y: edge},
			Radius:     200,
			Owner:      core.FactionUS,
			IsHomeBase: true,
		},
		{
			ID:         "opfor_base",
			Name:       "OPFOR Base",
			Position:   core.Position3D{X: worldSize - edge, Y: worldSize - edge},
			Radius:     200,
			Owner:      core.FactionOPFOR,
			IsHomeBase: true,
		},
		{
			ID:       "alpha",
			Name:     "Alpha",
			Position: core.Position3D{X: mid - worldSize*0.25, Y: mid},
			Radius:   150,
		},
		{
			ID:       "bravo",
			Name:     "Bravo",
			Position: core.Position3D{X: mid, Y: mid},
			Radius:   150,
		},
		{
			ID:       "charlie",
			Name:     "Charlie",
			Position: core.Position3D{X: mid + worldSize*0.25, Y: mid},
			Radius:   150,
		},
	}
}
