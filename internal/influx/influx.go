// Package influx exports per-tick performance telemetry and match events to
// InfluxDB. When the server is unreachable the points are spooled to a gzip
// backup file in line protocol so a run is never lost to a metrics outage.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

// Bucket names used by the exporter.
const (
	BucketTickPerformance = "tick_performance"
	BucketMatchEvents     = "match_events"
)

var bucketNames = []string{
	BucketTickPerformance,
	BucketMatchEvents,
}

const bucketRetentionSeconds = 60 * 60 * 24 * 90

// Exporter writes match telemetry to InfluxDB, or to a gzip backup file when
// the server cannot be reached.
type Exporter struct {
	cfg config.InfluxConfig
	log *slog.Logger

	client       influxdb2.Client
	writers      map[string]influxdb2_api.WriteAPI
	backupWriter *gzip.Writer
	backupFile   *os.File
	backupPath   string
	isValid      bool
}

// NewExporter creates an exporter. Connect must be called before use.
func NewExporter(cfg config.InfluxConfig, backupPath string, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{
		cfg:        cfg,
		log:        log,
		writers:    make(map[string]influxdb2_api.WriteAPI),
		backupPath: backupPath,
	}
}

// Connect establishes the InfluxDB connection, creating the organization and
// buckets if needed. On ping failure it falls back to the backup file.
func (e *Exporter) Connect() error {
	if !e.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	e.client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", e.cfg.Protocol, e.cfg.Host, e.cfg.Port),
		e.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := e.client.Ping(context.Background())
	if err != nil || !running {
		e.isValid = false
		if e.backupWriter == nil {
			e.log.Warn("influxdb unreachable, spooling to backup file",
				"backupPath", e.backupPath, "error", err)

			file, err := os.OpenFile(e.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating influx backup file: %w", err)
			}
			e.backupFile = file
			e.backupWriter = gzip.NewWriter(file)
		}
		return nil
	}

	e.isValid = true
	if err := e.setupOrganizationAndBuckets(); err != nil {
		return err
	}
	e.createWriters()
	e.log.Info("influxdb exporter initialized")
	return nil
}

func (e *Exporter) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := e.cfg.Org

	_, err := e.client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		e.log.Info("influx organization not found, creating", "org", orgName)
		_, err = e.client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			return fmt.Errorf("error creating influx organization %q: %w", orgName, err)
		}
	}

	influxOrg, err := e.client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		return fmt.Errorf("error getting influx organization %q: %w", orgName, err)
	}

	for _, bucket := range bucketNames {
		_, err = e.client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			e.log.Info("influx bucket not found, creating", "bucket", bucket)

			rule := domain.RetentionRuleTypeExpire
			_, err = e.client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: bucketRetentionSeconds,
			})
			if err != nil {
				return fmt.Errorf("error creating influx bucket %q: %w", bucket, err)
			}
		}
	}

	return nil
}

func (e *Exporter) createWriters() {
	for _, bucket := range bucketNames {
		e.writers[bucket] = e.client.WriteAPI(e.cfg.Org, bucket)

		errorsCh := e.writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				e.log.Error("error sending data to influxdb",
					"bucket", bucketName, "error", writeErr)
			}
		}(bucket, errorsCh)
	}
}

// WriteTickSample exports one tick's telemetry.
func (e *Exporter) WriteTickSample(matchName string, s core.TickSample) error {
	point := influxdb2_write.NewPointWithMeasurement("tick").
		AddTag("match", matchName).
		AddTag("phase", s.Phase.String()).
		AddField("tick", int64(s.Tick)).
		AddField("ticketsUS", s.TicketsUS).
		AddField("ticketsOPFOR", s.TicketsOPFOR).
		AddField("combatants", s.Combatants).
		AddField("tierHigh", s.TierHigh).
		AddField("tierMedium", s.TierMedium).
		AddField("tierLow", s.TierLow).
		AddField("tierCulled", s.TierCulled).
		AddField("fullAIUpdates", s.FullAIUpdates).
		AddField("staggeredSkips", int64(s.StaggeredSkips)).
		AddField("raycastsUsed", int64(s.RaycastsUsed)).
		AddField("raycastsDenied", int64(s.RaycastsDenied)).
		AddField("tickDurationMs", s.TickDurationMs).
		AddField("aiBudgetOverrun", s.AIBudgetOverrun).
		SetTime(s.Time)
	return e.writePoint(BucketTickPerformance, point)
}

// WriteZoneCapture exports a zone ownership change.
func (e *Exporter) WriteZoneCapture(matchName string, ev core.ZoneCaptureEvent) error {
	point := influxdb2_write.NewPointWithMeasurement("zone_capture").
		AddTag("match", matchName).
		AddTag("zone", ev.ZoneID).
		AddTag("newOwner", ev.NewOwner.String()).
		AddField("tick", int64(ev.Tick)).
		AddField("prevOwner", ev.PrevOwner.String()).
		SetTime(ev.Time)
	return e.writePoint(BucketMatchEvents, point)
}

// WriteKill exports a kill event.
func (e *Exporter) WriteKill(matchName string, ev core.KillEvent) error {
	point := influxdb2_write.NewPointWithMeasurement("kill").
		AddTag("match", matchName).
		AddTag("killerFaction", ev.Killer.String()).
		AddTag("victimFaction", ev.Victim.String()).
		AddField("tick", int64(ev.Tick)).
		AddField("killerId", ev.KillerID).
		AddField("victimId", ev.VictimID).
		AddField("distance", ev.Distance).
		SetTime(ev.Time)
	return e.writePoint(BucketMatchEvents, point)
}

// WriteResult exports the final match outcome.
func (e *Exporter) WriteResult(matchName string, r core.MatchResult) error {
	point := influxdb2_write.NewPointWithMeasurement("match_result").
		AddTag("match", matchName).
		AddTag("winner", r.Winner.String()).
		AddTag("reason", r.Reason.String()).
		AddField("tick", int64(r.Tick)).
		AddField("ticketsUS", r.TicketsUS).
		AddField("ticketsOPFOR", r.TicketsOPFOR).
		AddField("durationSeconds", r.Duration.Seconds()).
		SetTime(r.Time)
	return e.writePoint(BucketMatchEvents, point)
}

func (e *Exporter) writePoint(bucket string, point *influxdb2_write.Point) error {
	if e.isValid {
		if _, ok := e.writers[bucket]; !ok {
			return fmt.Errorf("influx bucket %q not registered", bucket)
		}
		e.writers[bucket].WritePoint(point)
		return nil
	}

	if e.backupWriter == nil {
		return errors.New("influx client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := e.backupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to influx backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and shuts down the client or backup file.
func (e *Exporter) Close() error {
	if e.isValid {
		for _, w := range e.writers {
			w.Flush()
		}
		e.client.Close()
		return nil
	}

	if e.backupWriter != nil {
		if err := e.backupWriter.Close(); err != nil {
			return err
		}
		return e.backupFile.Close()
	}
	return nil
}
