// Command playback replays a recorded session through the estimator with a
// chosen tuning, optionally storing the result as a new trajectory run and
// plotting it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/dpoint/internal/config"
	"github.com/banshee-data/dpoint/internal/db"
	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"github.com/banshee-data/dpoint/internal/plot"
	"github.com/banshee-data/dpoint/internal/replay"
	"github.com/banshee-data/dpoint/internal/security"
	"github.com/banshee-data/dpoint/internal/sensor"
)

// Config holds the playback options.
type Config struct {
	DBPath     string
	SessionID  string
	ConfigPath string
	Run        string
	Store      bool
	OutputDir  string
	Axes       string
	Verbose    bool
}

// Result summarises one playback.
type Result struct {
	Session  *db.Session
	Events   int
	Dt       float64
	Points   []replay.TrajectoryPoint
	Stats    fusion.Stats
	PlotsDir string
}

func main() {
	cfg := parseFlags()
	monitoring.SetVerbose(cfg.Verbose)

	res, err := run(cfg)
	if err != nil {
		log.Fatalf("playback failed: %v", err)
	}
	fmt.Printf("session %s (%s): %d events, dt=%.4fs\n", res.Session.ID, res.Session.Label, res.Events, res.Dt)
	fmt.Printf("trajectory points: %d\n", len(res.Points))
	fmt.Printf("estimator: %+v\n", res.Stats)
	if res.PlotsDir != "" {
		fmt.Printf("plots written to %s\n", res.PlotsDir)
	}
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.DBPath, "db", "dpoint.db", "sqlite session database")
	flag.StringVar(&cfg.SessionID, "session", "", "Session to replay (default: newest)")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON (default: the session's recorded tuning)")
	flag.StringVar(&cfg.Run, "run", "playback", "Trajectory run name used with -store")
	flag.BoolVar(&cfg.Store, "store", false, "Store the trajectory in the database")
	flag.StringVar(&cfg.OutputDir, "output", "", "Directory for PNG plots")
	flag.StringVar(&cfg.Axes, "axes", "identity", "Stylus-to-camera axis map")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()
	return cfg
}

// tuningFor returns the tuning to replay with: the file named by path, or
// else the tuning recorded with the session.
func tuningFor(path string, session *db.Session) (*config.TuningConfig, error) {
	if path != "" {
		return config.LoadTuningConfig(path)
	}
	tuning := config.EmptyTuningConfig()
	if len(session.Config) > 0 {
		if err := json.Unmarshal(session.Config, tuning); err != nil {
			return nil, fmt.Errorf("failed to parse recorded tuning: %w", err)
		}
	}
	return tuning, tuning.Validate()
}

func run(cfg Config) (*Result, error) {
	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	session, err := database.ResolveSession(cfg.SessionID)
	if err != nil {
		return nil, err
	}
	tuning, err := tuningFor(cfg.ConfigPath, session)
	if err != nil {
		return nil, err
	}
	axes, err := sensor.ParseAxisMap(cfg.Axes)
	if err != nil {
		return nil, err
	}

	events, err := database.SessionEvents(session.ID)
	if err != nil {
		return nil, err
	}
	events = replay.Coalesce(events)

	fusionCfg := fusion.ConfigFromTuning(tuning)
	fusionCfg.Dt = replay.EstimateDt(events, fusionCfg.Dt)
	est, err := fusion.NewEstimator(fusionCfg)
	if err != nil {
		return nil, err
	}
	pts := replay.Run(est, events, replay.Options{Axes: axes.ApplySample})

	res := &Result{Session: session, Events: len(events), Dt: fusionCfg.Dt, Points: pts, Stats: est.Stats()}

	if cfg.Store {
		if err := database.DeleteRun(session.ID, cfg.Run); err != nil {
			return nil, err
		}
		rec, err := database.NewRecorder(session.ID, cfg.Run)
		if err != nil {
			return nil, err
		}
		if err := rec.RecordTrajectory(pts); err != nil {
			return nil, err
		}
		log.Printf("stored %d points as run %q", len(pts), cfg.Run)
	}

	if cfg.OutputDir != "" {
		if err := security.ValidateOutputPath(cfg.OutputDir); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		raw := replay.RawPoses(events, fusionCfg.TipOffset)
		title := fmt.Sprintf("Session %s", session.ID)
		series := map[string][]replay.TrajectoryPoint{"filtered": pts, "camera": raw}
		if err := plot.WriteXY(filepath.Join(cfg.OutputDir, "trajectory_xy.png"), title, series); err != nil {
			return nil, err
		}
		if err := plot.WriteTimeSeries(filepath.Join(cfg.OutputDir, "trajectory_time.png"), title, pts); err != nil {
			return nil, err
		}
		res.PlotsDir = cfg.OutputDir
	}
	return res, nil
}
