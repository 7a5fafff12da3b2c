// Command compare runs the camera-only, coupled and decoupled workflows over
// one recorded session and reports how smooth and how biased each is.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/dpoint/internal/compare"
	"github.com/banshee-data/dpoint/internal/config"
	"github.com/banshee-data/dpoint/internal/db"
	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"github.com/banshee-data/dpoint/internal/plot"
	"github.com/banshee-data/dpoint/internal/replay"
	"github.com/banshee-data/dpoint/internal/security"
	"github.com/banshee-data/dpoint/internal/sensor"
)

// Config holds the comparison options.
type Config struct {
	DBPath     string
	SessionID  string
	ConfigPath string
	Smoothing  int
	Delay      int
	Axes       string
	OutputDir  string
	OutputJSON string
	Verbose    bool
}

// Report is the JSON form of a comparison.
type Report struct {
	SessionID string           `json:"session_id"`
	Events    int              `json:"events"`
	Dt        float64          `json:"dt"`
	Results   []compare.Result `json:"results"`
}

func main() {
	cfg := parseFlags()
	monitoring.SetVerbose(cfg.Verbose)

	report, err := run(cfg)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}
	printResults(os.Stdout, report)

	if cfg.OutputJSON != "" {
		outputPath := cfg.OutputJSON
		if cfg.OutputDir != "" {
			outputPath = filepath.Join(cfg.OutputDir, cfg.OutputJSON)
		}
		if err := exportJSON(report, outputPath); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", outputPath)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.DBPath, "db", "dpoint.db", "sqlite session database")
	flag.StringVar(&cfg.SessionID, "session", "", "Session to compare (default: newest)")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON (defaults to built-in values)")
	flag.IntVar(&cfg.Smoothing, "smoothing", 15, "Smoothing length for the filtered workflows")
	flag.IntVar(&cfg.Delay, "delay", 5, "Camera delay in inertial steps for the filtered workflows")
	flag.StringVar(&cfg.Axes, "axes", "pen", "Stylus-to-camera axis map")
	flag.StringVar(&cfg.OutputDir, "output", "", "Output directory for plots and JSON")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON filename (e.g., comparison.json)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()
	return cfg
}

func run(cfg Config) (*Report, error) {
	tuning := config.EmptyTuningConfig()
	if cfg.ConfigPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.ConfigPath); err != nil {
			return nil, err
		}
	}
	axes, err := sensor.ParseAxisMap(cfg.Axes)
	if err != nil {
		return nil, err
	}

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	session, err := database.ResolveSession(cfg.SessionID)
	if err != nil {
		return nil, err
	}
	events, err := database.SessionEvents(session.ID)
	if err != nil {
		return nil, err
	}
	replay.Sort(events)
	events = replay.Coalesce(events)

	fusionCfg := fusion.ConfigFromTuning(tuning)
	fusionCfg.SmoothingLength = cfg.Smoothing
	fusionCfg.CameraDelay = cfg.Delay
	fusionCfg.Dt = replay.EstimateDt(events, fusionCfg.Dt)

	results, err := compare.Run(events, compare.Options{Config: fusionCfg, Axes: axes.ApplySample})
	if err != nil {
		return nil, err
	}
	report := &Report{SessionID: session.ID, Events: len(events), Dt: fusionCfg.Dt, Results: results}

	if cfg.OutputDir != "" {
		if err := writePlots(cfg.OutputDir, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func writePlots(dir string, report *Report) error {
	if err := security.ValidateOutputPath(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var xy, z, jitter []plot.Line
	for _, r := range report.Results {
		name := string(r.Workflow)
		xy = append(xy, plot.TopDown(name, r.Points))
		z = append(z, plot.OverTime(name, r.Points, plot.AxisZ))
		jitter = append(jitter, plot.Values(name, r.Points, compare.Detrended(r.Points, compare.JitterWindow)))
	}
	title := fmt.Sprintf("Session %s", report.SessionID)
	if err := plot.WritePNG(filepath.Join(dir, "compare_xy.png"), title, "X (m)", "Y (m)", xy...); err != nil {
		return err
	}
	if err := plot.WritePNG(filepath.Join(dir, "compare_z.png"), title, "Time (s)", "Z (m)", z...); err != nil {
		return err
	}
	if err := plot.WritePNG(filepath.Join(dir, "compare_z_jitter.png"), title, "Time (s)", "Z - rolling mean (m)", jitter...); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "compare.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return plot.RenderHTML(f, "Workflow comparison", title, "X (m)", "Y (m)", xy...)
}

func printResults(w io.Writer, report *Report) {
	fmt.Fprintf(w, "session %s: %d events, dt=%.4fs\n", report.SessionID, report.Events, report.Dt)
	fmt.Fprintf(w, "%-10s %8s %10s %10s %10s %12s\n", "workflow", "points", "mean_x", "mean_y", "mean_z", "z_jitter")
	for _, r := range report.Results {
		s := r.Summary
		fmt.Fprintf(w, "%-10s %8d %10.4f %10.4f %10.4f %12.6f\n", r.Workflow, s.Count, s.MeanX, s.MeanY, s.MeanZ, s.ZJitter)
	}
}

func exportJSON(report *Report, path string) error {
	if err := security.ValidateOutputPath(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
