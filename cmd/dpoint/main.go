package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/dpoint/internal/api"
	"github.com/banshee-data/dpoint/internal/config"
	"github.com/banshee-data/dpoint/internal/db"
	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"github.com/banshee-data/dpoint/internal/pipeline"
	"github.com/banshee-data/dpoint/internal/sensor"
	"github.com/banshee-data/dpoint/internal/serialmux"
	"github.com/banshee-data/dpoint/internal/timeutil"
	"github.com/banshee-data/dpoint/internal/trail"
	"github.com/banshee-data/dpoint/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run with a simulated receiver and tracker")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	port          = flag.String("port", "/dev/ttyACM0", "Serial port of the stylus receiver (ignored in dev mode)")
	baudRate      = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	disableSerial = flag.Bool("disable-serial", false, "Run without a stylus receiver (camera only)")
	posesAddr     = flag.String("poses", ":5005", "UDP address receiving tracker pose datagrams")
	configPath    = flag.String("config", "", "Tuning config JSON (defaults to built-in values)")
	dbPath        = flag.String("db", "dpoint.db", "sqlite session database; empty disables recording")
	label         = flag.String("label", "", "Session label")
	axesFlag      = flag.String("axes", "identity", "Stylus-to-camera axis map: identity, pen, or a signed permutation such as y,-z,x")
	verbose       = flag.Bool("verbose", false, "Log per-sample diagnostics")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// channelBuffer is how many samples each producer may queue ahead of the
// estimator.
const channelBuffer = 256

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("dpoint", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetVerbose(*verbose)
	log.Printf("dpoint %s", version.String())
	clock := timeutil.RealClock{}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	fusionCfg := fusion.ConfigFromTuning(tuning)
	est, err := fusion.NewEstimator(fusionCfg)
	if err != nil {
		log.Fatalf("failed to create estimator: %v", err)
	}

	axes, err := sensor.ParseAxisMap(*axesFlag)
	if err != nil {
		log.Fatalf("invalid -axes: %v", err)
	}

	var receiver serialmux.SerialMuxInterface
	switch {
	case *devMode:
		receiver = serialmux.NewMockSerialMux(devIMULines(fusionCfg.Dt), time.Duration(fusionCfg.Dt*float64(time.Second)))
	case *disableSerial:
		receiver = serialmux.NewDisabledSerialMux()
	default:
		receiver, err = serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open stylus receiver: %v", err)
		}
		log.Printf("opened stylus receiver on %s", *port)
	}
	defer receiver.Close()

	var database *db.DB
	var recorder *pipeline.AsyncRecorder
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		session, err := database.CreateSession(*label, tuning)
		if err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
		rec, err := database.NewRecorder(session.ID, db.LiveRun)
		if err != nil {
			log.Fatalf("failed to create recorder: %v", err)
		}
		// sqlite writes happen off the estimator goroutine
		recorder = pipeline.NewAsyncRecorder(rec, pipeline.DefaultRecordQueue)
		go recorder.Run()
		log.Printf("recording session %s to %s", session.ID, *dbPath)
	}

	opts := pipeline.Options{Axes: axes.ApplySample, Clock: clock}
	if recorder != nil {
		opts.Recorder = recorder
	}
	p := pipeline.New(est, trail.New(tuning.GetTrailPoints(), tuning.GetBlendAlpha()), opts)

	imuCh := make(chan fusion.IMUSample, channelBuffer)
	poseCh := make(chan fusion.PoseMeasurement, channelBuffer)

	// Create a wait group for the HTTP server, producers and the estimator
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := receiver.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// parse receiver lines into inertial samples
	forwarder := serialmux.NewForwarder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := forwarder.Run(ctx, receiver, imuCh); err != nil && err != context.Canceled {
			log.Printf("imu forwarder stopped: %v", err)
		}
		log.Print("imu forwarder terminated")
	}()

	// camera poses: UDP datagrams, or a simulated circle in dev mode
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *devMode {
			runDevPoses(ctx, clock, poseCh, time.Second/15)
			log.Print("dev pose generator terminated")
			return
		}
		listener, err := sensor.ListenPoses(*posesAddr)
		if err != nil {
			log.Printf("failed to listen for poses: %v", err)
			return
		}
		log.Printf("listening for poses on %s", listener.Addr())
		if err := listener.Run(ctx, poseCh); err != nil && err != context.Canceled {
			log.Printf("pose listener stopped: %v", err)
		}
		log.Printf("pose listener terminated (received=%d dropped=%d)", listener.Received(), listener.Dropped())
	}()

	// the estimator is owned by this goroutine alone
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx, imuCh, poseCh); err != nil && err != context.Canceled {
			log.Printf("pipeline stopped: %v", err)
		}
		if recorder != nil {
			recorder.Close()
			log.Printf("recorder flushed: %d written, %d failed", recorder.Written(), recorder.Errors())
		}
		snap := p.Snapshot()
		log.Printf("pipeline terminated: %+v", snap.Stats)
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(p, receiver, database, tuning).ServeMux()
		receiver.AttachAdminRoutes(mux)
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach db admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
