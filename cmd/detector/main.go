// Command detector watches the launch-track camera feed and writes classified
// launch outcomes to the event database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/acepocalypse/tt2check/internal/config"
	"github.com/acepocalypse/tt2check/internal/db"
	"github.com/acepocalypse/tt2check/internal/detect"
	"github.com/acepocalypse/tt2check/internal/httputil"
	"github.com/acepocalypse/tt2check/internal/monitoring"
	"github.com/acepocalypse/tt2check/internal/queuetimes"
	"github.com/acepocalypse/tt2check/internal/timeutil"
	"github.com/acepocalypse/tt2check/internal/version"
	"github.com/acepocalypse/tt2check/internal/video"
)

var (
	dbPath     = flag.String("db", "events.db", "Path to the sqlite event database")
	configPath = flag.String("config", "", "Optional tuning config JSON (partial configs allowed)")
	videoPath  = flag.String("video", "", "Path to a raw grayscale recording for deterministic offline runs; omit for the live stream")
	frameSize  = flag.String("frame-size", "1280x960", "Frame dimensions as WxH")
	hostsFlag  = flag.String("hosts", "", "Comma-separated playlist URLs overriding the built-in host list")
	quiet      = flag.Bool("quiet", false, "Disable the console status line")
	listen     = flag.String("listen", "", "Optional address for /metrics and /healthz (empty disables)")
	pollQueue  = flag.Bool("poll-queue", false, "Also poll the third-party wait-time feed")
	queueURL   = flag.String("queue-url", queuetimes.DefaultURL, "Wait-time feed URL")
	rideID     = flag.Int("ride-id", queuetimes.DefaultRideID, "Ride identifier within the wait-time feed")
	pollEvery  = flag.Duration("poll-interval", 5*time.Minute, "Wait-time poll interval")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func parseFrameSize(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("invalid frame size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid frame size %q", s)
	}
	return w, h, nil
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.Version)
		return
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		cfg = loaded
	}

	width, height, err := parseFrameSize(*frameSize)
	if err != nil {
		log.Fatalf("%v", err)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var src video.Source
	if *videoPath != "" {
		src, err = video.NewFileSource(*videoPath, width, height)
	} else {
		var hosts []string
		if *hostsFlag != "" {
			hosts = strings.Split(*hostsFlag, ",")
		}
		src, err = video.NewFFmpegSource(ctx, hosts, width, height)
	}
	if err != nil {
		log.Fatalf("failed to open video source: %v", err)
	}
	defer src.Close()

	store := db.NewEventStore(database, cfg.GetDedupInterval())
	detector, err := detect.NewDetector(cfg, src, store, timeutil.RealClock{}, detect.DefaultRegions(), *quiet)
	if err != nil {
		log.Fatalf("failed to build detector: %v", err)
	}

	var wg sync.WaitGroup

	if *listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.MetricsHandler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "ok")
		})
		server := &http.Server{Addr: *listen, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("status server error: %v", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if *pollQueue {
		poller := queuetimes.NewPoller(httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second}), database)
		poller.URL = *queueURL
		poller.RideID = *rideID
		poller.Interval = *pollEvery

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("queue poller stopped: %v", err)
			}
		}()
	}

	runErr := detector.Run(ctx)
	stop()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("detector terminated: %v", runErr)
		os.Exit(1)
	}
	log.Print("detector stopped")
}
