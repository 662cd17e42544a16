package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hlsgrab/internal/api"
	"hlsgrab/internal/capture"
	"hlsgrab/internal/config"
	"hlsgrab/internal/logger"
	"hlsgrab/internal/metrics"
	"hlsgrab/internal/mux"
)

func main() {
	// 1. Load optional .env, then parse flags with env-var defaults.
	_ = config.Load()

	outputDir := flag.String("o", config.GetEnv("HLSGRAB_OUTPUT", "."), "Output directory")
	timeoutSec := flag.Int("timeout", config.GetEnvInt("HLSGRAB_TIMEOUT", 30), "Per-request timeout in seconds")
	maxRetries := flag.Int("retries", config.GetEnvInt("HLSGRAB_MAX_RETRIES", 3), "Max retries per request")
	maxConcurrent := flag.Int("concurrent", config.GetEnvInt("HLSGRAB_MAX_CONCURRENT", 8), "Max concurrent segment downloads")
	noFailFast := flag.Bool("no-fail-fast", config.GetEnvBool("HLSGRAB_NO_FAIL_FAST", false), "Keep capturing other streams when one stream fails")
	noRemux := flag.Bool("no-remux", config.GetEnvBool("HLSGRAB_NO_REMUX", false), "Skip the final remux step")
	remuxTarget := flag.String("remux-target", config.GetEnv("HLSGRAB_REMUX_TARGET", mux.DefaultTarget), "Remuxed file name, relative to the output directory")
	userAgent := flag.String("user-agent", config.GetEnv("HLSGRAB_USER_AGENT", ""), "User-Agent header for origin requests")
	logLevel := flag.String("log-level", config.GetEnv("HLSGRAB_LOG_LEVEL", "info"), "Log level (error, warn, info, debug)")
	logFormat := flag.String("log-format", config.GetEnv("HLSGRAB_LOG_FORMAT", "text"), "Log format (text, json)")
	debugAddr := flag.String("debug-addr", config.GetEnv("HLSGRAB_DEBUG_ADDR", ""), "Optional listen address for /metrics and /healthz")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <playlist-url>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	entryURL := flag.Arg(0)

	// 2. Initialize logger and metrics.
	log := logger.New(*logLevel, *logFormat)
	met := metrics.New()

	// 3. Optionally expose the debug endpoint.
	if *debugAddr != "" {
		go func() {
			log.Infof("Debug endpoint listening on %s", *debugAddr)
			if err := http.ListenAndServe(*debugAddr, api.New(met)); err != nil {
				log.Errorf("Debug endpoint failed: %v", err)
			}
		}()
	}

	network := config.NetworkOptions{
		Timeout:       time.Duration(*timeoutSec) * time.Second,
		MaxRetries:    *maxRetries,
		MaxConcurrent: *maxConcurrent,
		UserAgent:     *userAgent,
	}

	// 4. Resolve the entry playlist into a stream map.
	ctx := context.Background()
	live, stopper, err := capture.New(ctx, entryURL, network, log, met)
	if err != nil {
		log.Errorf("Failed to resolve playlist: %v", err)
		os.Exit(1)
	}
	for _, stream := range live.Streams() {
		log.Infof("Capturing stream: %s", stream)
	}

	// 5. Stop cooperatively on SIGINT/SIGTERM so the capture still remuxes
	// what it got.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("Interrupt received, finishing capture...")
		stopper.Stop()
	}()

	// 6. Run the capture.
	opts := config.DownloadOptions{
		OutputDir:   *outputDir,
		RemuxTarget: *remuxTarget,
		NoRemux:     *noRemux,
		NoFailFast:  *noFailFast,
	}
	if err := live.Download(ctx, opts); err != nil {
		log.Errorf("Capture failed: %v", err)
		os.Exit(1)
	}
	log.Infof("Capture complete")
}
