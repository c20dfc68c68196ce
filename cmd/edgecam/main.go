// edgecam captures a camera feed, runs edge detection on every frame and shows
// the result in a browser viewer or a window, reporting fps and latency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/teslashibe/go-edgecam/internal/config"
	"github.com/teslashibe/go-edgecam/internal/log"
	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/edgecam"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgecam: %v\n", err)
		os.Exit(2)
	}

	logger := log.Init(cfg.LogLevel)

	app, err := edgecam.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(2)
	}
	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	app.OnReady = func() {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logger.Warn("sd_notify failed", "error", err)
		} else if ok {
			logger.Debug("notified systemd")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		daemon.SdNotify(false, daemon.SdNotifyStopping)
		os.Exit(1)
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// loadConfig layers defaults, a preset, the YAML file, environment variables
// and finally explicit flags.
func loadConfig() (edgecam.Config, error) {
	cfg := edgecam.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	writeConfig := flag.String("write-config", "", "write the effective config to this file and exit")
	preset := flag.String("preset", "", "capture preset: "+strings.Join(capture.PresetNames(), ", "))
	device := flag.String("device", "", "camera device (overrides EDGECAM_DEVICE)")
	backend := flag.String("backend", "", "capture backend: auto, v4l2, opencv, mock")
	edgeBackend := flag.String("edge", "", "edge backend: auto, canny, opencv, mock")
	mode := flag.String("mode", "", "processing mode: edges, passthrough")
	surface := flag.String("display", "", "display surface: auto, web, window, none")
	listen := flag.String("listen", "", "viewer listen address")
	noWeb := flag.Bool("no-web", false, "disable the browser viewer")
	width := flag.Int("width", 0, "capture width")
	height := flag.Int("height", 0, "capture height")
	logLevel := flag.String("log-level", "", "debug, info, warn, error")
	flag.Parse()

	if *preset != "" {
		p, ok := capture.LookupPreset(*preset)
		if !ok {
			return cfg, fmt.Errorf("unknown preset %q (have %s)", *preset, strings.Join(capture.PresetNames(), ", "))
		}
		p.Device = cfg.Capture.Device
		cfg.Capture = p
	}
	if *configPath != "" {
		if err := config.LoadYAML(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadEnvConfig(); err != nil {
		return cfg, err
	}

	if *device != "" {
		cfg.Capture.Device = *device
	}
	if *backend != "" {
		cfg.Capture.Backend = capture.Backend(*backend)
	}
	if *edgeBackend != "" {
		cfg.Edge.Backend = edge.Backend(*edgeBackend)
	}
	if *mode != "" {
		cfg.Pipeline.Mode = pipeline.Mode(*mode)
	}
	if *surface != "" {
		cfg.Display.Surface = *surface
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	if *width > 0 {
		cfg.Capture.Width = *width
	}
	if *height > 0 {
		cfg.Capture.Height = *height
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *writeConfig != "" {
		if err := config.WriteYAML(*writeConfig, cfg); err != nil {
			return cfg, err
		}
		fmt.Printf("wrote %s\n", *writeConfig)
		os.Exit(0)
	}
	return cfg, nil
}
