// Command watch connects to one device, either addressed directly via
// -host/-port or located via mDNS discovery, and prints a line per field
// change every time the status notifier delivers an update.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crestline-labs/eyelink-realtime/pkg/config"
	"github.com/crestline-labs/eyelink-realtime/pkg/control"
	"github.com/crestline-labs/eyelink-realtime/pkg/discovery"
	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
	"github.com/crestline-labs/eyelink-realtime/pkg/notify"
	"github.com/crestline-labs/eyelink-realtime/pkg/status"
)

func main() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	host := fs.String("host", "", "device host/IP (skip discovery)")
	port := fs.Int("port", 8080, "device control port")
	devicesPath := fs.String("devices", "", "YAML device-list file to resolve -device from, skipping discovery")
	deviceName := fs.String("device", "", "name to look up in -devices")
	discoverTimeout := fs.Duration("discover-timeout", 10*time.Second, "how long to browse for a device when -host/-devices is unset")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Watch a device's status and print every field change.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	resolvedHost := *host
	resolvedPort := *port
	switch {
	case resolvedHost != "":
		// explicit -host/-port, nothing to resolve
	case *devicesPath != "" && *deviceName != "":
		list, err := config.LoadDeviceList(*devicesPath)
		if err != nil {
			log.Error("failed to load device list", "error", err)
			os.Exit(1)
		}
		dev, ok := list.ByName(*deviceName)
		if !ok {
			log.Error("device not found in device list", "name", *deviceName, "path", *devicesPath)
			os.Exit(1)
		}
		resolvedHost, resolvedPort = dev.Host, dev.Port
		log.Info("resolved device from device list", "name", dev.Name, "host", resolvedHost, "port", resolvedPort)
	default:
		log.Info("no -host/-devices given, browsing for a device", "timeout", discoverTimeout.String())
		dev, err := discovery.One(ctx, *discoverTimeout)
		if err != nil {
			log.Error("discovery failed", "error", err)
			os.Exit(1)
		}
		resolvedHost = dev.IPv4.String()
		log.Info("discovered device", "name", dev.Name, "host", resolvedHost)
	}

	ctl := control.New(resolvedHost, resolvedPort, log.Logger)
	defer ctl.Close()

	n := notify.New(resolvedHost, resolvedPort, log.Logger)
	defer n.Close()

	seed, err := ctl.GetStatus(ctx)
	if err != nil {
		log.Warn("initial status fetch failed, watching from zero value", "error", err)
		seed = status.New()
	}
	n.SeedSnapshot(seed)
	recordingAction := "none"
	if seed.Recording != nil {
		recordingAction = fmt.Sprint(seed.Recording.Action)
	}
	fmt.Printf("initial status: battery=%d%% recording_action=%s\n", seed.Phone.BatteryLevelPercent, recordingAction)

	n.Subscribe(func(c status.Component, snapshot status.Status) {
		for _, change := range snapshot.Diff(seed) {
			fmt.Printf("%s: %v -> %v\n", change.Field, change.Prior, change.Next)
		}
		seed = snapshot
	})

	log.Info("watching for status updates - press Ctrl+C to stop", "host", resolvedHost, "port", resolvedPort)
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("notifier stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("watch stopped")
}
