// Command stream opens the scene-camera and gaze RTSP sessions for one
// device via pkg/simple and prints each fused (frame, gaze) tuple the
// matching engine produces until interrupted.
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
	"github.com/crestline-labs/eyelink-realtime/pkg/discovery"
	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
	"github.com/crestline-labs/eyelink-realtime/pkg/simple"
)

func main() {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	host := fs.String("host", "", "device host/IP (skip discovery)")
	port := fs.Int("port", 8080, "device control port")
	devicesPath := fs.String("devices", "", "YAML device-list file to resolve -device from, skipping discovery")
	deviceName := fs.String("device", "", "name to look up in -devices")
	discoverTimeout := fs.Duration("discover-timeout", 10*time.Second, "how long to browse for a device when -host/-devices is unset")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Stream fused (scene frame, gaze) tuples from a device.\n\n")
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

	resolvedHost, resolvedPort := *host, *port
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

	facade := simple.New(resolvedHost, resolvedPort, log)
	defer facade.Close()

	log.Info("streaming fused scene+gaze tuples - press Ctrl+C to stop", "host", resolvedHost, "port", resolvedPort)

	var tuples uint64
	for ctx.Err() == nil {
		fused, err := facade.ReceiveMatchedSceneAndGaze(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("match failed", "error", err)
			continue
		}
		tuples++
		gazeSample := fused.Followers["gaze"]
		if gazeSample == nil {
			fmt.Printf("#%d scene@%dns gaze=<none>\n", tuples, fused.Leader.WallClockNS)
			continue
		}
		fmt.Printf("#%d scene@%dns gaze@%dns (delta %dns)\n",
			tuples, fused.Leader.WallClockNS, gazeSample.WallClockNS,
			fused.Leader.WallClockNS-gazeSample.WallClockNS)
	}

	log.Info("stream stopped", "tuples", tuples)
}
