// Command verify smoke-tests a live device end to end: discovery, a
// control-API status fetch, one status-notifier update, a clock-offset
// estimate, and a brief gaze RTSP session. It exits non-zero on the first
// stage that fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/crestline-labs/eyelink-realtime/pkg/config"
	"github.com/crestline-labs/eyelink-realtime/pkg/control"
	"github.com/crestline-labs/eyelink-realtime/pkg/discovery"
	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
	"github.com/crestline-labs/eyelink-realtime/pkg/notify"
	"github.com/crestline-labs/eyelink-realtime/pkg/simple"
	"github.com/crestline-labs/eyelink-realtime/pkg/status"
	"github.com/crestline-labs/eyelink-realtime/pkg/timeecho"
)

func main() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	host := fs.String("host", "", "device host/IP (skip discovery)")
	port := fs.Int("port", 8080, "device control port")
	devicesPath := fs.String("devices", "", "YAML device-list file to resolve -device from, skipping discovery")
	deviceName := fs.String("device", "", "name to look up in -devices")
	discoverTimeout := fs.Duration("discover-timeout", 10*time.Second, "how long to browse for a device when -host/-devices is unset")
	gazeTimeout := fs.Duration("gaze-timeout", 3*time.Second, "how long to wait for one gaze sample")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Smoke-test a live device: discovery, control, notifier, clock offset, RTSP.\n\n")
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

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

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
		fmt.Printf("resolved %s from device list at %s:%d\n", dev.Name, resolvedHost, resolvedPort)
	default:
		fmt.Println("=== Verifying discovery ===")
		discCtx, discCancel := context.WithTimeout(ctx, *discoverTimeout)
		dev, err := discovery.One(discCtx, *discoverTimeout)
		discCancel()
		if err != nil {
			log.Error("discovery failed", "error", err)
			os.Exit(1)
		}
		resolvedHost = dev.IPv4.String()
		fmt.Printf("found %s at %s\n", dev.Name, resolvedHost)
	}

	fmt.Println("\n=== Verifying control API ===")
	ctl := control.New(resolvedHost, resolvedPort, log.Logger)
	defer ctl.Close()
	st, err := ctl.GetStatus(ctx)
	if err != nil {
		log.Error("status fetch failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("battery=%d%% serial=%s\n", st.Phone.BatteryLevelPercent, st.Hardware.GlassesSerial)

	fmt.Println("\n=== Verifying status notifier ===")
	n := notify.New(resolvedHost, resolvedPort, log.Logger)
	defer n.Close()
	n.SeedSnapshot(st)
	notifyCtx, notifyCancel := context.WithTimeout(ctx, 5*time.Second)
	updated := make(chan struct{}, 1)
	n.Subscribe(func(c status.Component, snapshot status.Status) {
		select {
		case updated <- struct{}{}:
		default:
		}
	})
	go func() { _ = n.Run(notifyCtx) }()
	select {
	case <-updated:
		fmt.Println("received at least one status update")
	case <-notifyCtx.Done():
		fmt.Println("no status update within timeout (device may be idle, not necessarily a failure)")
	}
	notifyCancel()

	if tp := st.Phone.TimeEchoPort; tp != nil {
		fmt.Println("\n=== Verifying clock offset ===")
		offset, err := timeecho.EstimateOffset(ctx, resolvedHost, *tp, 5)
		if err != nil {
			log.Error("time-echo failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("mean_offset=%dns mean_rtt=%dns\n", offset.MeanOffsetNS, offset.MeanRTTNS)
	} else {
		fmt.Println("\n=== Skipping clock offset (no time_echo_port advertised) ===")
	}

	fmt.Println("\n=== Verifying gaze RTSP session ===")
	facade := simple.New(resolvedHost, resolvedPort, log)
	defer facade.Close()
	sample, err := facade.ReceiveGazeDatum(ctx, *gazeTimeout)
	if err != nil {
		log.Error("gaze session failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("received one gaze sample: %+v\n", sample)

	fmt.Println("\nall checks passed")
}
