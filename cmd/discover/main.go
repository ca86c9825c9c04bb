// Command discover browses mDNS/DNS-SD for devices advertising
// pkg/discovery.ServiceType and prints each add/remove event until
// interrupted or a -timeout elapses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crestline-labs/eyelink-realtime/pkg/discovery"
	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	timeout := fs.Duration("timeout", 0, "stop browsing after this long (0 = run until Ctrl-C)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Browse for %s devices and print Added/Removed events.\n\n", discovery.ServiceType)
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
	if *timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	browser := discovery.NewBrowser()
	errCh := make(chan error, 1)
	go func() { errCh <- browser.Start(ctx) }()

	log.Info("browsing for devices", "service_type", discovery.ServiceType)

	for ev := range browser.Events {
		switch ev.Kind {
		case discovery.Added:
			log.Info("device added",
				"name", ev.Name,
				"product", ev.Device.ProductName(),
				"phone_name", ev.Device.PhoneName(),
				"phone_id", ev.Device.PhoneID(),
				"host", ev.Device.Host,
				"ipv4", ev.Device.IPv4.String(),
				"port", ev.Device.Port)
		case discovery.Removed:
			log.Info("device removed", "name", ev.Name)
		}
	}
	if err := <-errCh; err != nil {
		log.Error("failed to start browsing", "error", err)
		os.Exit(1)
	}

	log.Info("discovery stopped")
}
