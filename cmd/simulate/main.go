package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/okian/mosaic/internal/simulate"
	"github.com/okian/mosaic/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		numResources  = flag.Int("resources", simulate.DefaultNumResources, "Number of synthetic resources to register")
		criticalShare = flag.Float64("critical", simulate.DefaultCriticalShare, "Fraction of resources registered as critical")
		failureRate   = flag.Float64("failure-rate", simulate.DefaultFailureRate, "Probability that a single fetch attempt fails")
		minLatency    = flag.Duration("min-latency", simulate.DefaultMinLatency, "Minimum simulated fetch latency")
		maxLatency    = flag.Duration("max-latency", simulate.DefaultMaxLatency, "Maximum simulated fetch latency")
		scroll        = flag.Duration("scroll", simulate.DefaultScrollInterval, "Interval between synthetic viewport sightings")
		network       = flag.String("network", "", "Comma-separated raw connection tiers to cycle through, e.g. 4g,3g,2g")
		netInterval   = flag.Duration("network-interval", simulate.DefaultNetworkInterval, "Interval between network script steps")
		device        = flag.String("device", "standard", "Device class: standard or constrained")
		maxRetries    = flag.Int("retries", simulate.DefaultMaxRetries, "Retry budget per resource")
		timeout       = flag.Duration("timeout", defaultRunTimeout, "Overall run timeout")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config := simulate.NewConfig()
	config.NumResources = *numResources
	config.CriticalShare = *criticalShare
	config.FailureRate = *failureRate
	config.MinLatency = *minLatency
	config.MaxLatency = *maxLatency
	config.ScrollInterval = *scroll
	config.NetworkInterval = *netInterval
	config.DeviceClass = *device
	config.MaxRetries = *maxRetries
	config.Verbose = *verbose
	if *network != "" {
		config.NetworkScript = strings.Split(*network, ",")
	}

	if _, err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
