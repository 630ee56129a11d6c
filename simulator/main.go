// Command simulator connects a fleet of fake vehicles to the dispatch
// server's MQTT broker. Each vehicle heartbeats its status, executes
// whatever tasks the server assigns and requests a path lock before
// every leg, which makes it usable as a live smoke test of the full
// dispatch loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func main() {
	var (
		broker      = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		codes       = flag.String("codes", "SIM-001", "comma separated vehicle codes")
		stations    = flag.String("stations", "", "comma separated start stations, assigned round robin")
		interval    = flag.Duration("interval", 5*time.Second, "status heartbeat interval")
		legDuration = flag.Duration("leg-duration", 3*time.Second, "simulated driving time per route leg")
		lockRetry   = flag.Duration("lock-retry", 2*time.Second, "retry interval for rejected path locks")
		verbose     = flag.Bool("verbose", false, "enable verbose logging")
	)
	flag.Parse()

	if !*verbose {
		log.SetOutput(io.Discard)
	}

	codeList := splitList(*codes)
	if len(codeList) == 0 {
		fmt.Fprintln(os.Stderr, "no vehicle codes given")
		os.Exit(1)
	}
	stationList := splitList(*stations)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i, code := range codeList {
		station := ""
		if len(stationList) > 0 {
			station = stationList[i%len(stationList)]
		}
		v := NewSimulatedVehicle(code, *broker, station)
		v.Interval = *interval
		v.LegDuration = *legDuration
		v.LockRetry = *lockRetry
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		}()
	}
	wg.Wait()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
