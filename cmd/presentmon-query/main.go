// Command presentmon-query is a minimal analytics consumer: it dials a
// running presentmon-service's control pipe, starts a stream for a target
// process, registers a dynamic query, and prints polled statistics to
// stdout at a fixed interval until interrupted. It plays the role
// spec.md §1 calls "analytics consumers" and exercises module D end to
// end against a live service.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/99souls/presentmon/internal/controlpipe"
	"github.com/99souls/presentmon/internal/introspection"
	"github.com/99souls/presentmon/internal/query"
	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/pkg/pmapi"
)

func main() {
	var (
		controlPipePath string
		segmentName     string
		targetPID       uint
		windowMs        float64
		offsetMs        float64
		metricsFlag     string
		pollEvery       time.Duration
	)
	flag.StringVar(&controlPipePath, "control-pipe", "/tmp/presentmon/control.sock", "Control pipe path")
	flag.StringVar(&segmentName, "segment", "", "Introspection segment name (defaults to the service's default)")
	flag.UintVar(&targetPID, "pid", 0, "Target process id to stream")
	flag.Float64Var(&windowMs, "window-ms", 1000, "Query window size, milliseconds")
	flag.Float64Var(&offsetMs, "offset-ms", 0, "Query metric offset, milliseconds")
	flag.StringVar(&metricsFlag, "metrics", "frame_time=avg,displayed_fps=avg", "Comma-separated metric=stat[:index] list")
	flag.DurationVar(&pollEvery, "interval", time.Second, "Poll interval")
	flag.Parse()

	if targetPID == 0 {
		fmt.Fprintln(os.Stderr, "presentmon-query: -pid is required")
		os.Exit(1)
	}

	elements, err := parseElements(metricsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presentmon-query: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() { <-sigCh; cancel() }()

	catalog, err := introspection.Open(ctx, segmentName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presentmon-query: open catalog: %v\n", err)
		os.Exit(1)
	}

	client := controlpipe.NewClient(controlPipePath, uint32(os.Getpid()))
	ringName, err := client.StartStream(uint32(targetPID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "presentmon-query: start stream: %v\n", err)
		os.Exit(1)
	}
	defer client.StopStream(uint32(targetPID))

	reader, err := ring.OpenReader(ringName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presentmon-query: open ring %q: %v\n", ringName, err)
		os.Exit(1)
	}
	defer reader.Close()

	readers := query.NewReaderSet()
	readers.Put(uint32(targetPID), reader)

	engine := query.NewEngine(catalog, readers, nil)
	handle, err := engine.Register(elements, uint32(targetPID), windowMs, offsetMs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presentmon-query: register: %v\n", err)
		os.Exit(1)
	}

	const maxSwapChains = 8
	blob := make([]byte, int(handle.RowSize())*maxSwapChains)

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, addrs, err := engine.Poll(handle, blob, maxSwapChains)
			if err != nil {
				fmt.Fprintf(os.Stderr, "presentmon-query: poll: %v\n", err)
				continue
			}
			printRows(handle, elements, blob, n, addrs)
		}
	}
}

func printRows(h *query.Handle, elements []query.Element, blob []byte, n int, addrs []uint64) {
	rowSize := int(h.RowSize())
	for row := 0; row < n; row++ {
		base := row * rowSize
		fmt.Printf("swapchain=0x%x", addrs[row])
		for _, el := range elements {
			off := base + int(el.ByteOffset)
			v := math.Float64frombits(binary.LittleEndian.Uint64(blob[off : off+8]))
			fmt.Printf(" %s.%s=%.3f", el.Metric, el.Stat, v)
		}
		fmt.Println()
	}
}

var metricNames = map[string]pmapi.Metric{
	"displayed_fps":   pmapi.MetricDisplayedFPS,
	"presented_fps":   pmapi.MetricPresentedFPS,
	"frame_time":      pmapi.MetricFrameTime,
	"cpu_busy":        pmapi.MetricCPUBusy,
	"cpu_wait":        pmapi.MetricCPUWait,
	"gpu_busy":        pmapi.MetricGPUBusy,
	"gpu_power":       pmapi.MetricGPUPower,
	"cpu_utilization": pmapi.MetricCPUUtilization,
	"display_busy":    pmapi.MetricDisplayBusy,
	"dropped_frames":  pmapi.MetricDroppedFrames,
	"gpu_fan_speed":   pmapi.MetricGPUFanSpeed,
	"gpu_temperature": pmapi.MetricGPUTemperature,
}

var statNames = map[string]pmapi.Stat{
	"avg": pmapi.StatAvg,
	"p99": pmapi.StatPercentile99,
	"p95": pmapi.StatPercentile95,
	"p90": pmapi.StatPercentile90,
	"max": pmapi.StatMax,
	"min": pmapi.StatMin,
	"raw": pmapi.StatRaw,
}

// parseElements parses a comma-separated "metric=stat" or
// "metric=stat:index" list (index selects gpu_fan_speed's array slot).
func parseElements(spec string) ([]query.Element, error) {
	var out []query.Element
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		nameStat := strings.SplitN(part, "=", 2)
		if len(nameStat) != 2 {
			return nil, fmt.Errorf("invalid element %q: expected metric=stat", part)
		}
		metricName := nameStat[0]
		statPart := nameStat[1]
		var index uint64
		if i := strings.Index(statPart, ":"); i >= 0 {
			var err error
			index, err = strconv.ParseUint(statPart[i+1:], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid array index in %q: %w", part, err)
			}
			statPart = statPart[:i]
		}
		metric, ok := metricNames[strings.ToLower(metricName)]
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", metricName)
		}
		stat, ok := statNames[strings.ToLower(statPart)]
		if !ok {
			return nil, fmt.Errorf("unknown stat %q", statPart)
		}
		out = append(out, query.Element{Metric: metric, Stat: stat, ArrayIndex: uint32(index)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no elements parsed from %q", spec)
	}
	return out, nil
}
