package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Load simulator: floods an event's waiting room with polling users and
// reports how fast they flow through. Point it at a running server:
//
//	go run scripts/simulate-queue.go -event concert-2025 -users 300

var (
	baseURL     = flag.String("url", "http://localhost:8086", "Admission service base URL")
	eventID     = flag.String("event", "", "Event ID (required)")
	numUsers    = flag.Int("users", 300, "Number of simulated users")
	rampUp      = flag.Duration("ramp", 10*time.Second, "Window over which users arrive")
	holdMin     = flag.Duration("hold-min", 5*time.Second, "Minimum time an admitted user stays before leaving")
	holdMax     = flag.Duration("hold-max", 30*time.Second, "Maximum time an admitted user stays before leaving")
	statsPeriod = flag.Duration("stats", 5*time.Second, "Stats print interval")
)

type admissionView struct {
	Status         string `json:"status"`
	Position       int64  `json:"position"`
	QueueSize      int64  `json:"queue_size"`
	PollIntervalMs int64  `json:"poll_interval_ms"`
	EntryToken     string `json:"entry_token"`
}

var (
	queued   atomic.Int64
	admitted atomic.Int64
	done     atomic.Int64
	failures atomic.Int64
)

func main() {
	flag.Parse()

	if *eventID == "" {
		fmt.Fprintln(os.Stderr, "-event is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	fmt.Printf("Simulating %d users against %s (event %s)\n", *numUsers, *baseURL, *eventID)

	go printStats(ctx)

	var wg sync.WaitGroup
	for i := 0; i < *numUsers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Stagger arrivals across the ramp-up window.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(rand.Int63n(int64(*rampUp)))):
			}

			runUser(ctx, uuid.NewString())
		}()
	}

	wg.Wait()
	fmt.Printf("Done: admitted=%d completed=%d failures=%d\n",
		admitted.Load(), done.Load(), failures.Load())
}

func runUser(ctx context.Context, userID string) {
	cli := &http.Client{Timeout: 5 * time.Second}
	wasQueued := false

	for {
		if ctx.Err() != nil {
			return
		}

		view, err := check(ctx, cli, userID)
		if err != nil {
			failures.Add(1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		switch view.Status {
		case "active":
			if wasQueued {
				queued.Add(-1)
			}
			admitted.Add(1)

			// Hold the slot like a real buyer, then leave.
			hold := *holdMin
			if *holdMax > *holdMin {
				hold += time.Duration(rand.Int63n(int64(*holdMax - *holdMin)))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(hold):
			}

			leave(ctx, cli, userID)
			done.Add(1)
			return

		case "queued":
			if !wasQueued {
				wasQueued = true
				queued.Add(1)
			}

			poll := time.Duration(view.PollIntervalMs) * time.Millisecond
			if poll <= 0 {
				poll = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(poll):
			}

		default:
			failures.Add(1)
			return
		}
	}
}

func check(ctx context.Context, cli *http.Client, userID string) (*admissionView, error) {
	body, _ := json.Marshal(map[string]string{"event_id": *eventID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		*baseURL+"/api/v1/admission/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", userID)

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check returned status %d", resp.StatusCode)
	}

	var view admissionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, err
	}

	return &view, nil
}

func leave(ctx context.Context, cli *http.Client, userID string) {
	body, _ := json.Marshal(map[string]string{"event_id": *eventID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		*baseURL+"/api/v1/admission/leave", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", userID)

	resp, err := cli.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func printStats(ctx context.Context) {
	ticker := time.NewTicker(*statsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("[%s] queued=%d admitted=%d completed=%d failures=%d\n",
				time.Now().Format("15:04:05"),
				queued.Load(), admitted.Load(), done.Load(), failures.Load())
		}
	}
}
