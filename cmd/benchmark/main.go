// Benchmark drives a running creditcore server with synthetic event
// batches and reports scoring throughput and latency.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shfed/creditcore/internal/domain"
)

var (
	serverURL = flag.String("url", "http://localhost:8080", "creditcore server URL")
	total     = flag.Int("n", 1000, "number of requests to send")
	workers   = flag.Int("workers", 8, "number of concurrent workers")
	batchSize = flag.Int("batch", 10, "events per score request")
	ingest    = flag.Bool("ingest", false, "POST /events instead of /score")
	verbose   = flag.Bool("verbose", false, "log individual request errors")
)

type result struct {
	latency time.Duration
	status  int
}

func main() {
	flag.Parse()

	fmt.Println()
	fmt.Println("  creditcore benchmark")
	fmt.Println()
	fmt.Printf("  Target:   %s\n", *serverURL)
	fmt.Printf("  Requests: %d (%d events each, %d workers)\n", *total, *batchSize, *workers)
	fmt.Println()

	client := &http.Client{Timeout: 30 * time.Second}

	if err := waitForHealth(client); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		os.Exit(1)
	}

	jobs := make(chan struct{}, *total)
	results := make(chan result, *total)

	var completed, failed atomic.Int64

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for range jobs {
				status, latency, err := fire(client, rng)
				if err != nil {
					failed.Add(1)
					if *verbose {
						fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
					}
					continue
				}
				completed.Add(1)
				results <- result{latency: latency, status: status}
			}
		}(int64(w) + 1)
	}

	for i := 0; i < *total; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	close(results)
	elapsed := time.Since(start)

	latencies := make([]time.Duration, 0, completed.Load())
	for r := range results {
		latencies = append(latencies, r.latency)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("  Results:")
	fmt.Printf("    Completed:  %d\n", completed.Load())
	fmt.Printf("    Failed:     %d\n", failed.Load())
	fmt.Printf("    Elapsed:    %s\n", elapsed.Round(time.Millisecond))
	if n := len(latencies); n > 0 {
		fmt.Printf("    Throughput: %.1f req/s (%.1f events/s)\n",
			float64(n)/elapsed.Seconds(),
			float64(n*(*batchSize))/elapsed.Seconds())
		fmt.Printf("    Latency:    p50=%s p95=%s p99=%s max=%s\n",
			latencies[n/2].Round(time.Microsecond),
			latencies[n*95/100].Round(time.Microsecond),
			latencies[n*99/100].Round(time.Microsecond),
			latencies[n-1].Round(time.Microsecond))
	}
	fmt.Println()
}

func waitForHealth(client *http.Client) error {
	var lastErr error
	for i := 0; i < 10; i++ {
		resp, err := client.Get(*serverURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("health returned %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

// fire sends one score request (or one ingest when -ingest is set) and
// returns the HTTP status and round-trip latency.
func fire(client *http.Client, rng *rand.Rand) (int, time.Duration, error) {
	var (
		path string
		body any
	)
	if *ingest {
		path = "/events"
		body = synthEvent(rng)
	} else {
		path = "/score"
		events := make([]domain.Event, *batchSize)
		for i := range events {
			events[i] = synthEvent(rng)
		}
		body = map[string]any{"events": events}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	resp, err := client.Post(*serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, latency, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return resp.StatusCode, latency, nil
}

func synthEvent(rng *rand.Rand) domain.Event {
	ev := domain.Event{
		ID:      uuid.NewString(),
		ActorID: fmt.Sprintf("bench-actor-%03d", rng.Intn(100)),
		TS:      time.Now().UnixMilli(),
		Meta:    map[string]any{},
	}
	switch rng.Intn(8) {
	case 0:
		ev.Key = domain.KeyAttendanceLogged
		ev.Meta["present"] = rng.Intn(10) > 1
	case 1:
		ev.Key = domain.KeyGradePosted
		ev.Meta["pct"] = 40 + rng.Float64()*60
	case 2:
		ev.Key = domain.KeyMicrocertEarned
	case 3:
		ev.Key = domain.KeyAssignmentSubmitted
		ev.Meta["onTime"] = rng.Intn(4) > 0
	case 4:
		ev.Key = domain.KeySocialAction
		ev.Meta["action"] = []string{"mentor", "endorse", "flagged"}[rng.Intn(3)]
	case 5:
		ev.Key = domain.KeyPaymentPosted
		ev.Meta["onTime"] = rng.Intn(10) > 0
		ev.Meta["amount"] = 10 + rng.Float64()*490
	case 6:
		ev.Key = domain.KeyDisputeResolved
		ev.Meta["outcome"] = []string{"upheld", "denied", "withdrawn"}[rng.Intn(3)]
	case 7:
		ev.Key = domain.KeyDerogAdded
		ev.Meta["type"] = []string{"collection", "chargeoff", "generic"}[rng.Intn(3)]
	}
	return ev
}
