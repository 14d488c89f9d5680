// Benchmark tool for load-testing a running foodscan instance.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 10000
//
// This tool:
//   1. Generates synthetic additive lists from a realistic catalog
//   2. Sends each list to POST /additives/batch
//   3. Tracks throughput, latency percentiles, and grade distribution
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
)

// catalog is a realistic mix of identifiers: curated high/medium risk,
// common low-risk, suffixed variants, and tokens with no evidence at all.
var catalog = []string{
	"E250", "E249", "E621", "E951", "E950", "E954",
	"E150D", "E322", "E322I", "E330", "E338", "E160A",
	"E407", "E466", "E471", "E202", "E211", "E133",
	"en:e150d", "en:e330", "E999", "E888",
}

// BatchRequest mirrors the foodscan batch endpoint request body.
type BatchRequest struct {
	Additives []string `json:"additives"`
}

// BatchResponse mirrors the subset of the assessment we track.
type BatchResponse struct {
	AdditiveScore struct {
		Score int    `json:"score"`
		Grade string `json:"grade"`
	} `json:"additiveScore"`
	Interactions []json.RawMessage `json:"interactions"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalMatches   int64

	mu        sync.Mutex
	latencies []time.Duration
	grades    map[string]int64
}

func (m *Metrics) record(latency time.Duration, grade string, matches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latency)
	m.grades[grade]++
	m.TotalMatches += int64(matches)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Foodscan base URL")
	requests := flag.Int("requests", 10000, "Number of requests to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	minItems := flag.Int("min-items", 2, "Minimum additives per request")
	maxItems := flag.Int("max-items", 8, "Maximum additives per request")
	seed := flag.Int64("seed", 42, "Random seed for reproducible lists")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("================================================")
	fmt.Println("  FOODSCAN BENCHMARK - batch assessment load")
	fmt.Println("================================================")
	fmt.Printf("\nFoodscan URL: %s\n", *baseURL)
	fmt.Printf("Requests:     %d\n", *requests)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("List size:    %d-%d\n", *minItems, *maxItems)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: foodscan not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure foodscan is running:")
		fmt.Println("  go run cmd/foodscan/main.go")
		os.Exit(1)
	}
	fmt.Println("foodscan is healthy")

	rng := rand.New(rand.NewSource(*seed))
	lists := make([][]string, *requests)
	for i := range lists {
		lists[i] = randomList(rng, *minItems, *maxItems)
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	metrics := runBenchmark(lists, *baseURL, *workers, *verbose)
	duration := time.Since(start)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func randomList(rng *rand.Rand, minItems, maxItems int) []string {
	n := minItems
	if maxItems > minItems {
		n += rng.Intn(maxItems - minItems + 1)
	}
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, catalog[rng.Intn(len(catalog))])
	}
	return list
}

func runBenchmark(lists [][]string, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{grades: make(map[string]int64)}

	work := make(chan []string, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for list := range work {
				start := time.Now()
				result, err := assessBatch(client, baseURL, list)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v -> %v\n", list, err)
					}
					continue
				}

				metrics.record(elapsed, result.AdditiveScore.Grade, len(result.Interactions))

				if verbose {
					fmt.Printf("%v -> %d/%s (%d interactions, %s)\n",
						list, result.AdditiveScore.Score, result.AdditiveScore.Grade,
						len(result.Interactions), elapsed)
				}
			}
		}()
	}

	for _, list := range lists {
		work <- list
	}
	close(work)
	wg.Wait()

	return metrics
}

func assessBatch(client *http.Client, baseURL string, additives []string) (*BatchResponse, error) {
	body, err := json.Marshal(BatchRequest{Additives: additives})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/additives/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Println("\n================================================")
	fmt.Println("  RESULTS")
	fmt.Println("================================================")

	processed := atomic.LoadInt64(&m.TotalProcessed)
	errors := atomic.LoadInt64(&m.TotalErrors)
	fmt.Printf("\nRequests:   %d\n", processed)
	fmt.Printf("Errors:     %d\n", errors)
	fmt.Printf("Duration:   %s\n", duration.Round(time.Millisecond))
	if duration > 0 {
		fmt.Printf("Throughput: %.1f req/s\n", float64(processed)/duration.Seconds())
	}

	if len(m.latencies) > 0 {
		sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		fmt.Println("\nLatency:")
		fmt.Printf("  avg: %s\n", (total / time.Duration(len(m.latencies))).Round(time.Microsecond))
		fmt.Printf("  p50: %s\n", percentile(m.latencies, 0.50).Round(time.Microsecond))
		fmt.Printf("  p95: %s\n", percentile(m.latencies, 0.95).Round(time.Microsecond))
		fmt.Printf("  p99: %s\n", percentile(m.latencies, 0.99).Round(time.Microsecond))
	}

	fmt.Println("\nGrade distribution:")
	for _, grade := range []string{"A", "B", "C", "D", "E"} {
		if count := m.grades[grade]; count > 0 {
			fmt.Printf("  %s: %d (%.1f%%)\n", grade, count, 100*float64(count)/float64(len(m.latencies)))
		}
	}
	fmt.Printf("\nInteraction matches: %d\n", m.TotalMatches)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
