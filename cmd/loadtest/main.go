package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	From        time.Time
	Days        int
	Indexes     []string
	RangeRatio  float64
}

// queryBody is the JSON accepted by POST /api/v1/query.
type queryBody struct {
	Query    []string `json:"query"`
	Operator string   `json:"operator,omitempty"`
	Range    string   `json:"range,omitempty"`
	Indexes  []string `json:"indexes,omitempty"`
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	rangeQueries  atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func run(ctx context.Context, cmd *cli.Command) error {
	from, err := time.Parse("2006-01-02", cmd.String("from"))
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	cfg := Config{
		BaseURL:     strings.TrimRight(cmd.String("url"), "/"),
		Concurrency: int(cmd.Int("concurrency")),
		Duration:    cmd.Duration("duration"),
		From:        from,
		Days:        int(cmd.Int("days")),
		Indexes:     cmd.StringSlice("index"),
		RangeRatio:  cmd.Float("range-ratio"),
	}
	if cfg.Concurrency < 1 || cfg.Days < 1 {
		return fmt.Errorf("concurrency and days must be positive")
	}

	fmt.Println("=== Date Recurring Index Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Window:      %s + %d days\n", cfg.From.Format("2006-01-02"), cfg.Days)
	fmt.Println()

	stats := runLoadTest(ctx, cfg)
	return printReport(stats, cfg.Duration)
}

// randomQuery picks an hour-aligned instant in the window, or a one-day
// range starting at one.
func randomQuery(cfg Config, rng *rand.Rand) (queryBody, bool) {
	at := cfg.From.Add(time.Duration(rng.IntN(cfg.Days*24)) * time.Hour)
	body := queryBody{Indexes: cfg.Indexes}
	if rng.Float64() < cfg.RangeRatio {
		body.Query = []string{at.Format(time.RFC3339), at.Add(24 * time.Hour).Format(time.RFC3339)}
		body.Range = "min:max"
		return body, true
	}
	body.Query = []string{at.Format(time.RFC3339)}
	return body, false
}

func runLoadTest(parent context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(parent, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				body, isRange := randomQuery(cfg, rng)
				if isRange {
					stats.rangeQueries.Add(1)
				}

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, cfg.BaseURL+"/api/v1/query", body))
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(duration, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string, body queryBody) *http.Request {
	payload, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("encoding query: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func printReport(stats *Stats, duration time.Duration) error {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Range queries:   %d\n", stats.rangeQueries.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		return fmt.Errorf("no requests completed; is the search service running?")
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	cmd := &cli.Command{
		Name:   "dri-loadtest",
		Usage:  "Drive random point and range queries against the search service",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Base URL of the search service"},
			&cli.IntFlag{Name: "concurrency", Value: 10, Usage: "Number of concurrent workers"},
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Second, Usage: "Test duration"},
			&cli.StringFlag{Name: "from", Value: "2024-01-01", Usage: "First day of the query window"},
			&cli.IntFlag{Name: "days", Value: 365, Usage: "Length of the query window in days"},
			&cli.StringSliceFlag{Name: "index", Usage: "Indexes to query; the service defaults when empty"},
			&cli.FloatFlag{Name: "range-ratio", Value: 0.2, Usage: "Share of range queries"},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("load test failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
