// Benchmark tool for measuring wallet analysis accuracy and latency.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/wallets.csv -url http://localhost:8080
//
// The CSV needs an "address" column and a "compromised" column (1/0 or
// true/false) labelling wallets known to have been drained. This tool:
//  1. Reads the labelled wallets
//  2. Requests a fresh analysis of each wallet
//  3. Treats any verdict other than SAFE as a positive
//  4. Prints precision, recall, F1-score, a confusion matrix and latency
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabelledWallet is one row from the input file.
type LabelledWallet struct {
	Address     string
	Compromised bool
}

// AnalysisResponse is the subset of the analysis response the benchmark reads.
type AnalysisResponse struct {
	ID      string `json:"id"`
	Partial bool   `json:"partial"`
	Report  struct {
		OverallRisk      int    `json:"overallRisk"`
		Severity         string `json:"severity"`
		TransactionCount int    `json:"transactionCount"`
		Detections       []struct {
			Type string `json:"type"`
		} `json:"detections"`
	} `json:"report"`
	Warnings []string `json:"warnings"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Compromised wallet flagged
	FalsePositives int64 // Clean wallet flagged
	TrueNegatives  int64 // Clean wallet reported SAFE
	FalseNegatives int64 // Compromised wallet reported SAFE (missed!)

	TotalProcessed   int64
	TotalCompromised int64
	TotalClean       int64
	TotalErrors      int64
	TotalPartial     int64
	TotalRateLimited int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled wallets CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	apiKey := flag.String("api-key", os.Getenv("HIBD_API_KEY"), "API key sent as X-API-Key")
	limit := flag.Int("limit", 1000, "Maximum wallets to process (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	verbose := flag.Bool("verbose", false, "Print each wallet result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/wallets.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|        HAVE I BEEN DRAINED BENCHMARK - Wallet Analysis        |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("API URL:     %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: API not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the service is running:")
		fmt.Println("  go run ./cmd/haveibeendrained")
		os.Exit(1)
	}
	fmt.Println("OK  service is healthy")

	wallets, err := readWalletsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(wallets) == 0 {
		fmt.Println("ERROR: no wallets in input")
		os.Exit(1)
	}
	fmt.Printf("OK  loaded %d wallets\n", len(wallets))

	compromised := 0
	for _, w := range wallets {
		if w.Compromised {
			compromised++
		}
	}
	fmt.Printf("  - Compromised: %d (%.2f%%)\n", compromised, 100*float64(compromised)/float64(len(wallets)))
	fmt.Printf("  - Clean:       %d (%.2f%%)\n", len(wallets)-compromised, 100*float64(len(wallets)-compromised)/float64(len(wallets)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(wallets, *baseURL, *apiKey, *workers, *timeout, *verbose)
	duration := time.Since(startTime)

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

func readWalletsCSV(path string, limit int) ([]LabelledWallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	addrCol, ok := colIndex["address"]
	if !ok {
		return nil, fmt.Errorf("missing address column")
	}
	labelCol, ok := colIndex["compromised"]
	if !ok {
		return nil, fmt.Errorf("missing compromised column")
	}

	var wallets []LabelledWallet
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(record) <= max(addrCol, labelCol) {
			continue // Skip malformed rows
		}

		label, err := strconv.ParseBool(strings.TrimSpace(record[labelCol]))
		if err != nil {
			continue
		}
		wallets = append(wallets, LabelledWallet{
			Address:     strings.TrimSpace(record[addrCol]),
			Compromised: label,
		})

		if limit > 0 && len(wallets) >= limit {
			break
		}
	}

	return wallets, nil
}

var errRateLimited = errors.New("rate limited")

func runBenchmark(wallets []LabelledWallet, baseURL, apiKey string, numWorkers int, timeout time.Duration, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabelledWallet, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: timeout}

			for w := range work {
				start := time.Now()
				result, err := analyzeWallet(client, baseURL, apiKey, w.Address)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if errors.Is(err, errRateLimited) {
						atomic.AddInt64(&metrics.TotalRateLimited, 1)
					}
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", w.Address, err)
					}
					continue
				}

				if w.Compromised {
					atomic.AddInt64(&metrics.TotalCompromised, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}
				if result.Partial {
					atomic.AddInt64(&metrics.TotalPartial, 1)
				}

				predicted := result.Report.Severity != "SAFE"
				actual := w.Compromised

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok "
					if predicted != actual {
						status = "ERR"
					}
					types := make([]string, 0, len(result.Report.Detections))
					for _, d := range result.Report.Detections {
						types = append(types, d.Type)
					}
					fmt.Printf("%s %-44s | Compromised: %-5v | %-8s (%3d) | txs: %3d | %s\n",
						status,
						w.Address,
						w.Compromised,
						result.Report.Severity,
						result.Report.OverallRisk,
						result.Report.TransactionCount,
						strings.Join(types, ","),
					)
				}
			}
		}()
	}

	for _, w := range wallets {
		work <- w
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeWallet(client *http.Client, baseURL, apiKey, address string) (*AnalysisResponse, error) {
	endpoint := baseURL + "/api/v1/wallets/" + url.PathEscape(address) + "/analysis?refresh=true"

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Total Compromised: %d\n", m.TotalCompromised)
	fmt.Printf("   Total Clean:       %d\n", m.TotalClean)
	fmt.Printf("   Partial Reports:   %d\n", m.TotalPartial)
	fmt.Printf("   Errors:            %d (rate limited: %d)\n", m.TotalErrors, m.TotalRateLimited)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  FLAGGED      SAFE")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  C  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("           N  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged wallets, how many were compromised)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of compromised wallets, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	if m.TotalCompromised > 0 {
		fmt.Printf("\n   Missed:     %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalCompromised,
			float64(m.FalseNegatives)/float64(m.TotalCompromised)*100)
	}
	if m.TotalClean > 0 {
		fmt.Printf("   False Alarms: %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean,
			float64(m.FalsePositives)/float64(m.TotalClean)*100)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		wps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f wallets/sec\n", wps)
	}

	fmt.Println()
}
