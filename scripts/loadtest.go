//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aditya/haggle/internal/middleware"
	log "github.com/sirupsen/logrus"
)

// Run against a seeded server: go run scripts/loadtest.go
// JWT_SECRET must match the server's.

const baseURL = "http://localhost:8080"

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	Conflicts       int64
	Busy            int64
	TotalLatency    int64
	MaxLatency      int64
}

func (s *Stats) record(status int, latency int64) {
	atomic.AddInt64(&s.TotalRequests, 1)
	atomic.AddInt64(&s.TotalLatency, latency)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&s.SuccessRequests, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&s.Conflicts, 1)
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&s.Busy, 1)
	default:
		atomic.AddInt64(&s.FailedRequests, 1)
	}
	for {
		old := atomic.LoadInt64(&s.MaxLatency)
		if latency <= old || atomic.CompareAndSwapInt64(&s.MaxLatency, old, latency) {
			break
		}
	}
}

type client struct {
	token string
}

func (c client) do(method, path string, payload interface{}) (int, map[string]interface{}, int64) {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewBuffer(data)
	}
	req, _ := http.NewRequest(method, baseURL+path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return 0, nil, latency
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result, latency
}

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	auth := middleware.NewAuthenticator(secret)
	token := func(userID string) client {
		t, err := auth.IssueToken(userID, time.Hour)
		if err != nil {
			log.Fatal(err)
		}
		return client{token: t}
	}

	fmt.Println("Offer Negotiation Load Test")
	fmt.Println("===========================")

	seller := token("seller-anita")
	listingID := "listing-1"

	fmt.Println("\n1. Creating offers (200 offers, 20 concurrent)...")
	offerIDs, stats := createOffers(listingID, token, 200, 20)
	printStats("Offer Creation", stats)

	fmt.Println("\n2. Racing accept against reject on every offer...")
	stats, violations := raceResponses(seller, offerIDs)
	printStats("Concurrent Responses", stats)
	fmt.Printf("  Double outcomes:  %d\n", violations)

	fmt.Println("\nLoad test completed!")
}

func createOffers(listingID string, token func(string) client, n, concurrency int) ([]string, *Stats) {
	stats := &Stats{}
	var (
		mu  sync.Mutex
		ids []string
		wg  sync.WaitGroup
	)
	semaphore := make(chan struct{}, concurrency)

	for i := 0; i < n; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			buyer := token(fmt.Sprintf("loadtest-buyer-%d", idx))
			status, result, latency := buyer.do(http.MethodPost, "/v1/offers", map[string]interface{}{
				"listing_id":    listingID,
				"offered_price": 1000 + rand.Intn(2000),
			})
			stats.record(status, latency)
			if id, ok := result["id"].(string); ok && status == http.StatusCreated {
				mu.Lock()
				ids = append(ids, id)
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	return ids, stats
}

// raceResponses fires accept and reject at each offer at the same time.
// Exactly one may win; both succeeding is a violation.
func raceResponses(seller client, offerIDs []string) (*Stats, int) {
	stats := &Stats{}
	violations := int64(0)
	var wg sync.WaitGroup

	for _, id := range offerIDs {
		wg.Add(1)
		go func(offerID string) {
			defer wg.Done()

			var wins int64
			var inner sync.WaitGroup
			for _, action := range []string{"accept", "reject"} {
				inner.Add(1)
				go func(action string) {
					defer inner.Done()
					status, _, latency := seller.do(http.MethodPut, "/v1/offers/"+offerID+"/respond", map[string]string{"action": action})
					stats.record(status, latency)
					if status == http.StatusOK {
						atomic.AddInt64(&wins, 1)
					}
				}(action)
			}
			inner.Wait()
			if wins > 1 {
				atomic.AddInt64(&violations, 1)
			}
		}(id)
	}

	wg.Wait()
	return stats, int(violations)
}

func printStats(name string, stats *Stats) {
	avgLatency := float64(0)
	if stats.TotalRequests > 0 {
		avgLatency = float64(stats.TotalLatency) / float64(stats.TotalRequests)
	}

	fmt.Printf("\n%s Results:\n", name)
	fmt.Printf("  Total Requests:   %d\n", stats.TotalRequests)
	fmt.Printf("  Successful:       %d\n", stats.SuccessRequests)
	fmt.Printf("  Conflicts (409):  %d\n", stats.Conflicts)
	fmt.Printf("  Busy (503):       %d\n", stats.Busy)
	fmt.Printf("  Failed:           %d\n", stats.FailedRequests)
	fmt.Printf("  Avg Latency:      %.2f ms\n", avgLatency)
	fmt.Printf("  Max Latency:      %d ms\n", stats.MaxLatency)
}
