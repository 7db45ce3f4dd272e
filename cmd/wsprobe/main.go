// Package main provides a probe that tails forum events over the WebSocket
// endpoint and optionally drives comment traffic to measure fan-out.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the probe results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	CommentsSent         int64
	EventsReceived       int64
	Errors               int64
}

var (
	metrics Metrics

	eventsMu     sync.Mutex
	eventsByType = map[string]int64{}
)

type event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	host := flag.String("host", "localhost:5002", "API server host")
	clients := flag.Int("clients", 1, "Number of concurrent listeners")
	postID := flag.String("post", "", "Post to comment on; empty only listens")
	rate := flag.Duration("every", time.Second, "Interval between comments when -post is set")
	duration := flag.Duration("duration", 30*time.Second, "Probe duration")
	verbose := flag.Bool("v", false, "Print every received event")
	flag.Parse()

	log.Printf("🚀 Starting forum event probe")
	log.Printf("Target: %s", *host)
	log.Printf("Listeners: %d", *clients)
	log.Printf("Duration: %v", *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runListener(*host, i, *verbose, stopChan, &wg)
		time.Sleep(20 * time.Millisecond)
	}

	if *postID != "" {
		wg.Add(1)
		go runCommenter(*host, *postID, *rate, stopChan, &wg)
	}

	select {
	case <-time.After(*duration):
		log.Println("⏱️  Probe duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	log.Println("Waiting for listeners to disconnect...")
	wg.Wait()

	printMetrics()
}

func runListener(host string, id int, verbose bool, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws"}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Printf("Listener %d: dial failed: %v", id, err)
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	defer func() { _ = conn.Close() }()
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var evt event
			if err := json.Unmarshal(data, &evt); err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			eventsMu.Lock()
			eventsByType[evt.Type]++
			eventsMu.Unlock()
			if verbose {
				log.Printf("Listener %d: %s %s", id, evt.Type, evt.Payload)
			}
		}
	}()

	select {
	case <-stopChan:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	case <-done:
	}
}

func runCommenter(host, postID string, every time.Duration, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	commentURL := fmt.Sprintf("http://%s/api/posts/%s/comment", host, url.PathEscape(postID))

	for n := 1; ; n++ {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			body, _ := json.Marshal(map[string]string{
				"text":     fmt.Sprintf("probe comment %d at %s", n, time.Now().Format(time.RFC3339)),
				"username": "wsprobe",
			})
			resp, err := client.Post(commentURL, "application/json", bytes.NewReader(body))
			if err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				log.Printf("Commenter: unexpected status %d", resp.StatusCode)
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			atomic.AddInt64(&metrics.CommentsSent, 1)
		}
	}
}

func printMetrics() {
	fmt.Println("\n📊 Probe Results")
	fmt.Println("================")
	fmt.Printf("Connections Attempted: %d\n", metrics.ConnectionsAttempted)
	fmt.Printf("Connections Success:   %d\n", metrics.ConnectionsSuccess)
	fmt.Printf("Connections Failed:    %d\n", metrics.ConnectionsFailed)
	fmt.Printf("Comments Sent:         %d\n", metrics.CommentsSent)
	fmt.Printf("Events Received:       %d\n", metrics.EventsReceived)
	fmt.Printf("Errors:                %d\n", metrics.Errors)

	eventsMu.Lock()
	types := make([]string, 0, len(eventsByType))
	for t := range eventsByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %-20s %d\n", t+":", eventsByType[t])
	}
	eventsMu.Unlock()

	if metrics.ConnectionsSuccess > 0 && metrics.CommentsSent > 0 {
		perClient := float64(eventsByType["newComment"]) / float64(metrics.ConnectionsSuccess)
		fmt.Printf("newComment per listener: %.2f (comments sent: %d)\n", perClient, metrics.CommentsSent)
	}
}
