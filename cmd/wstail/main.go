// Command wstail logs in to an Inkwell server and prints the notification
// events pushed to that user. With -clients > 1 it opens that many streams
// and reports connection counts instead.
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
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the fan-out run results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	EventsReceived       int64
}

var (
	metrics    Metrics
	httpClient = &http.Client{Timeout: 5 * time.Second}
)

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	secure := flag.Bool("tls", false, "Use https and wss")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "", "Account password")
	clients := flag.Int("clients", 1, "Number of concurrent streams")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: wstail -email <email> -password <password> [-host host:port] [-clients n] [-duration d]")
		os.Exit(2)
	}

	httpScheme, wsScheme := "http", "ws"
	if *secure {
		httpScheme, wsScheme = "https", "wss"
	}
	base := fmt.Sprintf("%s://%s", httpScheme, *host)

	token, err := login(base, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	verbose := *clients == 1

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go stream(base, wsScheme, *host, token, verbose, stop, &wg)
		if *clients > 1 {
			// tickets are issued one request at a time
			time.Sleep(20 * time.Millisecond)
		}
	}

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	select {
	case <-timeout:
	case <-interrupt:
	}

	close(stop)
	wg.Wait()

	if !verbose {
		log.Printf("attempted=%d connected=%d failed=%d events=%d",
			atomic.LoadInt64(&metrics.ConnectionsAttempted),
			atomic.LoadInt64(&metrics.ConnectionsSuccess),
			atomic.LoadInt64(&metrics.ConnectionsFailed),
			atomic.LoadInt64(&metrics.EventsReceived))
	}
}

func login(base, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	resp, err := httpClient.Post(base+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func getTicket(base, token string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, base+"/api/ws/ticket", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ticket issuance failed with status %d", resp.StatusCode)
	}

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

func stream(base, wsScheme, host, token string, verbose bool, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	ticket, err := getTicket(base, token)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		if verbose {
			log.Printf("ticket: %v", err)
		}
		return
	}

	u := url.URL{Scheme: wsScheme, Host: host, Path: "/api/ws", RawQuery: "ticket=" + url.QueryEscape(ticket)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		if verbose {
			log.Printf("dial: %v", err)
		}
		return
	}
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if verbose && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("read: %v", err)
				}
				return
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			if verbose {
				fmt.Println(string(msg))
			}
		}
	}()

	select {
	case <-stop:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	case <-done:
	}
	_ = conn.Close()
}
