// Package main runs a demo client: it walks a short route towards a property by
// posting fixes and prints the events streamed back over the WebSocket.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ~111 m per 0.001 degree of latitude
var walk = []float64{0.006, 0.004, 0.002, 0.0012, 0.0006, 0.0002}

const (
	propertyLat = 51.5
	propertyLon = -0.12
)

func post(base, path string, body any) {
	b, _ := json.Marshal(body)
	resp, err := http.Post(base+path, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	log.Printf("POST %s -> %d", path, resp.StatusCode)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	jobID := "J-demo"

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"jobId": jobID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	time.Sleep(300 * time.Millisecond)
	post(base, "/v1/fixes", map[string]any{"latitude": propertyLat + walk[0], "longitude": propertyLon, "accuracy": 5})
	post(base, "/v1/arrival/target", map[string]any{"jobId": jobID, "latitude": propertyLat, "longitude": propertyLon})
	post(base, "/v1/tracking/start", map[string]any{"jobId": jobID, "propertyId": "P-demo"})
	for _, d := range walk[1:] {
		time.Sleep(200 * time.Millisecond)
		post(base, "/v1/fixes", map[string]any{"latitude": propertyLat + d, "longitude": propertyLon, "accuracy": 5})
	}
	time.Sleep(200 * time.Millisecond)
	post(base, "/v1/tracking/stop", map[string]any{"metadata": map[string]any{"source": "ws_client"}})

	// Wait briefly to receive the trailing events
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
