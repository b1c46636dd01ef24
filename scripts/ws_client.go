// Package main runs a demo WebSocket client that starts a run on a
// checkpoint file and prints its progress events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"

	"darpm/internal/integrations"
	"darpm/internal/model"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s requests.json", os.Args[0])
	}
	set, err := integrations.ReadCheckpoint(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	body, _ := json.Marshal(model.RunRequest{Requests: set.Requests})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("create run: %s", resp.Status)
	}
	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + run.ID + "/events"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// the server closes the socket after the completed or failed event
	for {
		var ev event
		if err := c.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			return
		}
		log.Printf("WS <- %s: %s", ev.Type, string(ev.Data))
	}
}
