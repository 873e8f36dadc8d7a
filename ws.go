package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const maxFrameBytes = 8 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// bridgeMessage is one frame on the websocket bridge. ID is chosen by the
// page and echoed on the reply so overlapping submissions pair correctly.
type bridgeMessage struct {
	Channel string          `json:"channel"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type bridgeReply struct {
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
	Payload Result `json:"payload"`
}

func bridgeSocketHandler(bridge *Bridge, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameBytes)

		log := log.With("remote_addr", r.RemoteAddr)
		log.Info("bridge connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var writeMu sync.Mutex
		reply := func(msg bridgeReply) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("bridge write failed", "error", err)
			}
		}

		var wg sync.WaitGroup
		defer wg.Wait()

		for {
			var msg bridgeMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn("bridge read failed", "error", err)
				}
				log.Info("bridge disconnected")
				cancel()
				return
			}

			if msg.Channel != channelSubmitForm {
				reply(bridgeReply{Channel: channelImageData, ID: msg.ID, Payload: Result{Error: "unknown channel " + msg.Channel}})
				continue
			}
			var sub CharacterSubmission
			if err := json.Unmarshal(msg.Payload, &sub); err != nil {
				reply(bridgeReply{Channel: channelImageData, ID: msg.ID, Payload: Result{Error: "invalid payload"}})
				continue
			}

			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				res := bridge.Submit(ctx, sub)
				reply(bridgeReply{Channel: channelImageData, ID: id, Payload: res})
			}(msg.ID)
		}
	}
}
