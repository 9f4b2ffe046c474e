// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bitcurve/internal/logging"
	"github.com/tomtom215/bitcurve/internal/metrics"
	"github.com/tomtom215/bitcurve/internal/models"
)

// Message types for WebSocket communication
const (
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeAnalysisProgress  = "analysis_progress"
	MessageTypeAnalysisCompleted = "analysis_completed"
	MessageTypeAnalysisError     = "analysis_error"
	MessageTypeSchedulerState    = "scheduler_state"
	MessageTypeViewportChanged   = "viewport_changed"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext starts the hub with context support for graceful shutdown.
// This method is designed for use with suture supervision.
//
// When the context is canceled all connected clients are closed and the
// method returns ctx.Err(), so a supervisor restart never leaves orphaned
// connections.
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Broadcast messages
// This ensures client state is always consistent before processing messages.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
			// No lifecycle events pending
		}

		// Priority 3: Handle broadcast messages or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// shutdown closes all clients and logs structured shutdown information.
// Context cancellation is expected behavior during graceful shutdown, so it
// is not logged as an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := sortedClients(h.clients)
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}

	metrics.WSConnections.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// broadcastToClients sends a message to all connected clients in a
// deterministic order. Clients whose send queue is full are dropped; a
// browser that cannot keep up with progress updates must not stall everyone
// else.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range sortedClients(h.clients) {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("dropping slow websocket client")
	}
}

// sortedClients returns the client set ordered by ID.
// DETERMINISM: Map iteration order is random; sorting by the monotonically
// assigned client ID keeps delivery and shutdown order reproducible.
func sortedClients(set map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON sends a JSON message to all connected clients
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping JSON message")
	}
}

// AnalysisProgressData represents data sent with analysis_progress messages.
type AnalysisProgressData struct {
	AnalysisID string  `json:"analysis_id"`
	Stage      string  `json:"stage"`
	Percent    float64 `json:"percent"`
	Message    string  `json:"message,omitempty"`
}

// BroadcastAnalysisProgress notifies all clients of analysis progress.
// Callers throttle; the hub sends whatever it is given.
func (h *Hub) BroadcastAnalysisProgress(analysisID, stage string, percent float64, note string) {
	h.BroadcastJSON(MessageTypeAnalysisProgress, AnalysisProgressData{
		AnalysisID: analysisID,
		Stage:      stage,
		Percent:    percent,
		Message:    note,
	})
}

// AnalysisCompletedData represents data sent with analysis_completed messages.
type AnalysisCompletedData struct {
	AnalysisID   string           `json:"analysis_id"`
	Timestamp    string           `json:"timestamp"`
	Info         models.VideoInfo `json:"info"`
	Samples      int              `json:"samples"`
	DurationMs   int64            `json:"duration_ms"`
	DurationText string           `json:"duration_text"`
	EndTimecode  string           `json:"end_timecode"`
}

// BroadcastAnalysisCompleted notifies all clients that an analysis finished.
func (h *Hub) BroadcastAnalysisCompleted(analysisID string, info models.VideoInfo, samples int, elapsed time.Duration) {
	data := AnalysisCompletedData{
		AnalysisID:   analysisID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Info:         info,
		Samples:      samples,
		DurationMs:   elapsed.Milliseconds(),
		DurationText: models.FormatTimeShort(info.Duration),
		EndTimecode:  models.FormatTimeFrames(info.Duration, info.FrameRate),
	}
	logging.Info().Int("clients", h.GetClientCount()).Str("analysis_id", analysisID).Msg("broadcast analysis_completed")
	h.BroadcastJSON(MessageTypeAnalysisCompleted, data)
}

// AnalysisErrorData represents data sent with analysis_error messages.
type AnalysisErrorData struct {
	AnalysisID string `json:"analysis_id"`
	Error      string `json:"error"`
}

// BroadcastAnalysisError notifies all clients that an analysis failed.
func (h *Hub) BroadcastAnalysisError(analysisID string, err error) {
	h.BroadcastJSON(MessageTypeAnalysisError, AnalysisErrorData{
		AnalysisID: analysisID,
		Error:      err.Error(),
	})
}

// SchedulerStateData represents data sent with scheduler_state messages.
type SchedulerStateData struct {
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// BroadcastSchedulerState notifies all clients of a placement change.
func (h *Hub) BroadcastSchedulerState(state string) {
	h.BroadcastJSON(MessageTypeSchedulerState, SchedulerStateData{
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// BroadcastViewportChanged mirrors a viewport change to every window.
func (h *Hub) BroadcastViewportChanged(vp models.Viewport) {
	h.BroadcastJSON(MessageTypeViewportChanged, vp)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
