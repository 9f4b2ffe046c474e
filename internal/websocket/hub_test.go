// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package websocket

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/bitcurve/internal/models"
)

// startHub runs the hub until the test ends.
func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("RunWithContext returned %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop after cancel")
		}
	})
	return hub, cancel
}

// register attaches a connection-less client and waits until the hub has it.
func register(t *testing.T, hub *Hub, buffer int) *Client {
	t.Helper()

	client := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
	hub.Register <- client

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return client
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub, _ := startHub(t)
	client := register(t, hub, 16)

	hub.BroadcastAnalysisProgress("a1", "packets", 42.5, "")

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeAnalysisProgress {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypeAnalysisProgress)
		}
		data, ok := msg.Data.(AnalysisProgressData)
		if !ok {
			t.Fatalf("data type = %T", msg.Data)
		}
		if data.Percent != 42.5 || data.Stage != "packets" {
			t.Errorf("data = %+v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub, _ := startHub(t)
	client := register(t, hub, 1)

	// Fill the single-slot queue, then force one more broadcast through.
	hub.BroadcastSchedulerState("all_cores")
	hub.BroadcastSchedulerState("efficiency_only")

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not dropped")
		}
		time.Sleep(time.Millisecond)
	}

	// The dropped client's channel is closed after draining.
	<-client.send
	if _, ok := <-client.send; ok {
		t.Error("send channel still open after drop")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := register(t, hub, 16)

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed channel on shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client channel not closed on shutdown")
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub, _ := startHub(t)
	client := register(t, hub, 16)

	hub.Unregister <- client
	hub.Unregister <- client // second unregister must not panic on closed channel

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMarshalMessage(t *testing.T) {
	t.Parallel()

	msg := Message{
		Type: MessageTypeViewportChanged,
		Data: models.Viewport{StartFraction: 0.25, EndFraction: 0.75},
	}
	out, err := MarshalMessage(msg)
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}

	s := string(out)
	for _, want := range []string{`"type":"viewport_changed"`, `"start_fraction":0.25`, `"end_fraction":0.75`} {
		if !strings.Contains(s, want) {
			t.Errorf("marshaled message missing %s: %s", want, s)
		}
	}
}
