/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards driver events to other processes over NATS or Redis.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/cadence/internal/events"
)

// Message is the wire envelope shared by every remote backend.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Handler receives decoded remote messages.
type Handler func(Message)

// Remote is a publisher whose events leave the process.
type Remote interface {
	events.Publisher
	// Watch delivers every remote message under the bus prefix until ctx ends.
	Watch(ctx context.Context, h Handler) error
	Close() error
}

func encodeMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal event message: %w", err)
	}
	if msg.EventType == "" {
		return Message{}, fmt.Errorf("event message without event_type")
	}
	return msg, nil
}

// subject joins the bus prefix and event type, e.g. "cadence.events.pulse.fired".
func subject(prefix string, eventType events.EventType) string {
	return strings.TrimSuffix(prefix, ".") + "." + string(eventType)
}

// NodeID returns hostname plus a short random suffix.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "cadence"
	}
	return host + "-" + uuid.NewString()[:8]
}
