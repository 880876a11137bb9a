// Package v1 defines the skywidget stream protocol v1 contract.
//
// It is shared between the server and clients (including the smoke script) so
// the wire format stays authoritative in one place.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Subprotocol is the websocket subprotocol clients must offer.
const Subprotocol = "skywidget.stream.v1"

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypePosts carries a rendered post list (server -> client).
	TypePosts = "posts"
	// TypeRefresh asks for an immediate re-render (client -> server).
	TypeRefresh = "refresh"
	// TypeError reports a failed render or a rejected client frame (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypePosts, TypeRefresh, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// PostsPayload carries the widget HTML fragment for the current result set.
type PostsPayload struct {
	HTML  string `json:"html"`
	Count int    `json:"count"`
}

// RefreshPayload is sent by the client to request a new render now.
type RefreshPayload struct{}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
