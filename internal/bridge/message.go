// Package bridge carries optimization requests from the UI context to the
// network context and carries the envelope back. Two transports share one
// message shape: Local (in-process channels) and the WebSocket pair
// (WSHandler on the network side, WSClient on the UI side).
package bridge

import (
	"encoding/json"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

// MessageType names a bridge message.
type MessageType string

// TypeOptimizeText is the only message the network context understands.
const TypeOptimizeText MessageType = "optimizeText"

// Message is one request crossing the bridge. ID correlates the reply on
// transports that multiplex; Local leaves it empty.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the answer to a Message: the envelope fields plus the echoed ID.
type Reply struct {
	ID string `json:"id,omitempty"`
	polish.Envelope
}

// NewOptimizeMessage wraps req as an optimizeText message.
func NewOptimizeMessage(id string, req polish.Request) (Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, Type: TypeOptimizeText, Payload: payload}, nil
}

// ErrContextGone is returned by senders when the network context cannot be
// reached or disappears before replying.
var ErrContextGone = polish.NewError(polish.KindContextGone,
	"Connection to background service failed. Please reload the page or extension.")

func contextGone(cause error) error {
	if cause == nil {
		return ErrContextGone
	}
	return polish.WrapError(polish.KindContextGone, ErrContextGone.Message, cause)
}
