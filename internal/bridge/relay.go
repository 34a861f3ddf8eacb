package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

// Handler answers one bridge message. Implementations never fail: every
// problem becomes a type=error envelope.
type Handler interface {
	Handle(ctx context.Context, msg Message) polish.Envelope
}

// Optimizer is the network-context service the relay forwards to.
type Optimizer interface {
	Optimize(ctx context.Context, req polish.Request) polish.Envelope
}

// Relay is the network-context message handler.
type Relay struct {
	optimizer Optimizer
	logger    *zap.Logger
}

// NewRelay creates a Relay. A nil logger disables logging.
func NewRelay(o Optimizer, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{optimizer: o, logger: logger}
}

// Handle dispatches msg by type. Panics in the optimizer are converted into
// an error envelope so that the sender always gets a reply.
func (r *Relay) Handle(ctx context.Context, msg Message) (env polish.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("relay panic", zap.String("type", string(msg.Type)), zap.Any("panic", rec))
			env = polish.Failure(polish.KindUnknown, "Internal error while processing the request.")
		}
	}()

	switch msg.Type {
	case TypeOptimizeText:
		var req polish.Request
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				r.logger.Warn("malformed payload", zap.String("id", msg.ID), zap.Error(err))
				return polish.Failure(polish.KindUnknownMessage, "Malformed request payload.")
			}
		}
		env = r.optimizer.Optimize(ctx, req)
		r.logger.Debug("relayed",
			zap.String("id", msg.ID),
			zap.String("mode", string(req.Mode.OrDefault())),
			zap.Bool("success", env.Success),
		)
		return env
	default:
		r.logger.Warn("unknown message type", zap.String("type", string(msg.Type)))
		return polish.Failure(polish.KindUnknownMessage, fmt.Sprintf("Unknown message type: %q.", msg.Type))
	}
}
