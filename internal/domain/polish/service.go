package polish

import (
	"context"
	"time"
)

// Transport delivers a validated request upstream. It never returns an
// error; every failure is expressed as a type=error envelope.
type Transport interface {
	Send(ctx context.Context, req Request, timeout time.Duration) Envelope
}

// Optimizer is the network-context entry point: it validates a request and
// hands it to the transport.
type Optimizer struct {
	transport Transport
	limits    Limits
	timeout   time.Duration
}

// NewOptimizer builds an Optimizer. A zero timeout lets the transport pick its default.
func NewOptimizer(transport Transport, limits Limits, timeout time.Duration) *Optimizer {
	return &Optimizer{transport: transport, limits: limits, timeout: timeout}
}

// Optimize runs one request. The mode defaults to concise.
func (o *Optimizer) Optimize(ctx context.Context, req Request) Envelope {
	req.Mode = req.Mode.OrDefault()
	if req.InputText == "" && !req.Mode.TextOptional() {
		return Failure(KindEmptyInput, "Input is empty. Please type a prompt first.")
	}
	if err := Validate(req.InputText, req.CustomInstruction, o.limits); err != nil {
		return ErrorEnvelope(err)
	}
	env := o.transport.Send(ctx, req, o.timeout)
	if !env.Valid() {
		// Transports are expected to honour the envelope invariants; patch up
		// anything that slips through so the UI never sees a broken shape.
		if env.Success {
			env.Data = Text("")
		} else {
			env = Failure(KindUnknown, msgUnknownUpstream)
		}
	}
	return env
}
