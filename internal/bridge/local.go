package bridge

import (
	"context"
	"sync"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

type call struct {
	ctx   context.Context
	msg   Message
	reply chan polish.Envelope
}

// Local is an in-process bridge: Send posts onto a channel served by a
// goroutine standing in for the network context. Each message is handled
// concurrently so that independent fields never wait on each other.
type Local struct {
	handler Handler
	inbox   chan call

	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewLocal starts the receiving side. Call Close to stop it.
func NewLocal(h Handler) *Local {
	base, cancel := context.WithCancel(context.Background())
	l := &Local{
		handler: h,
		inbox:   make(chan call),
		base:    base,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

func (l *Local) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case c := <-l.inbox:
			l.wg.Add(1)
			go l.serve(c)
		}
	}
}

func (l *Local) serve(c call) {
	defer l.wg.Done()
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(l.base, cancel)
	defer stop()
	// reply is buffered so a sender that gave up never blocks us.
	c.reply <- l.handler.Handle(ctx, c.msg)
}

// Send implements session.Sender.
func (l *Local) Send(ctx context.Context, req polish.Request) (polish.Envelope, error) {
	msg, err := NewOptimizeMessage("", req)
	if err != nil {
		return polish.Envelope{}, err
	}
	c := call{ctx: ctx, msg: msg, reply: make(chan polish.Envelope, 1)}

	select {
	case l.inbox <- c:
	case <-l.done:
		return polish.Envelope{}, ErrContextGone
	case <-ctx.Done():
		return polish.Envelope{}, ctx.Err()
	}

	select {
	case env := <-c.reply:
		select {
		case <-l.done:
			// The handler was cancelled by Close; its reply is meaningless.
			return polish.Envelope{}, ErrContextGone
		default:
		}
		return env, nil
	case <-l.done:
		return polish.Envelope{}, ErrContextGone
	case <-ctx.Done():
		return polish.Envelope{}, ctx.Err()
	}
}

// Close stops the receiving side, cancels in-flight handlers and waits for them.
// Pending and later Sends fail with ErrContextGone.
func (l *Local) Close() {
	l.once.Do(func() {
		close(l.done)
		l.cancel()
	})
	l.wg.Wait()
}
