package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

// WSClient is the UI side of the WebSocket bridge. Requests are multiplexed
// over one connection and matched to replies by ID.
type WSClient struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan polish.Envelope
	closed  bool

	done     chan struct{}
	loopDone chan struct{}
	once     sync.Once
}

// Dial connects to a bridge endpoint. token, when set, is sent as a bearer
// credential on the upgrade request.
func Dial(ctx context.Context, endpoint, token string, logger *zap.Logger) (*WSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck
	}
	if err != nil {
		return nil, contextGone(err)
	}

	c := &WSClient{
		conn:     conn,
		logger:   logger,
		pending:  make(map[string]chan polish.Envelope),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	defer close(c.loopDone)
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageBytes)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("bridge connection lost", zap.Error(err))
			}
			return
		}
		var rep Reply
		if err := json.Unmarshal(data, &rep); err != nil {
			c.logger.Warn("discarding malformed reply", zap.Error(err))
			continue
		}
		c.mu.Lock()
		ch := c.pending[rep.ID]
		delete(c.pending, rep.ID)
		c.mu.Unlock()
		if ch == nil {
			c.logger.Debug("reply for unknown request", zap.String("id", rep.ID))
			continue
		}
		ch <- rep.Envelope
	}
}

func (c *WSClient) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.pending = map[string]chan polish.Envelope{}
		c.mu.Unlock()
		close(c.done)
	})
}

// Send implements session.Sender.
func (c *WSClient) Send(ctx context.Context, req polish.Request) (polish.Envelope, error) {
	id := uuid.NewString()
	msg, err := NewOptimizeMessage(id, req)
	if err != nil {
		return polish.Envelope{}, err
	}

	ch := make(chan polish.Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return polish.Envelope{}, ErrContextGone
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	err = c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return polish.Envelope{}, contextGone(err)
	}

	select {
	case env := <-ch:
		return env, nil
	case <-c.done:
		return polish.Envelope{}, ErrContextGone
	case <-ctx.Done():
		return polish.Envelope{}, ctx.Err()
	}
}

// Close sends a close frame, drops the connection and waits for the reader.
func (c *WSClient) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:errcheck
	c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.loopDone
	return err
}
