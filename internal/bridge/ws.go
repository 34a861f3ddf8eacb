package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

const (
	maxMessageBytes = 512 * 1024
	writeWait       = 10 * time.Second
)

// WSHandler serves the network side of the bridge over WebSocket. Every
// inbound message is handled in its own goroutine; replies are written
// under a per-connection lock and carry the request ID.
type WSHandler struct {
	handler  Handler
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates a WSHandler. allowedOrigins restricts browser
// origins; an empty list accepts any origin.
func NewWSHandler(h Handler, logger *zap.Logger, allowedOrigins []string) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		handler: h,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the connection and serves it until the peer goes away.
func (s *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	logger := s.logger.With(
		zap.String("remote", r.RemoteAddr),
		zap.String("subject", ctxkeys.String(r.Context(), ctxkeys.Subject)),
		zap.String("client", ctxkeys.String(r.Context(), ctxkeys.Client)),
	)
	logger.Info("bridge client connected")
	defer logger.Info("bridge client disconnected")

	// In-flight handlers outlive a cancelled request context only until the
	// read loop below notices the disconnect.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	s.serve(ctx, cancel, conn, logger)
}

func (s *WSHandler) serve(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, logger *zap.Logger) {
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer func() {
		cancel()
		wg.Wait()
		conn.Close() //nolint:errcheck
	}()

	write := func(rep Reply) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		if err := conn.WriteJSON(rep); err != nil {
			logger.Debug("websocket write failed", zap.String("id", rep.ID), zap.Error(err))
		}
	}

	conn.SetReadLimit(maxMessageBytes)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			write(Reply{Envelope: polish.Failure(polish.KindUnknownMessage, "Malformed message.")})
			continue
		}

		wg.Add(1)
		go func(msg Message) {
			defer wg.Done()
			write(Reply{ID: msg.ID, Envelope: s.handler.Handle(ctx, msg)})
		}(msg)
	}
}
