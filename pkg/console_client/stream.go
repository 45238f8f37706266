package console_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Stream - подключение к processing/ws бэкенда
type Stream struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// StreamURL строит ws(s)://.../processing/ws из адреса бэкенда
func (c *Client) StreamURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/processing/ws")
	if err != nil {
		return "", fmt.Errorf("неверный адрес бэкенда: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// OpenStream подключается к потоку кадров и вызывает handle для каждого кадра.
// Переподключения нет: после обрыва поток нужно открыть заново.
func (c *Client) OpenStream(ctx context.Context, handle func(models.StreamFrame)) (*Stream, error) {
	wsURL, err := c.StreamURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &APIError{Method: "GET", Path: "processing/ws", Detail: err.Error()}
	}

	s := &Stream{conn: conn, done: make(chan struct{})}
	go s.readPump(handle)
	logger.Log().Info("🔌 Поток кадров подключен", zap.String("url", wsURL))
	return s, nil
}

// readPump читает кадры до закрытия соединения
func (s *Stream) readPump(handle func(models.StreamFrame)) {
	defer close(s.done)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log().Warn("поток кадров оборван", zap.Error(err))
			}
			return
		}

		var frame models.StreamFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Log().Warn("нечитаемый кадр", zap.Error(err))
			continue
		}
		handle(frame)
	}
}

// Done закрывается, когда чтение завершено
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close закрывает соединение и ждет завершения чтения
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	<-s.done
}
