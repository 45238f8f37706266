package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/metrics"
	"zone-detection-console/internal/service/telemetry"
	"zone-detection-console/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message типы сообщений для WebSocket
type MessageType string

const (
	MessageTypeSessionState   MessageType = "session_state"
	MessageTypeFrame          MessageType = "frame"
	MessageTypeTelemetry      MessageType = "telemetry"
	MessageTypeTelemetryReset MessageType = "telemetry_reset"
	MessageTypeStreamClosed   MessageType = "stream_closed"
)

// Message структура WebSocket сообщения
type Message struct {
	Type     MessageType `json:"type"`
	DeviceID string      `json:"device_id,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

// Client представляет зрителя
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan Message
	DeviceID string // пусто - все устройства
}

// Manager рассылает состояние сессии и кадры зрителям
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	mu         sync.RWMutex
}

// NewManager создает новый WebSocket manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
	}
}

// Run запускает менеджер (должен работать в отдельной горутине) до отмены ctx
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			metrics.Viewers.Set(float64(len(m.clients)))
			m.mu.Unlock()
			logger.Log().Info("WebSocket: зритель подключен",
				zap.String("client_id", client.ID), zap.String("device_id", client.DeviceID))

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				m.removeLocked(client)
				logger.Log().Info("WebSocket: зритель отключен", zap.String("client_id", client.ID))
			}
			m.mu.Unlock()

		case message := <-m.broadcast:
			m.mu.Lock()
			for _, client := range m.clients {
				// Сообщения устройства получают только его зрители
				if message.DeviceID != "" && client.DeviceID != "" && client.DeviceID != message.DeviceID {
					continue
				}

				select {
				case client.Send <- message:
				default:
					// Если канал переполнен - отключаем клиента
					m.removeLocked(client)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) removeLocked(client *Client) {
	delete(m.clients, client.ID)
	close(client.Send)
	metrics.Viewers.Set(float64(len(m.clients)))
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		m.removeLocked(client)
	}
}

// ClientCount возвращает число подключенных зрителей
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// RegisterClient регистрирует нового клиента
func (m *Manager) RegisterClient(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		close(client.Send)
	}
}

// UnregisterClient отключает клиента
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast отправляет сообщение всем клиентам.
// Не блокируется: при переполненной очереди сообщение отбрасывается.
func (m *Manager) Broadcast(message Message) {
	select {
	case m.broadcast <- message:
	default:
		logger.Log().Warn("WebSocket: очередь рассылки переполнена", zap.String("type", string(message.Type)))
	}
}

// BroadcastSessionEvent пересылает событие сессии зрителям
func (m *Manager) BroadcastSessionEvent(event session.Event) {
	switch event.Type {
	case session.EventState:
		m.Broadcast(Message{Type: MessageTypeSessionState, Payload: event.State})
	case session.EventFrame:
		if event.Frame != nil {
			m.Broadcast(Message{Type: MessageTypeFrame, DeviceID: event.Frame.DeviceID, Payload: event.Frame})
		}
	case session.EventStreamClosed:
		m.Broadcast(Message{Type: MessageTypeStreamClosed})
	case session.EventTelemetryReset:
		m.Broadcast(Message{Type: MessageTypeTelemetryReset})
	}
}

// BroadcastTelemetry отправляет серии телеметрии после закрытия окна
func (m *Manager) BroadcastTelemetry(snapshot telemetry.Snapshot) {
	snapshot.Latest = nil // кадры уходят отдельными сообщениями
	m.Broadcast(Message{Type: MessageTypeTelemetry, Payload: snapshot})
}

// ReadPump читает сообщения от клиента
func (c *Client) ReadPump(manager *Manager) {
	defer func() {
		manager.UnregisterClient(c)
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log().Warn("WebSocket error", zap.Error(err))
			}
			break
		}

		// Зрители только слушают
		logger.Log().Debug("сообщение от зрителя проигнорировано",
			zap.String("client_id", c.ID), zap.ByteString("message", message))
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()

	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}

		// Сериализуем сообщение в JSON
		data, err := json.Marshal(message)
		if err != nil {
			logger.Log().Error("Error marshaling message", zap.Error(err))
			w.Close()
			continue
		}

		w.Write(data)

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
