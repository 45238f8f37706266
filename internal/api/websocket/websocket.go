package websocket

import (
	"net/http"

	"zone-detection-console/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Разрешаем все origins (в продакшене нужно ограничить)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler обрабатывает WebSocket подключения зрителей
type Handler struct {
	manager *Manager
	// onConnect отправляет новому зрителю текущее состояние
	onConnect func(*Client)
}

// NewHandler создает новый WebSocket handler; onConnect может быть nil
func NewHandler(manager *Manager, onConnect func(*Client)) *Handler {
	return &Handler{
		manager:   manager,
		onConnect: onConnect,
	}
}

// HandleWebSocket обрабатывает WebSocket подключение
func (h *Handler) HandleWebSocket(c *gin.Context) {
	// Зритель может следить только за одним устройством
	deviceID := c.Query("device_id")

	// Апгрейдим HTTP соединение до WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log().Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	// Создаем клиента
	client := &Client{
		ID:       uuid.New().String(),
		Conn:     conn,
		Send:     make(chan Message, 256),
		DeviceID: deviceID,
	}

	if h.onConnect != nil {
		h.onConnect(client)
	}

	// Регистрируем клиента
	h.manager.RegisterClient(client)

	// Запускаем горутины для чтения и записи
	go client.WritePump()
	go client.ReadPump(h.manager)
}

// GetManager возвращает менеджер (для использования в других handlers)
func (h *Handler) GetManager() *Manager {
	return h.manager
}
