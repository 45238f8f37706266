package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"
	"zone-detection-console/internal/service/connection"
	"zone-detection-console/internal/service/health"
	"zone-detection-console/internal/service/telemetry"
	"zone-detection-console/internal/session"
	"zone-detection-console/internal/stage"
	"zone-detection-console/pkg/console_client"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultAverageRange - интервал усреднения частоты телеметрии по умолчанию
const DefaultAverageRange = time.Minute

// SessionService - операции экрана оператора
type SessionService interface {
	Snapshot() session.State
	SetConsoleType(consoleType models.ConsoleType)
	Reset()
	SelectDevice(ctx context.Context, deviceID string) (models.Device, error)
	SelectModel(modelID string) error
	Apply(ctx context.Context) error
	Configure() error
	UpdateParameters(patch session.ParameterPatch) error
	CommitParameterText(field session.Field, text string) error
	EditZone() error
	SetZoneDrag(start, end models.Point) error
	AcceptZone() error
	ToggleExtra() error
	EditorConfiguration() ([]byte, error)
	ApplyEdit(raw []byte) error
	StartInference(ctx context.Context) error
	StopInference(ctx context.Context) error
	Telemetry() telemetry.Snapshot
	ResetTelemetry()
}

// ConnectionService - подключение к консоли и список устройств
type ConnectionService interface {
	Settings(ctx context.Context) (models.ConsoleSettings, error)
	SelectConsoleType(ctx context.Context, consoleType models.ConsoleType) error
	Login(ctx context.Context, req models.LoginRequest) ([]models.Device, error)
	Devices(ctx context.Context, reload bool) ([]models.Device, error)
	Device(ctx context.Context, deviceID string) (models.Device, error)
}

// HealthService - состояние консоли для графиков
type HealthService interface {
	Telemetry(ctx context.Context, averageRange time.Duration) (health.TelemetrySeries, error)
	DataRates(ctx context.Context) (models.DeviceDataRates, error)
	Database(ctx context.Context) (health.DatabaseSummary, error)
	DeleteDeviceData(ctx context.Context, deviceID string) (models.StatusResponse, error)
}

// ObjectCounter - последний счетчик объектов устройства
type ObjectCounter interface {
	LastObjectCount(ctx context.Context, deviceID string) (models.ObjectCount, error)
}

// Handler содержит все зависимости для обработки HTTP запросов
type Handler struct {
	session    SessionService
	connection ConnectionService
	health     HealthService
	counter    ObjectCounter

	// lifetime отменяется только при остановке сервера
	lifetime context.Context
}

// Option настраивает Handler
type Option func(*Handler)

// WithLifetime задает контекст, в котором идут загрузка конфигурации и запуск инференса
func WithLifetime(ctx context.Context) Option {
	return func(h *Handler) {
		h.lifetime = ctx
	}
}

// NewHandler создает новый handler с зависимостями
func NewHandler(
	sessionSvc SessionService,
	connectionSvc ConnectionService,
	healthSvc HealthService,
	counter ObjectCounter,
	opts ...Option,
) *Handler {
	h := &Handler{
		session:    sessionSvc,
		connection: connectionSvc,
		health:     healthSvc,
		counter:    counter,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// operationContext - контекст для операций с устройством. Закрытие вкладки
// их не прерывает, остановка сервера прерывает.
func (h *Handler) operationContext() context.Context {
	if h.lifetime == nil {
		return context.Background()
	}
	return h.lifetime
}

// Запросы
type selectDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

type selectModelRequest struct {
	ModelID string `json:"model_id" binding:"required"`
}

type parameterTextRequest struct {
	Text string `json:"text"`
}

type zoneRequest struct {
	Start models.Point `json:"start"`
	End   models.Point `json:"end"`
}

type loginResponse struct {
	ConsoleType models.ConsoleType `json:"console_type"`
	Devices     []models.Device    `json:"devices"`
}

// ============ CONNECTION ============

// HandleGetConnection возвращает учетные данные консоли
func (h *Handler) HandleGetConnection(c *gin.Context) {
	settings, err := h.connection.Settings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// HandleLogin подключается к консоли и сбрасывает сессию под ее версию
func (h *Handler) HandleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный формат запроса",
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.connection.SelectConsoleType(ctx, req.ConsoleType); err != nil {
		writeError(c, err)
		return
	}
	devices, err := h.connection.Login(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.session.SetConsoleType(req.ConsoleType)

	c.JSON(http.StatusOK, loginResponse{ConsoleType: req.ConsoleType, Devices: devices})
}

// HandleSelectConsoleType выбирает версию консоли на бэкенде
func (h *Handler) HandleSelectConsoleType(c *gin.Context) {
	var req models.ClientTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный формат запроса",
		})
		return
	}

	if err := h.connection.SelectConsoleType(c.Request.Context(), req.ClientType); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// ============ DEVICES ============

// HandleGetDevices возвращает список устройств; ?reload=true обходит кэш
func (h *Handler) HandleGetDevices(c *gin.Context) {
	reload, _ := strconv.ParseBool(c.Query("reload"))

	devices, err := h.connection.Devices(c.Request.Context(), reload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DeviceList{Devices: devices})
}

// HandleGetDevice возвращает устройство
func (h *Handler) HandleGetDevice(c *gin.Context) {
	device, err := h.connection.Device(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// HandleLastObjectCount возвращает последний счетчик объектов устройства
func (h *Handler) HandleLastObjectCount(c *gin.Context) {
	count, err := h.counter.LastObjectCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

// ============ SESSION ============

// HandleGetSession возвращает состояние экрана
func (h *Handler) HandleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// HandleResetSession сбрасывает выбор устройства
func (h *Handler) HandleResetSession(c *gin.Context) {
	h.session.Reset()
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// HandleSelectDevice выбирает устройство
func (h *Handler) HandleSelectDevice(c *gin.Context) {
	var req selectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Не указан device_id",
		})
		return
	}

	if _, err := h.session.SelectDevice(c.Request.Context(), req.DeviceID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// HandleSelectModel выбирает модель
func (h *Handler) HandleSelectModel(c *gin.Context) {
	var req selectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Не указан model_id",
		})
		return
	}
	h.respondState(c, h.session.SelectModel(req.ModelID))
}

// HandleApply загружает конфигурацию и изображение устройства
func (h *Handler) HandleApply(c *gin.Context) {
	h.respondState(c, h.session.Apply(h.operationContext()))
}

// HandleConfigure возвращает к выбору устройства
func (h *Handler) HandleConfigure(c *gin.Context) {
	h.respondState(c, h.session.Configure())
}

// HandleToggleExtra переключает панель дополнительных параметров
func (h *Handler) HandleToggleExtra(c *gin.Context) {
	h.respondState(c, h.session.ToggleExtra())
}

// ============ PARAMETERS ============

// HandleUpdateParameters применяет изменения ползунков и переключателей
func (h *Handler) HandleUpdateParameters(c *gin.Context) {
	var patch session.ParameterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный формат запроса",
		})
		return
	}
	h.respondState(c, h.session.UpdateParameters(patch))
}

// HandleCommitParameterText принимает текстовый ввод поля; применяется после паузы
func (h *Handler) HandleCommitParameterText(c *gin.Context) {
	var req parameterTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный формат запроса",
		})
		return
	}

	if err := h.session.CommitParameterText(session.Field(c.Param("field")), req.Text); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.StatusResponse{Status: "scheduled"})
}

// ============ ZONE ============

// HandleEditZone переходит к выбору зоны
func (h *Handler) HandleEditZone(c *gin.Context) {
	h.respondState(c, h.session.EditZone())
}

// HandleSetZone задает углы зоны во время перетаскивания
func (h *Handler) HandleSetZone(c *gin.Context) {
	var req zoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный формат запроса",
		})
		return
	}
	h.respondState(c, h.session.SetZoneDrag(req.Start, req.End))
}

// HandleAcceptZone завершает выбор зоны
func (h *Handler) HandleAcceptZone(c *gin.Context) {
	h.respondState(c, h.session.AcceptZone())
}

// ============ EDITOR ============

// HandleGetEditor возвращает JSON конфигурации с текущими параметрами
func (h *Handler) HandleGetEditor(c *gin.Context) {
	raw, err := h.session.EditorConfiguration()
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// HandleApplyEdit применяет вручную отредактированный JSON
func (h *Handler) HandleApplyEdit(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Ошибка чтения тела запроса",
		})
		return
	}
	h.respondState(c, h.session.ApplyEdit(raw))
}

// ============ INFERENCE ============

// HandleStartInference синхронизирует конфигурацию и запускает обработку
func (h *Handler) HandleStartInference(c *gin.Context) {
	h.respondState(c, h.session.StartInference(h.operationContext()))
}

// HandleStopInference останавливает обработку
func (h *Handler) HandleStopInference(c *gin.Context) {
	h.respondState(c, h.session.StopInference(h.operationContext()))
}

// ============ TELEMETRY ============

// HandleGetTelemetry возвращает серии телеметрии сессии
func (h *Handler) HandleGetTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Telemetry())
}

// HandleResetTelemetry очищает серии телеметрии
func (h *Handler) HandleResetTelemetry(c *gin.Context) {
	h.session.ResetTelemetry()
	c.JSON(http.StatusOK, h.session.Telemetry())
}

// ============ HEALTH ============

// HandleTelemetryRates возвращает частоту телеметрии; ?average_range задается в мс
func (h *Handler) HandleTelemetryRates(c *gin.Context) {
	averageRange := DefaultAverageRange
	if raw := c.Query("average_range"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "average_range должен быть положительным числом миллисекунд",
			})
			return
		}
		averageRange = time.Duration(ms) * time.Millisecond
	}

	series, err := h.health.Telemetry(c.Request.Context(), averageRange)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// HandleDataRates возвращает частоту данных по устройствам
func (h *Handler) HandleDataRates(c *gin.Context) {
	rates, err := h.health.DataRates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

// HandleDatabaseInfo возвращает информацию о базе консоли
func (h *Handler) HandleDatabaseInfo(c *gin.Context) {
	info, err := h.health.Database(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleDeleteDeviceData удаляет данные устройства на бэкенде
func (h *Handler) HandleDeleteDeviceData(c *gin.Context) {
	status, err := h.health.DeleteDeviceData(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ============ HELPERS ============

// respondState отвечает состоянием сессии или ошибкой операции
func (h *Handler) respondState(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// writeError переводит ошибку в HTTP статус
func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Log().Error("❌ Ошибка запроса",
			zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	var (
		apiErr        *console_client.APIError
		validationErr *configuration.ValidationError
		versionErr    *connection.VersionError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &versionErr),
		errors.Is(err, connection.ErrUnknownConsoleType),
		errors.Is(err, session.ErrNoDevice),
		errors.Is(err, session.ErrNoModel),
		errors.Is(err, session.ErrNoConsoleType),
		errors.Is(err, configuration.ErrWrongFormat),
		errors.Is(err, configuration.ErrInvalidJSON),
		errors.Is(err, configuration.ErrMissingPPLParameter),
		errors.Is(err, configuration.ErrMissingDetectionParameters):
		return http.StatusBadRequest
	case errors.Is(err, stage.ErrInvalidTransition),
		errors.Is(err, session.ErrStaleDevice),
		errors.Is(err, session.ErrNoConfiguration):
		return http.StatusConflict
	case errors.As(err, &apiErr),
		errors.Is(err, connection.ErrCredentialsUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
