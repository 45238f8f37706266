package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/models"
	"zone-detection-console/internal/service/configsync"
	"zone-detection-console/internal/service/telemetry"
	"zone-detection-console/internal/stage"
	"zone-detection-console/pkg/console_client"
)

// DefaultDebounce - пауза перед применением текстового ввода
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrStaleDevice - устройство или загрузка сменились, пока шел запрос
	ErrStaleDevice = errors.New("устройство сменилось, результат отброшен")
	// ErrNoDevice - устройство не выбрано
	ErrNoDevice = errors.New("устройство не выбрано")
	// ErrNoModel - модель не выбрана
	ErrNoModel = errors.New("модель не выбрана")
	// ErrNoConsoleType - тип консоли не выбран
	ErrNoConsoleType = errors.New("тип консоли не выбран")
	// ErrNoConfiguration - конфигурация устройства еще не загружена
	ErrNoConfiguration = errors.New("конфигурация не загружена")
)

// Backend - эндпоинты бэкенда, которые нужны сессии
type Backend interface {
	GetConfiguration(ctx context.Context, deviceID string, version configuration.SchemaVersion) (configuration.Configuration, error)
	PutConfiguration(ctx context.Context, deviceID string, cfg configuration.Configuration) error
	PatchConfiguration(ctx context.Context, deviceID string, cfg configuration.Configuration) error
	GetImage(ctx context.Context, deviceID string) (string, error)
	StartProcessing(ctx context.Context, deviceID string, receiveImage bool) (models.StatusResponse, error)
	StopProcessing(ctx context.Context, deviceID string) (models.StatusResponse, error)
}

// DeviceLookup возвращает описание устройства со списком моделей
type DeviceLookup interface {
	Device(ctx context.Context, deviceID string) (models.Device, error)
}

// FrameStream - открытый поток кадров
type FrameStream interface {
	Done() <-chan struct{}
	Close()
}

// StreamFunc открывает поток кадров
type StreamFunc func(ctx context.Context, handle func(models.StreamFrame)) (FrameStream, error)

// ClientStream открывает processing/ws через клиент бэкенда
func ClientStream(client *console_client.Client) StreamFunc {
	return func(ctx context.Context, handle func(models.StreamFrame)) (FrameStream, error) {
		stream, err := client.OpenStream(ctx, handle)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// State - снимок сессии для API и зрителей
type State struct {
	ConsoleType  models.ConsoleType    `json:"console_type"`
	DeviceID     string                `json:"device_id"`
	ModelID      string                `json:"model_id"`
	DeviceModels []string              `json:"device_models"`
	Stage        stage.Stage           `json:"stage"`
	Parameters   models.ParameterState `json:"parameters"`
	ForceUpdate  bool                  `json:"force_update"`
	SocketActive bool                  `json:"socket_active"`
	Image        string                `json:"image,omitempty"`
	Inference    models.Inference      `json:"inference"`
}

// Session - состояние оператора: выбранное устройство, параметры, стадия экрана.
// Все изменения идут под одним мьютексом, сетевые вызовы и таймеры - вне его.
type Session struct {
	mu sync.Mutex

	backend    Backend
	devices    DeviceLookup
	streams    StreamFunc
	telemetry  *telemetry.Aggregator
	dispatcher *configsync.Dispatcher
	machine    *stage.Machine
	debounce   time.Duration

	consoleType     models.ConsoleType
	deviceID        string
	modelID         string
	deviceModels    []string
	params          models.ParameterState
	config          configuration.Configuration
	forceUpdate     bool
	image           string
	latestInference models.Inference
	socketActive    bool
	generation      uint64
	stream          FrameStream
	timers          map[Field]*pendingText

	subMu       sync.Mutex
	subscribers map[int]func(Event)
	nextSub     int
}

// Option настраивает Session
type Option func(*Session)

// WithSettleDelay задает паузу после отправки конфигурации
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) {
		s.dispatcher = configsync.NewDispatcher(s, s.backend, d)
	}
}

// WithDebounce задает паузу перед применением текстового ввода
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		s.debounce = d
	}
}

// New создает сессию
func New(backend Backend, devices DeviceLookup, streams StreamFunc, agg *telemetry.Aggregator, opts ...Option) *Session {
	s := &Session{
		backend:         backend,
		devices:         devices,
		streams:         streams,
		telemetry:       agg,
		machine:         stage.NewMachine(),
		debounce:        DefaultDebounce,
		consoleType:     models.ConsoleTypeNone,
		params:          models.DefaultParameterState(),
		config:          configuration.EmptyConfiguration(),
		latestInference: models.EmptyInference(),
		timers:          make(map[Field]*pendingText),
		subscribers:     make(map[int]func(Event)),
	}
	s.dispatcher = configsync.NewDispatcher(s, backend, configsync.DefaultSettleDelay)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============ SNAPSHOT ============

// Snapshot возвращает копию состояния
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	return State{
		ConsoleType:  s.consoleType,
		DeviceID:     s.deviceID,
		ModelID:      s.modelID,
		DeviceModels: append([]string(nil), s.deviceModels...),
		Stage:        s.machine.Current(),
		Parameters:   s.params,
		ForceUpdate:  s.forceUpdate,
		SocketActive: s.socketActive,
		Image:        s.image,
		Inference:    s.latestInference,
	}
}

// Stage возвращает текущую стадию
func (s *Session) Stage() stage.Stage {
	return s.machine.Current()
}

// Telemetry возвращает снимок агрегатора телеметрии
func (s *Session) Telemetry() telemetry.Snapshot {
	return s.telemetry.Snapshot()
}

// ResetTelemetry очищает обе серии телеметрии
func (s *Session) ResetTelemetry() {
	s.telemetry.Reset()
	s.publish(Event{Type: EventTelemetryReset})
}

// ============ CONFIGSYNC STATE ============

// SyncSnapshot отдает диспетчеру параметры и конфигурацию
func (s *Session) SyncSnapshot() configsync.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return configsync.Snapshot{
		DeviceID:      s.deviceID,
		Parameters:    s.params,
		Configuration: s.config,
		ForceUpdate:   s.forceUpdate,
	}
}

// CommitConfiguration сохраняет отправленную конфигурацию, если устройство прежнее
func (s *Session) CommitConfiguration(deviceID string, cfg configuration.Configuration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID != s.deviceID {
		return false
	}
	s.config = cfg
	return true
}

// ClearForceUpdate снимает флаг принудительной отправки
func (s *Session) ClearForceUpdate(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID == s.deviceID {
		s.forceUpdate = false
	}
}

var _ configsync.State = (*Session)(nil)
