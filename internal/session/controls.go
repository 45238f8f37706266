package session

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"
	"zone-detection-console/internal/stage"

	"go.uber.org/zap"
)

// Field - числовой параметр, который вводится текстом
type Field string

const (
	FieldUploadInterval     Field = "upload_interval"
	FieldDetectionThreshold Field = "detection_threshold"
	FieldOverlapThreshold   Field = "overlap_threshold"
)

type bounds struct{ min, max float64 }

var fieldBounds = map[Field]bounds{
	FieldUploadInterval:     {models.MinUploadInterval, models.MaxUploadInterval},
	FieldDetectionThreshold: {models.MinDetectionThreshold, models.MaxDetectionThreshold},
	FieldOverlapThreshold:   {models.MinOverlapThreshold, models.MaxOverlapThreshold},
}

// ParameterPatch - частичное изменение параметров; nil поля не меняются
type ParameterPatch struct {
	DetectionThreshold *float64 `json:"detection_threshold"`
	OverlapThreshold   *float64 `json:"overlap_threshold"`
	UploadInterval     *float64 `json:"upload_interval"`
	EdgeFilterFlag     *bool    `json:"edge_filter_flag"`
	SendImageFlag      *bool    `json:"send_image_flag"`
}

// ============ ZONE ============

// EditZone переводит экран в выбор зоны
func (s *Session) EditZone() error {
	return s.transition(stage.EditZone)
}

// SetZoneDrag задает углы зоны во время перетаскивания; точки прижимаются к кадру
func (s *Session) SetZoneDrag(start, end models.Point) error {
	s.mu.Lock()
	if current := s.machine.Current(); current != stage.ZoneSelection {
		s.mu.Unlock()
		return fmt.Errorf("%w: зона меняется только в %s, сейчас %s", stage.ErrInvalidTransition, stage.ZoneSelection, current)
	}
	s.params.StartPoint = s.params.ClampPoint(start)
	s.params.EndPoint = s.params.ClampPoint(end)
	s.mu.Unlock()

	s.publishState()
	return nil
}

// AcceptZone принимает зону: углы приводятся к top-left / bottom-right
func (s *Session) AcceptZone() error {
	s.mu.Lock()
	if _, err := s.machine.Transition(stage.AcceptZone); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params.NormalizeZone()
	s.mu.Unlock()

	s.publishState()
	return nil
}

// ============ PARAMETERS ============

// UpdateParameters применяет изменения параметров целиком или не применяет ничего
func (s *Session) UpdateParameters(patch ParameterPatch) error {
	var invalid []string
	check := func(field Field, v *float64) {
		if v == nil {
			return
		}
		b := fieldBounds[field]
		if math.IsNaN(*v) || *v < b.min || *v > b.max {
			invalid = append(invalid, string(field))
		}
	}
	check(FieldDetectionThreshold, patch.DetectionThreshold)
	check(FieldOverlapThreshold, patch.OverlapThreshold)
	check(FieldUploadInterval, patch.UploadInterval)
	if len(invalid) > 0 {
		return &configuration.ValidationError{Fields: invalid}
	}

	s.mu.Lock()
	if err := s.requireConfigurationLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if patch.DetectionThreshold != nil {
		s.params.DetectionThreshold = *patch.DetectionThreshold
	}
	if patch.OverlapThreshold != nil {
		s.params.OverlapThreshold = *patch.OverlapThreshold
	}
	if patch.UploadInterval != nil {
		s.params.UploadInterval = *patch.UploadInterval
	}
	if patch.EdgeFilterFlag != nil {
		s.params.EdgeFilterFlag = *patch.EdgeFilterFlag
	}
	if patch.SendImageFlag != nil {
		s.params.SendImageFlag = *patch.SendImageFlag
	}
	s.mu.Unlock()

	s.publishState()
	return nil
}

// CommitUploadIntervalText применяет введенный текст интервала после паузы ввода
func (s *Session) CommitUploadIntervalText(text string) error {
	return s.CommitParameterText(FieldUploadInterval, text)
}

// CommitParameterText откладывает применение текста на s.debounce.
// Новый ввод того же поля отменяет предыдущий таймер. Нечисловой текст
// игнорируется, значение вне границ прижимается к ним.
func (s *Session) CommitParameterText(field Field, text string) error {
	if _, ok := fieldBounds[field]; !ok {
		return &configuration.ValidationError{Fields: []string{string(field)}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConfigurationLocked(); err != nil {
		return err
	}

	if prev, ok := s.timers[field]; ok {
		prev.timer.Stop()
	}
	pending := &pendingText{}
	gen := s.generation
	pending.timer = time.AfterFunc(s.debounce, func() {
		s.commitText(field, text, gen, pending)
	})
	s.timers[field] = pending
	return nil
}

// pendingText - отложенное применение текстового ввода
type pendingText struct {
	timer *time.Timer
}

func (s *Session) commitText(field Field, text string, gen uint64, pending *pendingText) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(value) {
		logger.Log().Debug("нечисловой ввод проигнорирован", zap.String("field", string(field)), zap.String("text", text))
		return
	}
	b := fieldBounds[field]
	value = math.Max(b.min, math.Min(b.max, value))

	s.mu.Lock()
	if s.timers[field] != pending || s.generation != gen || !stage.IsConfigurationStages(s.machine.Current()) {
		s.mu.Unlock()
		return
	}
	delete(s.timers, field)
	switch field {
	case FieldUploadInterval:
		s.params.UploadInterval = value
	case FieldDetectionThreshold:
		s.params.DetectionThreshold = value
	case FieldOverlapThreshold:
		s.params.OverlapThreshold = value
	}
	s.mu.Unlock()

	s.publishState()
}

func (s *Session) stopTimersLocked() {
	for field, pending := range s.timers {
		pending.timer.Stop()
		delete(s.timers, field)
	}
}

// ============ EDITOR ============

// EditorConfiguration возвращает конфигурацию с примененными параметрами для редактора
func (s *Session) EditorConfiguration() ([]byte, error) {
	s.mu.Lock()
	if s.config == nil {
		s.mu.Unlock()
		return nil, ErrNoConfiguration
	}
	merged, err := configuration.Merge(s.params, s.config)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return configuration.Encode(merged)
}

// ApplyEdit применяет вручную отредактированную конфигурацию.
// При ошибке ни конфигурация, ни параметры не меняются.
func (s *Session) ApplyEdit(raw []byte) error {
	s.mu.Lock()
	if !s.machine.Can(stage.EditApplied) {
		current := s.machine.Current()
		s.mu.Unlock()
		return fmt.Errorf("%w: %s из %s", stage.ErrInvalidTransition, stage.EditApplied, current)
	}

	cfg, params, err := configuration.ApplyEdit(s.config, raw, s.params, s.deviceModels)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.config = cfg
	s.params = params
	if params.ModelID != "" {
		s.modelID = params.ModelID
	}
	s.forceUpdate = true
	_, _ = s.machine.Transition(stage.EditApplied)
	s.mu.Unlock()

	logger.Log().Info("✏️ Конфигурация изменена вручную")
	s.publishState()
	return nil
}

// ============ STAGES ============

// Configure возвращает оператора к выбору устройства и модели
func (s *Session) Configure() error {
	s.mu.Lock()
	if _, err := s.machine.Transition(stage.Configure); err != nil {
		s.mu.Unlock()
		return err
	}
	s.stopTimersLocked()
	s.socketActive = false
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	closeStream(stream)
	s.telemetry.SetActive(false)
	s.publishState()
	return nil
}

// ToggleExtra переключает панель дополнительных параметров
func (s *Session) ToggleExtra() error {
	return s.transition(stage.ToggleExtra)
}

func (s *Session) transition(event stage.Event) error {
	if _, err := s.machine.Transition(event); err != nil {
		return err
	}
	s.publishState()
	return nil
}

func (s *Session) requireConfigurationLocked() error {
	if current := s.machine.Current(); !stage.IsConfigurationStages(current) {
		return fmt.Errorf("%w: параметры меняются только при настройке, сейчас %s", stage.ErrInvalidTransition, current)
	}
	return nil
}
