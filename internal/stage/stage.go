package stage

import (
	"errors"
	"fmt"
	"sync"

	"zone-detection-console/internal/metrics"
)

// Stage - экран, на котором находится оператор
type Stage string

const (
	Initial                 Stage = "initial"
	ApplyReady              Stage = "apply_ready"
	ParameterLoading        Stage = "parameter_loading"
	ParameterSelection      Stage = "parameter_selection"
	ExtraParameterSelection Stage = "extra_parameter_selection"
	ZoneSelection           Stage = "zone_selection"
	InferenceStarting       Stage = "inference_starting"
	InferenceRunning        Stage = "inference_running"
	InferenceStopping       Stage = "inference_stopping"
)

// All - все стадии в порядке экрана
var All = []Stage{
	Initial, ApplyReady, ParameterLoading, ParameterSelection, ExtraParameterSelection,
	ZoneSelection, InferenceStarting, InferenceRunning, InferenceStopping,
}

var (
	initialStages       = []Stage{Initial, ApplyReady}
	inferenceStages     = []Stage{InferenceStarting, InferenceRunning, InferenceStopping}
	configurationStages = []Stage{ParameterSelection, ExtraParameterSelection}
	loadingStages       = []Stage{InferenceStarting, InferenceStopping, ParameterLoading}
)

// IsInitialStages - устройство и модель еще не применены
func IsInitialStages(s Stage) bool { return in(s, initialStages) }

// IsInferenceStages - поток инференса запускается, идет или останавливается
func IsInferenceStages(s Stage) bool { return in(s, inferenceStages) }

// IsConfigurationStages - параметры можно менять
func IsConfigurationStages(s Stage) bool { return in(s, configurationStages) }

// IsLoadingStage - ждем ответа бэкенда
func IsLoadingStage(s Stage) bool { return in(s, loadingStages) }

func in(s Stage, set []Stage) bool {
	for _, item := range set {
		if item == s {
			return true
		}
	}
	return false
}

// ============ TRANSITIONS ============

// Event - действие, меняющее стадию
type Event string

const (
	SelectModel          Event = "select_model"
	Apply                Event = "apply"
	LoadSucceeded        Event = "load_succeeded"
	LoadSucceededDefault Event = "load_succeeded_default"
	LoadFailed           Event = "load_failed"
	Configure            Event = "configure"
	EditZone             Event = "edit_zone"
	AcceptZone           Event = "accept_zone"
	ToggleExtra          Event = "toggle_extra"
	EditApplied          Event = "edit_applied"
	StartInference       Event = "start_inference"
	InferenceStarted     Event = "inference_started"
	InferenceStartFailed Event = "inference_start_failed"
	StopInference        Event = "stop_inference"
	InferenceStopped     Event = "inference_stopped"
	InferenceStopFailed  Event = "inference_stop_failed"
	Reset                Event = "reset"
)

// ErrInvalidTransition - событие недопустимо в текущей стадии
var ErrInvalidTransition = errors.New("недопустимый переход")

// rules: событие -> (откуда -> куда)
var rules = map[Event]map[Stage]Stage{
	SelectModel:          from(initialStages, ApplyReady),
	Apply:                from(initialStages, ParameterLoading),
	LoadSucceeded:        from([]Stage{ParameterLoading}, ParameterSelection),
	LoadSucceededDefault: from([]Stage{ParameterLoading}, ExtraParameterSelection),
	LoadFailed:           from([]Stage{ParameterLoading}, ApplyReady),
	Configure:            from(append([]Stage{ZoneSelection, InferenceRunning}, configurationStages...), ApplyReady),
	EditZone:             from(configurationStages, ZoneSelection),
	AcceptZone:           from([]Stage{ZoneSelection}, ParameterSelection),
	ToggleExtra: {
		ParameterSelection:      ExtraParameterSelection,
		ExtraParameterSelection: ParameterSelection,
	},
	EditApplied:          from([]Stage{ExtraParameterSelection}, ParameterSelection),
	StartInference:       from(configurationStages, InferenceStarting),
	InferenceStarted:     from([]Stage{InferenceStarting}, InferenceRunning),
	InferenceStartFailed: from([]Stage{InferenceStarting}, ParameterSelection),
	StopInference:        from([]Stage{InferenceRunning, InferenceStarting}, InferenceStopping),
	InferenceStopped:     from([]Stage{InferenceStopping}, ParameterSelection),
	InferenceStopFailed:  from([]Stage{InferenceStopping}, InferenceRunning),
	Reset:                from(All, Initial),
}

func from(stages []Stage, to Stage) map[Stage]Stage {
	m := make(map[Stage]Stage, len(stages))
	for _, s := range stages {
		m[s] = to
	}
	return m
}

// Next возвращает стадию после события или ErrInvalidTransition
func Next(current Stage, event Event) (Stage, error) {
	to, ok := rules[event][current]
	if !ok {
		return current, fmt.Errorf("%w: %s из %s", ErrInvalidTransition, event, current)
	}
	return to, nil
}

// Machine хранит текущую стадию
type Machine struct {
	mu      sync.RWMutex
	current Stage
}

// NewMachine создает машину в стадии initial
func NewMachine() *Machine {
	return &Machine{current: Initial}
}

// Current возвращает текущую стадию
func (m *Machine) Current() Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Can проверяет, допустимо ли событие сейчас
func (m *Machine) Can(event Event) bool {
	_, err := Next(m.Current(), event)
	return err == nil
}

// Transition применяет событие и возвращает новую стадию
func (m *Machine) Transition(event Event) (Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, err := Next(m.current, event)
	if err != nil {
		metrics.StageTransitions.WithLabelValues(string(event), "rejected").Inc()
		return m.current, err
	}
	m.current = to
	metrics.StageTransitions.WithLabelValues(string(event), "ok").Inc()
	return to, nil
}
