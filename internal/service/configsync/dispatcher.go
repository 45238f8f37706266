package configsync

import (
	"context"
	"time"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/metrics"
	"zone-detection-console/internal/models"

	"go.uber.org/zap"
)

// DefaultSettleDelay - пауза после PATCH, за которую устройство применяет конфигурацию
const DefaultSettleDelay = 5 * time.Second

// Snapshot - то, что нужно диспетчеру от сессии
type Snapshot struct {
	DeviceID      string
	Parameters    models.ParameterState
	Configuration configuration.Configuration
	ForceUpdate   bool
}

// State - источник параметров и получатель отправленной конфигурации
type State interface {
	SyncSnapshot() Snapshot
	// CommitConfiguration сохраняет конфигурацию, если устройство не сменилось
	CommitConfiguration(deviceID string, cfg configuration.Configuration) bool
	ClearForceUpdate(deviceID string)
}

// Patcher отправляет конфигурацию на бэкенд
type Patcher interface {
	PatchConfiguration(ctx context.Context, deviceID string, cfg configuration.Configuration) error
}

// Dispatcher отправляет конфигурацию на устройство, если параметры разошлись с ней
type Dispatcher struct {
	state   State
	patcher Patcher
	settle  time.Duration
}

// NewDispatcher создает диспетчер; settle <= 0 отключает паузу
func NewDispatcher(state State, patcher Patcher, settle time.Duration) *Dispatcher {
	return &Dispatcher{state: state, patcher: patcher, settle: settle}
}

// SyncIfNeeded отправляет конфигурацию устройства deviceID, если параметры
// отличаются от нее или выставлен флаг принудительного обновления.
// Возвращает true, если конфигурация была отправлена.
func (d *Dispatcher) SyncIfNeeded(ctx context.Context, deviceID string) (bool, error) {
	snap := d.state.SyncSnapshot()
	if snap.DeviceID != deviceID {
		logger.Log().Debug("устройство сменилось, синхронизация пропущена",
			zap.String("device_id", deviceID), zap.String("current", snap.DeviceID))
		return false, nil
	}
	if snap.Configuration == nil {
		return false, nil
	}
	if !snap.ForceUpdate && !configuration.Differs(snap.Parameters, snap.Configuration) {
		return false, nil
	}

	merged, err := configuration.Merge(snap.Parameters, snap.Configuration)
	if err != nil {
		return false, err
	}
	if !d.state.CommitConfiguration(deviceID, merged) {
		return false, nil
	}
	if err := d.Send(ctx, deviceID, merged); err != nil {
		return true, err
	}
	if snap.ForceUpdate {
		d.state.ClearForceUpdate(deviceID)
	}
	return true, nil
}

// Send отправляет конфигурацию и ждет, пока устройство ее применит.
// Ошибка PATCH только логируется; возвращается лишь отмена контекста.
func (d *Dispatcher) Send(ctx context.Context, deviceID string, cfg configuration.Configuration) error {
	if err := d.patcher.PatchConfiguration(ctx, deviceID, cfg); err != nil {
		metrics.ConfigPatches.WithLabelValues("error").Inc()
		logger.Log().Error("❌ Не удалось отправить конфигурацию",
			zap.String("device_id", deviceID), zap.Error(err))
		return ctx.Err()
	}
	metrics.ConfigPatches.WithLabelValues("ok").Inc()
	logger.Log().Info("✅ Конфигурация отправлена, ждем применения",
		zap.String("device_id", deviceID), zap.Duration("settle", d.settle))

	if d.settle <= 0 {
		return nil
	}
	timer := time.NewTimer(d.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
