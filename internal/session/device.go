package session

import (
	"context"
	"fmt"
	"sync"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"
	"zone-detection-console/internal/stage"

	"go.uber.org/zap"
)

// SetConsoleType запоминает версию консоли после входа и сбрасывает сессию
func (s *Session) SetConsoleType(consoleType models.ConsoleType) {
	s.mu.Lock()
	s.consoleType = consoleType
	stream := s.clearDeviceLocked("")
	s.mu.Unlock()

	closeStream(stream)
	s.telemetry.SetDevice("")
	s.publishState()
}

// Reset возвращает сессию в начальное состояние без устройства
func (s *Session) Reset() {
	s.mu.Lock()
	stream := s.clearDeviceLocked("")
	s.mu.Unlock()

	closeStream(stream)
	s.telemetry.SetDevice("")
	s.publishState()
}

// SelectDevice выбирает устройство: параметры сбрасываются, список моделей загружается заново
func (s *Session) SelectDevice(ctx context.Context, deviceID string) (models.Device, error) {
	s.mu.Lock()
	// во время загрузки смена устройства разрешена: устаревший ответ будет отброшен
	if current := s.machine.Current(); !stage.IsInitialStages(current) && current != stage.ParameterLoading {
		s.mu.Unlock()
		return models.Device{}, fmt.Errorf("%w: выбор устройства из %s", stage.ErrInvalidTransition, current)
	}
	stream := s.clearDeviceLocked(deviceID)
	gen := s.generation
	s.mu.Unlock()

	closeStream(stream)
	s.telemetry.SetDevice(deviceID)
	s.publishState()

	device, err := s.devices.Device(ctx, deviceID)
	if err != nil {
		return models.Device{}, err
	}

	s.mu.Lock()
	if s.deviceID != deviceID || s.generation != gen {
		s.mu.Unlock()
		return models.Device{}, ErrStaleDevice
	}
	s.deviceModels = append([]string(nil), device.Models...)
	s.mu.Unlock()

	s.publishState()
	return device, nil
}

// clearDeviceLocked сбрасывает все, что относится к устройству.
// Возвращает открытый поток: закрывать его нужно без s.mu.
func (s *Session) clearDeviceLocked(deviceID string) FrameStream {
	s.stopTimersLocked()
	s.generation++
	s.deviceID = deviceID
	s.modelID = ""
	s.deviceModels = nil
	s.params = models.DefaultParameterState()
	s.config = configuration.EmptyConfiguration()
	s.forceUpdate = false
	s.image = ""
	s.latestInference = models.EmptyInference()
	s.socketActive = false
	_, _ = s.machine.Transition(stage.Reset)

	stream := s.stream
	s.stream = nil
	return stream
}

// SelectModel выбирает модель; конфигурация будет отправлена при старте инференса
func (s *Session) SelectModel(modelID string) error {
	s.mu.Lock()
	if s.deviceID == "" {
		s.mu.Unlock()
		return ErrNoDevice
	}
	if len(s.deviceModels) > 0 && !contains(s.deviceModels, modelID) {
		s.mu.Unlock()
		return &configuration.ValidationError{Fields: []string{"model_id"}}
	}
	if _, err := s.machine.Transition(stage.SelectModel); err != nil {
		s.mu.Unlock()
		return err
	}
	s.modelID = modelID
	s.params.ModelID = modelID
	s.forceUpdate = true
	s.mu.Unlock()

	s.publishState()
	return nil
}

// ============ APPLY ============

type loadResult struct {
	config    configuration.Configuration
	isDefault bool
	image     string
}

// Apply загружает конфигурацию и снимок устройства.
// Результат применяется, только если за время загрузки не сменились устройство и номер загрузки.
func (s *Session) Apply(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.deviceID == "":
		s.mu.Unlock()
		return ErrNoDevice
	case s.modelID == "":
		s.mu.Unlock()
		return ErrNoModel
	case !s.consoleType.Valid():
		s.mu.Unlock()
		return ErrNoConsoleType
	}
	if _, err := s.machine.Transition(stage.Apply); err != nil {
		s.mu.Unlock()
		return err
	}
	s.generation++
	gen, deviceID, modelID, consoleType := s.generation, s.deviceID, s.modelID, s.consoleType
	s.socketActive = false
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	closeStream(stream)
	s.telemetry.SetActive(false)
	s.publishState()

	result, err := s.load(ctx, deviceID, modelID, consoleType)

	s.mu.Lock()
	if s.deviceID != deviceID || s.generation != gen {
		s.mu.Unlock()
		logger.Log().Debug("загрузка устарела, результат отброшен", zap.String("device_id", deviceID))
		return ErrStaleDevice
	}
	if err != nil {
		_, _ = s.machine.Transition(stage.LoadFailed)
		s.mu.Unlock()
		logger.Log().Error("❌ Не удалось загрузить конфигурацию или снимок",
			zap.String("device_id", deviceID), zap.Error(err))
		s.publishState()
		return err
	}

	params := configuration.Parse(result.config)
	params.ModelID = modelID
	s.params = params
	s.config = result.config
	s.image = result.image
	s.latestInference = models.EmptyInference()
	event := stage.LoadSucceeded
	if result.isDefault {
		event = stage.LoadSucceededDefault
	}
	_, _ = s.machine.Transition(event)
	s.mu.Unlock()

	s.telemetry.Reset()
	logger.Log().Info("✅ Параметры загружены",
		zap.String("device_id", deviceID), zap.Bool("default_config", result.isDefault))
	s.publishState()
	return nil
}

// load параллельно загружает конфигурацию и снимок
func (s *Session) load(ctx context.Context, deviceID, modelID string, consoleType models.ConsoleType) (loadResult, error) {
	var (
		wg                sync.WaitGroup
		result            loadResult
		configErr, imgErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.config, result.isDefault, configErr = s.loadConfiguration(ctx, deviceID, modelID, consoleType)
	}()
	go func() {
		defer wg.Done()
		result.image, imgErr = s.backend.GetImage(ctx, deviceID)
	}()
	wg.Wait()

	if configErr != nil {
		return loadResult{}, configErr
	}
	if imgErr != nil {
		return loadResult{}, imgErr
	}
	return result, nil
}

func (s *Session) loadConfiguration(ctx context.Context, deviceID, modelID string, consoleType models.ConsoleType) (configuration.Configuration, bool, error) {
	if consoleType == models.ConsoleTypeOnlineV2 {
		cfg, err := s.backend.GetConfiguration(ctx, deviceID, configuration.SchemaV2)
		if err != nil {
			return nil, false, err
		}
		v2, ok := cfg.(*configuration.ConfigurationV2)
		if !ok {
			return nil, false, configuration.ErrWrongFormat
		}
		requiresUpdate := configuration.FillInMissingValuesWithDefault(v2, modelID)
		configuration.SetBundleID(v2, modelID)
		if requiresUpdate {
			logger.Log().Info("🔧 Конфигурация дополнена значениями по умолчанию", zap.String("device_id", deviceID))
			if err := s.dispatcher.Send(ctx, deviceID, v2); err != nil {
				return nil, false, err
			}
		}
		return v2, false, nil
	}

	cfg, err := s.backend.GetConfiguration(ctx, deviceID, configuration.SchemaV1)
	if err == nil {
		return cfg, false, nil
	}
	logger.Log().Warn("⚠️ Конфигурация не получена, создаем файл по умолчанию",
		zap.String("device_id", deviceID), zap.Error(err))

	def := configuration.DefaultConfigurationV1(configuration.NewCommandFileName())
	if err := s.backend.PutConfiguration(ctx, deviceID, def); err != nil {
		return nil, false, err
	}
	return def, true, nil
}

func closeStream(stream FrameStream) {
	if stream != nil {
		stream.Close()
	}
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
