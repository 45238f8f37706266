package session

import (
	"context"
	"fmt"

	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"
	"zone-detection-console/internal/stage"

	"go.uber.org/zap"
)

// StartInference отправляет конфигурацию, если она разошлась с параметрами,
// запускает обработку на бэкенде и открывает поток кадров
func (s *Session) StartInference(ctx context.Context) error {
	s.mu.Lock()
	if s.deviceID == "" {
		s.mu.Unlock()
		return ErrNoDevice
	}
	if _, err := s.machine.Transition(stage.StartInference); err != nil {
		s.mu.Unlock()
		return err
	}
	s.stopTimersLocked()
	deviceID, sendImage, gen := s.deviceID, s.params.SendImageFlag, s.generation
	s.mu.Unlock()
	s.publishState()

	stream, err := s.startProcessing(ctx, deviceID, sendImage)
	if err != nil {
		logger.Log().Error("❌ Не удалось запустить инференс", zap.String("device_id", deviceID), zap.Error(err))
		s.failTransition(stage.InferenceStartFailed, gen)
		return err
	}

	s.mu.Lock()
	if s.deviceID != deviceID || s.generation != gen {
		s.mu.Unlock()
		closeStream(stream)
		return ErrStaleDevice
	}
	if _, err := s.machine.Transition(stage.InferenceStarted); err != nil {
		// остановку запросили раньше, чем запуск завершился
		s.mu.Unlock()
		closeStream(stream)
		return err
	}
	s.stream = stream
	s.socketActive = true
	s.mu.Unlock()

	s.telemetry.SetActive(true)
	go s.watchStream(stream)
	logger.Log().Info("▶️ Инференс запущен", zap.String("device_id", deviceID), zap.Bool("receive_image", sendImage))
	s.publishState()
	return nil
}

func (s *Session) startProcessing(ctx context.Context, deviceID string, sendImage bool) (FrameStream, error) {
	if _, err := s.dispatcher.SyncIfNeeded(ctx, deviceID); err != nil {
		return nil, err
	}
	if _, err := s.backend.StartProcessing(ctx, deviceID, sendImage); err != nil {
		return nil, err
	}

	stream, err := s.streams(ctx, s.HandleFrame)
	if err != nil {
		if _, stopErr := s.backend.StopProcessing(context.WithoutCancel(ctx), deviceID); stopErr != nil {
			logger.Log().Warn("не удалось остановить обработку после ошибки потока", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("поток кадров не открыт: %w", err)
	}
	return stream, nil
}

// StopInference останавливает обработку на бэкенде и закрывает поток кадров
func (s *Session) StopInference(ctx context.Context) error {
	s.mu.Lock()
	if s.deviceID == "" {
		s.mu.Unlock()
		return ErrNoDevice
	}
	if _, err := s.machine.Transition(stage.StopInference); err != nil {
		s.mu.Unlock()
		return err
	}
	deviceID, gen := s.deviceID, s.generation
	s.mu.Unlock()
	s.publishState()

	if _, err := s.backend.StopProcessing(ctx, deviceID); err != nil {
		logger.Log().Error("❌ Не удалось остановить инференс", zap.String("device_id", deviceID), zap.Error(err))
		s.failTransition(stage.InferenceStopFailed, gen)
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrStaleDevice
	}
	stream := s.stream
	s.stream = nil
	s.socketActive = false
	_, _ = s.machine.Transition(stage.InferenceStopped)
	s.mu.Unlock()

	// Close ждет завершения чтения, которое само берет s.mu
	closeStream(stream)
	s.telemetry.SetActive(false)
	logger.Log().Info("⏹️ Инференс остановлен", zap.String("device_id", deviceID))
	s.publishState()
	return nil
}

// failTransition откатывает стадию, если сессия не сменилась
func (s *Session) failTransition(event stage.Event, gen uint64) {
	s.mu.Lock()
	if s.generation == gen {
		_, _ = s.machine.Transition(event)
	}
	s.mu.Unlock()
	s.publishState()
}

// HandleFrame принимает кадр потока: телеметрия, последний снимок и рассылка зрителям.
// Кадры чужих устройств и кадры при неактивном потоке отбрасываются.
func (s *Session) HandleFrame(frame models.StreamFrame) {
	if !s.telemetry.OnFrame(frame) {
		return
	}

	s.mu.Lock()
	if frame.DeviceID != s.deviceID {
		s.mu.Unlock()
		return
	}
	if frame.Image != "" {
		s.image = frame.Image
	}
	s.latestInference = frame.Inference
	s.mu.Unlock()

	s.publish(Event{Type: EventFrame, Frame: &frame})
}

// watchStream снимает флаг активного сокета, если поток оборвался сам.
// Переподключения нет: оператор перезапускает инференс.
func (s *Session) watchStream(stream FrameStream) {
	<-stream.Done()

	s.mu.Lock()
	if s.stream != stream {
		s.mu.Unlock()
		return
	}
	s.stream = nil
	s.socketActive = false
	s.mu.Unlock()

	s.telemetry.SetActive(false)
	logger.Log().Warn("⚠️ Поток кадров закрыт бэкендом")
	s.publish(Event{Type: EventStreamClosed})
	s.publishState()
}
