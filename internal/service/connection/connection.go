package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"
	"zone-detection-console/internal/repository"

	"go.uber.org/zap"
)

var (
	// ErrCredentialsUnavailable - бэкенд недоступен и сохраненных учетных данных нет
	ErrCredentialsUnavailable = errors.New("не удалось получить учетные данные консоли")
	// ErrUnknownConsoleType - выбран неизвестный тип консоли
	ErrUnknownConsoleType = errors.New("неизвестный тип консоли")
)

// VersionError - версия в адресе консоли не совпадает с выбранным типом
type VersionError struct {
	EndpointVersion string
	ConsoleType     models.ConsoleType
}

func (e *VersionError) Error() string {
	if e.EndpointVersion == "v1" || e.EndpointVersion == "v2" {
		return fmt.Sprintf("несовпадение версий: адрес консоли %s, а выбрана %s", e.EndpointVersion, e.ConsoleType)
	}
	return "адрес консоли должен заканчиваться на v1 или v2"
}

// Backend - эндпоинты бэкенда для подключения к консоли
type Backend interface {
	GetConnection(ctx context.Context) (models.ConsoleSettings, error)
	PutConnection(ctx context.Context, settings models.ConsoleSettings) error
	PutClientType(ctx context.Context, consoleType models.ConsoleType) error
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, deviceID string) (models.Device, error)
}

// DeviceCache - кэш списка и описаний устройств
type DeviceCache interface {
	GetDevices(ctx context.Context) ([]models.Device, error)
	SetDevices(ctx context.Context, devices []models.Device) error
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	SetDevice(ctx context.Context, device models.Device) error
	InvalidateAll(ctx context.Context) error
}

// Service управляет подключением к консоли и списком устройств
type Service struct {
	backend Backend
	repo    repository.RepositoryInterface
	cache   DeviceCache // может быть nil
}

// NewService создает сервис; cache может быть nil
func NewService(backend Backend, repo repository.RepositoryInterface, cache DeviceCache) *Service {
	return &Service{backend: backend, repo: repo, cache: cache}
}

// ============ CREDENTIALS ============

// Settings возвращает учетные данные консоли.
// Незаданные на бэкенде поля заменяются сохраненными значениями.
// Если бэкенд недоступен, используются только сохраненные значения.
func (s *Service) Settings(ctx context.Context) (models.ConsoleSettings, error) {
	stored := s.storedCredentials()

	settings, err := s.backend.GetConnection(ctx)
	if err != nil {
		if stored == nil || !complete(*stored) {
			return models.ConsoleSettings{}, fmt.Errorf("%w: %v", ErrCredentialsUnavailable, err)
		}
		logger.Log().Warn("⚠️ Бэкенд недоступен, используем сохраненные учетные данные", zap.Error(err))
		return *stored, nil
	}

	if stored != nil {
		settings.ConsoleEndpoint = fallback(settings.ConsoleEndpoint, stored.ConsoleEndpoint, "console_endpoint", "base_url")
		settings.PortalAuthorizationEndpoint = fallback(settings.PortalAuthorizationEndpoint, stored.PortalAuthorizationEndpoint, "portal_authorization_endpoint", "token_url")
		settings.ClientID = fallback(settings.ClientID, stored.ClientID, "client_id", "client_id")
		settings.ClientSecret = fallback(settings.ClientSecret, stored.ClientSecret, "client_secret", "client_secret")
	}
	return settings, nil
}

// SelectConsoleType выбирает версию консоли на бэкенде
func (s *Service) SelectConsoleType(ctx context.Context, consoleType models.ConsoleType) error {
	if !consoleType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownConsoleType, consoleType)
	}
	return s.backend.PutClientType(ctx, consoleType)
}

// Login проверяет версию адреса консоли, отправляет учетные данные на бэкенд
// и загружает список устройств. Удачные учетные данные сохраняются локально.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) ([]models.Device, error) {
	if !req.ConsoleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConsoleType, req.ConsoleType)
	}
	if err := CheckEndpointVersion(req.Settings.ConsoleEndpoint, req.ConsoleType); err != nil {
		return nil, err
	}

	if err := s.backend.PutConnection(ctx, req.Settings); err != nil {
		return nil, err
	}
	devices, err := s.reloadDevices(ctx)
	if err != nil {
		return nil, err
	}

	if s.repo != nil {
		if err := s.repo.SaveCredentials(req.Settings); err != nil {
			logger.Log().Error("❌ Не удалось сохранить учетные данные", zap.Error(err))
		}
	}
	logger.Log().Info("✅ Подключение к консоли установлено",
		zap.String("console_type", string(req.ConsoleType)), zap.Int("devices", len(devices)))
	return devices, nil
}

// CheckEndpointVersion сверяет окончание адреса (v1/v2) с типом консоли
func CheckEndpointVersion(endpoint string, consoleType models.ConsoleType) error {
	version := endpoint
	if len(version) > 2 {
		version = version[len(version)-2:]
	}
	compatible := (version == "v1" && consoleType == models.ConsoleTypeOnlineV1) ||
		(version == "v2" && consoleType == models.ConsoleTypeOnlineV2)
	if !compatible {
		return &VersionError{EndpointVersion: version, ConsoleType: consoleType}
	}
	return nil
}

// ============ DEVICES ============

// Devices возвращает список устройств; reload игнорирует кэш
func (s *Service) Devices(ctx context.Context, reload bool) ([]models.Device, error) {
	if !reload && s.cache != nil {
		devices, err := s.cache.GetDevices(ctx)
		if err != nil {
			logger.Log().Warn("кэш устройств недоступен", zap.Error(err))
		} else if devices != nil {
			return devices, nil
		}
	}
	return s.reloadDevices(ctx)
}

// Device возвращает описание устройства (с кэшем)
func (s *Service) Device(ctx context.Context, deviceID string) (models.Device, error) {
	if s.cache != nil && deviceID != "" {
		if cached, err := s.cache.GetDevice(ctx, deviceID); err == nil && cached != nil {
			return *cached, nil
		}
	}

	device, err := s.backend.GetDevice(ctx, deviceID)
	if err != nil {
		return models.Device{}, err
	}
	if s.cache != nil && deviceID != "" {
		if err := s.cache.SetDevice(ctx, device); err != nil {
			logger.Log().Warn("не удалось закэшировать устройство", zap.Error(err))
		}
	}
	return device, nil
}

func (s *Service) reloadDevices(ctx context.Context) ([]models.Device, error) {
	devices, err := s.backend.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []models.Device{}
	}
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			logger.Log().Warn("не удалось очистить кэш устройств", zap.Error(err))
		}
		if err := s.cache.SetDevices(ctx, devices); err != nil {
			logger.Log().Warn("не удалось закэшировать устройства", zap.Error(err))
		}
	}
	return devices, nil
}

func (s *Service) storedCredentials() *models.ConsoleSettings {
	if s.repo == nil {
		return nil
	}
	stored, err := s.repo.GetCredentials()
	if err != nil {
		logger.Log().Warn("не удалось прочитать сохраненные учетные данные", zap.Error(err))
		return nil
	}
	return stored
}

// IsPlaceholder сообщает, что значение - заглушка бэкенда (no_<field> или __<name>__)
func IsPlaceholder(value, field, name string) bool {
	return value == "no_"+field || value == "__"+name+"__"
}

func fallback(value, stored, field, name string) string {
	if IsPlaceholder(value, field, name) && stored != "" {
		return stored
	}
	return value
}

func complete(s models.ConsoleSettings) bool {
	for _, v := range []string{s.ConsoleEndpoint, s.PortalAuthorizationEndpoint, s.ClientID, s.ClientSecret} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
