package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zone-detection-console/internal/models"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL - время жизни списка устройств в кэше
const DefaultTTL = 30 * time.Second

const (
	devicesKey      = "zone_console:devices"
	devicePrefix    = "zone_console:device:"
	invalidateBatch = 100
)

// Service управляет кэшированием через Redis
type Service struct {
	client *redis.Client
	ttl    time.Duration
}

// NewService создает новый cache service
func NewService(addr, password string, db int, ttl time.Duration) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Проверяем подключение
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return NewServiceWithClient(client, ttl), nil
}

// NewServiceWithClient оборачивает готовый клиент
func NewServiceWithClient(client *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{client: client, ttl: ttl}
}

// Close закрывает соединение с Redis
func (s *Service) Close() error {
	return s.client.Close()
}

// ============ DEVICE LIST CACHE ============

// GetDevices получает список устройств; nil без ошибки - промах
func (s *Service) GetDevices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	found, err := s.getJSON(ctx, devicesKey, &devices)
	if err != nil || !found {
		return nil, err
	}
	if devices == nil {
		devices = []models.Device{}
	}
	return devices, nil
}

// SetDevices сохраняет уже отсортированный список устройств
func (s *Service) SetDevices(ctx context.Context, devices []models.Device) error {
	return s.setJSON(ctx, devicesKey, devices)
}

// ============ DEVICE CACHE ============

// GetDevice получает устройство из кэша
func (s *Service) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	found, err := s.getJSON(ctx, devicePrefix+deviceID, &device)
	if err != nil || !found {
		return nil, err
	}
	return &device, nil
}

// SetDevice сохраняет устройство в кэш
func (s *Service) SetDevice(ctx context.Context, device models.Device) error {
	return s.setJSON(ctx, devicePrefix+device.DeviceID, device)
}

// InvalidateDevice удаляет устройство и список из кэша.
// Список тоже устаревает: в нем есть состояние подключения.
func (s *Service) InvalidateDevice(ctx context.Context, deviceID string) error {
	return s.client.Del(ctx, devicePrefix+deviceID, devicesKey).Err()
}

// ============ UTILITY ============

// InvalidateAll очищает все записи об устройствах (кнопка Reload)
func (s *Service) InvalidateAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, devicePrefix+"*", invalidateBatch).Iterator()
	keys := []string{devicesKey}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *Service) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // Не найдено в кэше
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}
