package repository

import "zone-detection-console/internal/models"

// RepositoryInterface определяет контракт хранилища учетных данных консоли
// Это позволяет легко мокать репозиторий в тестах
type RepositoryInterface interface {
	// GetCredentials возвращает сохраненные учетные данные или nil, если их нет
	GetCredentials() (*models.ConsoleSettings, error)
	SaveCredentials(settings models.ConsoleSettings) error
	DeleteCredentials() error
}

// Проверяем что Repository реализует RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
