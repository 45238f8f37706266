package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"zone-detection-console/internal/models"

	"github.com/jmoiron/sqlx"
)

// credentialsRowID - в таблице всегда одна строка
const credentialsRowID = 1

// Repository хранит учетные данные консоли в Postgres.
// Они нужны, когда бэкенд отдает заглушки no_* / __*__ или недоступен.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ============ CREDENTIALS ============

// GetCredentials получает сохраненные учетные данные
func (r *Repository) GetCredentials() (*models.ConsoleSettings, error) {
	var settings models.ConsoleSettings
	err := r.db.Get(&settings, `
		SELECT console_endpoint, portal_authorization_endpoint, client_id, client_secret
		FROM console_credentials
		WHERE id = $1
	`, credentialsRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &settings, nil
}

// SaveCredentials создает или обновляет единственную строку
func (r *Repository) SaveCredentials(settings models.ConsoleSettings) error {
	_, err := r.db.Exec(`
		INSERT INTO console_credentials
			(id, console_endpoint, portal_authorization_endpoint, client_id, client_secret, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			console_endpoint = EXCLUDED.console_endpoint,
			portal_authorization_endpoint = EXCLUDED.portal_authorization_endpoint,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			updated_at = NOW()
	`, credentialsRowID, settings.ConsoleEndpoint, settings.PortalAuthorizationEndpoint,
		settings.ClientID, settings.ClientSecret)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// DeleteCredentials удаляет сохраненные учетные данные
func (r *Repository) DeleteCredentials() error {
	if _, err := r.db.Exec("DELETE FROM console_credentials WHERE id = $1", credentialsRowID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
