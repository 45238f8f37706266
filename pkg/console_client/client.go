package console_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/metrics"
	"zone-detection-console/internal/models"

	"github.com/go-resty/resty/v2"
)

// Значения, которыми бэкенд помечает незаданные учетные данные
const (
	NoConsoleEndpoint             = "no_console_endpoint"
	NoPortalAuthorizationEndpoint = "no_portal_authorization_endpoint"
	NoClientID                    = "no_client_id"
	NoClientSecret                = "no_client_secret"
)

// DataRatesWindow - окно запроса health/data_rates
const DataRatesWindow = 30 * time.Second

// APIError - бэкенд ответил ошибкой или недоступен
type APIError struct {
	Method     string
	Path       string
	StatusCode int // 0 - ответа не было
	Detail     string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("бэкенд недоступен (%s %s): %s", e.Method, e.Path, e.Detail)
	}
	return fmt.Sprintf("бэкенд вернул %d на %s %s: %s", e.StatusCode, e.Method, e.Path, e.Detail)
}

// Client для взаимодействия с бэкендом консоли
type Client struct {
	baseURL string
	rest    *resty.Client
}

// NewClient создает новый клиент
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// BaseURL возвращает адрес бэкенда
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do выполняет запрос и возвращает тело ответа. Ответы >= 400 превращаются в *APIError.
func (c *Client) do(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "error").Inc()
		return nil, &APIError{Method: method, Path: path, Detail: err.Error()}
	}
	metrics.BackendRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode())).Inc()

	if resp.IsError() {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Detail:     errorDetail(resp.Body()),
		}
	}
	return resp.Body(), nil
}

// errorDetail достает поле detail из ответа с ошибкой
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ошибка парсинга ответа %s: %w", path, err)
	}
	return nil
}

// ============ CONNECTION ============

// GetConnection возвращает учетные данные консоли.
// Отсутствующие поля заполняются значениями no_*.
func (c *Client) GetConnection(ctx context.Context) (models.ConsoleSettings, error) {
	var raw struct {
		ConsoleEndpoint             *string `json:"console_endpoint"`
		PortalAuthorizationEndpoint *string `json:"portal_authorization_endpoint"`
		ClientID                    *string `json:"client_id"`
		ClientSecret                *string `json:"client_secret"`
	}
	if err := c.getJSON(ctx, "connection/", nil, &raw); err != nil {
		return models.ConsoleSettings{}, err
	}
	return models.ConsoleSettings{
		ConsoleEndpoint:             stringOr(raw.ConsoleEndpoint, NoConsoleEndpoint),
		PortalAuthorizationEndpoint: stringOr(raw.PortalAuthorizationEndpoint, NoPortalAuthorizationEndpoint),
		ClientID:                    stringOr(raw.ClientID, NoClientID),
		ClientSecret:                stringOr(raw.ClientSecret, NoClientSecret),
	}, nil
}

// PutConnection сохраняет учетные данные на бэкенде
func (c *Client) PutConnection(ctx context.Context, settings models.ConsoleSettings) error {
	_, err := c.do(ctx, http.MethodPut, "connection/", settings, nil)
	return err
}

// PutClientType выбирает версию консоли на бэкенде
func (c *Client) PutClientType(ctx context.Context, consoleType models.ConsoleType) error {
	_, err := c.do(ctx, http.MethodPut, "client/", models.ClientTypeRequest{ClientType: consoleType}, nil)
	return err
}

// ============ DEVICES ============

// ListDevices возвращает устройства: сначала подключенные, внутри групп - по имени
func (c *Client) ListDevices(ctx context.Context) ([]models.Device, error) {
	var list models.DeviceList
	if err := c.getJSON(ctx, "devices/", nil, &list); err != nil {
		return nil, err
	}
	SortDevices(list.Devices)
	return list.Devices, nil
}

// SortDevices упорядочивает список как в селекторе устройств
func SortDevices(devices []models.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.ConnectionState == b.ConnectionState {
			return a.DeviceName < b.DeviceName
		}
		return a.ConnectionState == models.ConnectionStateConnected
	})
}

// GetDevice возвращает описание устройства. Для пустого id запрос не выполняется.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	device := models.Device{
		DeviceID:        deviceID,
		ConnectionState: models.ConnectionStateDisconnected,
	}
	if deviceID == "" {
		return device, nil
	}
	if err := c.getJSON(ctx, "devices/"+url.PathEscape(deviceID), nil, &device); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

// ============ CONFIGURATIONS ============

// GetConfiguration загружает конфигурацию устройства в ожидаемой схеме
func (c *Client) GetConfiguration(ctx context.Context, deviceID string, version configuration.SchemaVersion) (configuration.Configuration, error) {
	data, err := c.do(ctx, http.MethodGet, configurationPath(deviceID), nil, nil)
	if err != nil {
		return nil, err
	}
	return configuration.Decode(data, version)
}

// PutConfiguration привязывает к устройству новый командный файл
func (c *Client) PutConfiguration(ctx context.Context, deviceID string, cfg configuration.Configuration) error {
	return c.sendConfiguration(ctx, http.MethodPut, deviceID, cfg)
}

// PatchConfiguration отправляет обновленную конфигурацию на устройство
func (c *Client) PatchConfiguration(ctx context.Context, deviceID string, cfg configuration.Configuration) error {
	return c.sendConfiguration(ctx, http.MethodPatch, deviceID, cfg)
}

func (c *Client) sendConfiguration(ctx context.Context, method, deviceID string, cfg configuration.Configuration) error {
	body, err := configuration.Encode(cfg)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, method, configurationPath(deviceID), body, nil)
	return err
}

func configurationPath(deviceID string) string {
	return "configurations/" + url.PathEscape(deviceID)
}

// ============ PROCESSING ============

// GetImage возвращает последний кадр устройства в base64
func (c *Client) GetImage(ctx context.Context, deviceID string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "processing/image/"+url.PathEscape(deviceID), nil, nil)
	if err != nil {
		return "", err
	}
	// бэкенд отдает JSON строку
	return strings.Trim(strings.TrimSpace(string(data)), `"`), nil
}

// StartProcessing запускает инференс на устройстве
func (c *Client) StartProcessing(ctx context.Context, deviceID string, receiveImage bool) (models.StatusResponse, error) {
	return c.postStatus(ctx, "processing/start_processing/"+url.PathEscape(deviceID),
		map[string]string{"receive_image": strconv.FormatBool(receiveImage)})
}

// StopProcessing останавливает инференс
func (c *Client) StopProcessing(ctx context.Context, deviceID string) (models.StatusResponse, error) {
	return c.postStatus(ctx, "processing/stop_processing/"+url.PathEscape(deviceID), nil)
}

func (c *Client) postStatus(ctx context.Context, path string, query map[string]string) (models.StatusResponse, error) {
	var status models.StatusResponse
	data, err := c.do(ctx, http.MethodPost, path, nil, query)
	if err != nil {
		return status, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &status); err != nil {
			return status, fmt.Errorf("ошибка парсинга ответа %s: %w", path, err)
		}
	}
	return status, nil
}

// LastObjectCount возвращает последний счетчик объектов.
// Нечитаемый ответ дает пустой счетчик с текущим временем.
func (c *Client) LastObjectCount(ctx context.Context, deviceID string) (models.ObjectCount, error) {
	data, err := c.do(ctx, http.MethodGet, "object_detection/counts/"+url.PathEscape(deviceID)+"/last", nil, nil)
	if err != nil {
		return models.ObjectCount{}, err
	}
	count := models.ObjectCount{Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
	var parsed models.ObjectCount
	if err := json.Unmarshal(data, &parsed); err != nil {
		return count, nil
	}
	return parsed, nil
}

// ============ HEALTH ============

// TelemetryRates запрашивает частоту телеметрии за [start, end] с усреднением averageRange
func (c *Client) TelemetryRates(ctx context.Context, start, end time.Time, averageRange time.Duration) (models.OverallTelemetryRates, error) {
	var rates models.OverallTelemetryRates
	err := c.getJSON(ctx, "health/telemetry_rates", rangeQuery(start, end, averageRange), &rates)
	return rates, err
}

// DataRates запрашивает частоту данных за [start, end]
func (c *Client) DataRates(ctx context.Context, start, end time.Time, averageRange time.Duration) (models.OverallDataRates, error) {
	var rates models.OverallDataRates
	err := c.getJSON(ctx, "health/data_rates", rangeQuery(start, end, averageRange), &rates)
	return rates, err
}

// DatabaseInfo возвращает размер базы и самую старую запись
func (c *Client) DatabaseInfo(ctx context.Context) (models.DatabaseInfo, error) {
	var info models.DatabaseInfo
	err := c.getJSON(ctx, "health/database_info", nil, &info)
	return info, err
}

// DeleteDeviceData удаляет сохраненные данные устройства
func (c *Client) DeleteDeviceData(ctx context.Context, deviceID string) (models.StatusResponse, error) {
	var status models.StatusResponse
	data, err := c.do(ctx, http.MethodDelete, "health/data/"+url.PathEscape(deviceID), nil, nil)
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}
	return status, nil
}

func rangeQuery(start, end time.Time, averageRange time.Duration) map[string]string {
	return map[string]string{
		"start_time":    start.UTC().Format("2006-01-02T15:04:05.000Z"),
		"end_time":      end.UTC().Format("2006-01-02T15:04:05.000Z"),
		"average_range": strconv.FormatInt(averageRange.Milliseconds(), 10),
	}
}

// IsStatus проверяет код ответа бэкенда в цепочке ошибок
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func stringOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
