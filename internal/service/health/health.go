package health

import (
	"context"
	"sort"
	"time"

	"zone-detection-console/internal/models"

	"github.com/dustin/go-humanize"
)

// Окна запросов к health/*
const (
	// TelemetryRatesHistory - за сколько назад запрашивается частота телеметрии
	TelemetryRatesHistory = 2 * time.Hour
	DataRatesWindow       = 30 * time.Second
	// SummaryDeviceID - id сводной серии по всем устройствам
	SummaryDeviceID = "summary"
)

// Backend - health-эндпоинты консоли
type Backend interface {
	TelemetryRates(ctx context.Context, start, end time.Time, averageRange time.Duration) (models.OverallTelemetryRates, error)
	DataRates(ctx context.Context, start, end time.Time, averageRange time.Duration) (models.OverallDataRates, error)
	DatabaseInfo(ctx context.Context) (models.DatabaseInfo, error)
	DeleteDeviceData(ctx context.Context, deviceID string) (models.StatusResponse, error)
}

// TelemetrySeries - графики частоты телеметрии
type TelemetrySeries struct {
	Summary []models.SeriesPoint            `json:"summary"`
	Devices map[string][]models.SeriesPoint `json:"devices"`
}

// DatabaseSummary - информация о базе с читаемым размером
type DatabaseSummary struct {
	models.DatabaseInfo
	StorageSizeHuman string `json:"storage_size_human"`
}

// Service собирает health-информацию консоли в вид для графиков
type Service struct {
	backend  Backend
	now      func() time.Time
	location *time.Location
}

// NewService создает сервис; location задает часовой пояс подписей на графиках
func NewService(backend Backend, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{backend: backend, now: time.Now, location: location}
}

// Telemetry запрашивает частоту телеметрии и строит сводную и поустройственные серии
func (s *Service) Telemetry(ctx context.Context, averageRange time.Duration) (TelemetrySeries, error) {
	end := s.now()
	rates, err := s.backend.TelemetryRates(ctx, end.Add(-TelemetryRatesHistory), end, averageRange)
	if err != nil {
		return TelemetrySeries{}, err
	}

	series := TelemetrySeries{
		Summary: s.AggregateTelemetry(rates),
		Devices: make(map[string][]models.SeriesPoint, len(rates.GroupedTelemetryRates)),
	}
	for _, device := range rates.GroupedTelemetryRates {
		points := make([]models.SeriesPoint, 0, len(device.TelemetryRates))
		for _, rate := range device.TelemetryRates {
			points = append(points, models.SeriesPoint{X: s.clock(rate.Timestamp), Y: rate.Value})
		}
		series.Devices[device.DeviceID] = points
	}
	return series, nil
}

// AggregateTelemetry суммирует частоты всех устройств по меткам времени
func (s *Service) AggregateTelemetry(rates models.OverallTelemetryRates) []models.SeriesPoint {
	totals := make(map[string]float64)
	for _, device := range rates.GroupedTelemetryRates {
		sumInto(totals, device.TelemetryRates)
	}

	points := make([]models.SeriesPoint, 0, len(totals))
	for _, ts := range sortedKeys(totals) {
		points = append(points, models.SeriesPoint{X: s.clock(ts), Y: totals[ts]})
	}
	return points
}

// DataRates запрашивает частоту данных за последние 30 секунд и суммирует ее
func (s *Service) DataRates(ctx context.Context) (models.DeviceDataRates, error) {
	end := s.now()
	rates, err := s.backend.DataRates(ctx, end.Add(-DataRatesWindow), end, DataRatesWindow)
	if err != nil {
		return models.DeviceDataRates{}, err
	}
	return AggregateDataRates(rates), nil
}

// AggregateDataRates складывает частоты данных всех устройств в серию "summary"
func AggregateDataRates(rates models.OverallDataRates) models.DeviceDataRates {
	totals := make(map[string]float64)
	for _, device := range rates.GroupedDataRates {
		sumInto(totals, device.DataRates)
	}

	summary := models.DeviceDataRates{DeviceID: SummaryDeviceID, DataRates: make([]models.RateValue, 0, len(totals))}
	for _, ts := range sortedKeys(totals) {
		summary.DataRates = append(summary.DataRates, models.RateValue{Timestamp: ts, Value: totals[ts]})
	}
	return summary
}

// Database возвращает информацию о базе консоли
func (s *Service) Database(ctx context.Context) (DatabaseSummary, error) {
	info, err := s.backend.DatabaseInfo(ctx)
	if err != nil {
		return DatabaseSummary{}, err
	}
	size := info.StorageSize
	if size < 0 {
		size = 0
	}
	return DatabaseSummary{DatabaseInfo: info, StorageSizeHuman: humanize.Bytes(uint64(size))}, nil
}

// DeleteDeviceData удаляет сохраненные данные устройства на бэкенде
func (s *Service) DeleteDeviceData(ctx context.Context, deviceID string) (models.StatusResponse, error) {
	return s.backend.DeleteDeviceData(ctx, deviceID)
}

// clock переводит метку времени бэкенда в HH:MM:SS
func (s *Service) clock(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.In(s.location).Format("15:04:05")
}

func sumInto(totals map[string]float64, values []models.RateValue) {
	for _, v := range values {
		totals[v.Timestamp] += v.Value
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
