package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"zone-detection-console/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBackend - мок health-эндпоинтов
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) TelemetryRates(ctx context.Context, start, end time.Time, averageRange time.Duration) (models.OverallTelemetryRates, error) {
	args := m.Called(ctx, start, end, averageRange)
	return args.Get(0).(models.OverallTelemetryRates), args.Error(1)
}

func (m *MockBackend) DataRates(ctx context.Context, start, end time.Time, averageRange time.Duration) (models.OverallDataRates, error) {
	args := m.Called(ctx, start, end, averageRange)
	return args.Get(0).(models.OverallDataRates), args.Error(1)
}

func (m *MockBackend) DatabaseInfo(ctx context.Context) (models.DatabaseInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.DatabaseInfo), args.Error(1)
}

func (m *MockBackend) DeleteDeviceData(ctx context.Context, deviceID string) (models.StatusResponse, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(models.StatusResponse), args.Error(1)
}

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(backend Backend) *Service {
	s := NewService(backend, time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func TestTelemetrySumsPerTimestamp(t *testing.T) {
	backend := new(MockBackend)
	backend.On("TelemetryRates", mock.Anything, now.Add(-TelemetryRatesHistory), now, 10*time.Second).
		Return(models.OverallTelemetryRates{GroupedTelemetryRates: []models.DeviceTelemetryRates{
			{DeviceID: "a", TelemetryRates: []models.RateValue{
				{Value: 1, Timestamp: "2025-05-01T11:00:10Z"},
				{Value: 2, Timestamp: "2025-05-01T11:00:00Z"},
			}},
			{DeviceID: "b", TelemetryRates: []models.RateValue{
				{Value: 3, Timestamp: "2025-05-01T11:00:00Z"},
			}},
		}}, nil)

	series, err := newTestService(backend).Telemetry(context.Background(), 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, []models.SeriesPoint{
		{X: "11:00:00", Y: 5},
		{X: "11:00:10", Y: 1},
	}, series.Summary)
	assert.Equal(t, []models.SeriesPoint{{X: "11:00:10", Y: 1}, {X: "11:00:00", Y: 2}}, series.Devices["a"])
	assert.Len(t, series.Devices, 2)
	backend.AssertExpectations(t)
}

func TestTelemetryError(t *testing.T) {
	backend := new(MockBackend)
	backend.On("TelemetryRates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.OverallTelemetryRates{}, errors.New("unreachable"))

	_, err := newTestService(backend).Telemetry(context.Background(), time.Second)
	assert.EqualError(t, err, "unreachable")
}

func TestDataRatesSummary(t *testing.T) {
	backend := new(MockBackend)
	backend.On("DataRates", mock.Anything, now.Add(-30*time.Second), now, 30*time.Second).
		Return(models.OverallDataRates{GroupedDataRates: []models.DeviceDataRates{
			{DeviceID: "a", DataRates: []models.RateValue{{Value: 100, Timestamp: "t2"}, {Value: 5, Timestamp: "t1"}}},
			{DeviceID: "b", DataRates: []models.RateValue{{Value: 50, Timestamp: "t2"}}},
		}}, nil)

	summary, err := newTestService(backend).DataRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DeviceDataRates{
		DeviceID:  SummaryDeviceID,
		DataRates: []models.RateValue{{Value: 5, Timestamp: "t1"}, {Value: 150, Timestamp: "t2"}},
	}, summary)
}

func TestAggregateEmpty(t *testing.T) {
	summary := AggregateDataRates(models.OverallDataRates{})
	assert.Empty(t, summary.DataRates)
	assert.NotNil(t, summary.DataRates)
}

func TestDatabaseHumanSize(t *testing.T) {
	backend := new(MockBackend)
	backend.On("DatabaseInfo", mock.Anything).
		Return(models.DatabaseInfo{OldestTimestamp: "2025-04-01T00:00:00Z", StorageSize: 2_500_000}, nil)

	info, err := newTestService(backend).Database(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.5 MB", info.StorageSizeHuman)
	assert.Equal(t, int64(2_500_000), info.StorageSize)
}

func TestClockKeepsUnparsableTimestamp(t *testing.T) {
	s := newTestService(new(MockBackend))
	assert.Equal(t, "garbage", s.clock("garbage"))
	assert.Equal(t, "09:05:07", s.clock("2025-05-01T09:05:07.250Z"))
}
