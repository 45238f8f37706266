package console_client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zone-detection-console/internal/configuration"
	"zone-detection-console/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", 5*time.Second)
}

func TestListDevicesSortsConnectedFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/", r.URL.Path)
		io.WriteString(w, `{"devices": [
			{"device_id": "1", "device_name": "zeta", "connection_state": "Disconnected"},
			{"device_id": "2", "device_name": "beta", "connection_state": "Connected"},
			{"device_id": "3", "device_name": "alpha", "connection_state": "Disconnected"},
			{"device_id": "4", "device_name": "gamma", "connection_state": "Connected"}
		]}`)
	})

	devices, err := client.ListDevices(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.DeviceID)
	}
	assert.Equal(t, []string{"2", "4", "3", "1"}, ids)
}

func TestGetDevice(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/devices/missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail": "device not found"}`)
			return
		}
		io.WriteString(w, `{"device_id": "dev-1", "device_name": "cam", "connection_state": "Connected", "models": ["Detector (0312)"]}`)
	})

	empty, err := client.GetDevice(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.Device{ConnectionState: models.ConnectionStateDisconnected}, empty)
	assert.Equal(t, 0, calls)

	device, err := client.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Detector (0312)"}, device.Models)

	_, err = client.GetDevice(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "device not found", apiErr.Detail)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestGetConnectionFillsPlaceholders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"console_endpoint": "https://console", "client_id": "__client_id__"}`)
	})

	settings, err := client.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ConsoleSettings{
		ConsoleEndpoint:             "https://console",
		PortalAuthorizationEndpoint: NoPortalAuthorizationEndpoint,
		ClientID:                    "__client_id__",
		ClientSecret:                NoClientSecret,
	}, settings)
}

func TestPutClientType(t *testing.T) {
	var body models.ClientTypeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/client/", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"status": "ok"}`)
	})

	require.NoError(t, client.PutClientType(context.Background(), models.ConsoleTypeOnlineV2))
	assert.Equal(t, models.ConsoleTypeOnlineV2, body.ClientType)
}

func TestConfigurationRoundTrip(t *testing.T) {
	var patched map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/configurations/dev-1", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, `{"file_name": "f.json", "commands": [{"command_name": "c", "parameters": {"Mode": 1}}]}`)
		case http.MethodPatch:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
			io.WriteString(w, `{"status": "ok"}`)
		}
	})

	cfg, err := client.GetConfiguration(context.Background(), "dev-1", configuration.SchemaV1)
	require.NoError(t, err)
	require.IsType(t, &configuration.ConfigurationV1{}, cfg)

	_, err = client.GetConfiguration(context.Background(), "dev-1", configuration.SchemaV2)
	assert.ErrorIs(t, err, configuration.ErrWrongFormat)

	require.NoError(t, client.PatchConfiguration(context.Background(), "dev-1", cfg))
	assert.Equal(t, "f.json", patched["file_name"])
}

func TestGetImageStripsQuotes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/processing/image/dev-1", r.URL.Path)
		io.WriteString(w, `"aGVsbG8="`)
	})

	image, err := client.GetImage(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", image)
}

func TestStartProcessingSendsReceiveImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/processing/start_processing/dev-1", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("receive_image"))
		io.WriteString(w, `{"status": "started"}`)
	})

	status, err := client.StartProcessing(context.Background(), "dev-1", false)
	require.NoError(t, err)
	assert.Equal(t, "started", status.Status)
}

func TestLastObjectCountToleratesGarbage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	})

	count, err := client.LastObjectCount(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Nil(t, count.ObjectCount)
	assert.NotEmpty(t, count.Timestamp)
}

func TestDataRatesQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "30000", q.Get("average_range"))
		assert.Equal(t, "2025-01-01T10:00:00.000Z", q.Get("start_time"))
		assert.Equal(t, "2025-01-01T10:00:30.000Z", q.Get("end_time"))
		io.WriteString(w, `{"grouped_data_rates": [{"device_id": "a", "data_rates": [{"value": 2, "timestamp": "t"}]}]}`)
	})

	end := time.Date(2025, 1, 1, 10, 0, 30, 0, time.UTC)
	rates, err := client.DataRates(context.Background(), end.Add(-DataRatesWindow), end, DataRatesWindow)
	require.NoError(t, err)
	require.Len(t, rates.GroupedDataRates, 1)
	assert.Equal(t, 2.0, rates.GroupedDataRates[0].DataRates[0].Value)
}

func TestUnreachableBackend(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)

	_, err := client.DatabaseInfo(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode)
}

func TestStreamDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/processing/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteJSON(models.StreamFrame{DeviceID: "dev-1", Timestamp: "20250101100000000"})
		// держим соединение до закрытия клиентом
		conn.ReadMessage()
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	frames := make(chan models.StreamFrame, 1)
	stream, err := client.OpenStream(context.Background(), func(f models.StreamFrame) { frames <- f })
	require.NoError(t, err)

	select {
	case frame := <-frames:
		assert.Equal(t, "dev-1", frame.DeviceID)
	case <-time.After(2 * time.Second):
		t.Fatal("кадр не получен")
	}

	stream.Close()
	select {
	case <-stream.Done():
	default:
		t.Fatal("чтение не завершено")
	}
}

func TestStreamURL(t *testing.T) {
	u, err := NewClient("https://backend.local/api/", time.Second).StreamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://backend.local/api/processing/ws", u)
}
