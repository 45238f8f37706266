package models

// Point - точка на входном кадре модели (в пикселях)
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ParameterState - канонические параметры детекции, которыми управляет оператор
type ParameterState struct {
	ModelID            string  `json:"model_id"`
	StartPoint         Point   `json:"start_point"` // top_left зоны
	EndPoint           Point   `json:"end_point"`   // bottom_right зоны
	DetectionThreshold float64 `json:"detection_threshold"`
	OverlapThreshold   float64 `json:"overlap_threshold"`
	UploadInterval     float64 `json:"upload_interval"` // секунды
	EdgeFilterFlag     bool    `json:"edge_filter_flag"`
	SendImageFlag      bool    `json:"send_image_flag"`
	InputWidth         int     `json:"input_width"`
	InputHeight        int     `json:"input_height"`
}

// DefaultParameterState возвращает состояние после сброса устройства
func DefaultParameterState() ParameterState {
	return ParameterState{
		ModelID:            DefaultModelID,
		DetectionThreshold: DefaultDetectionThreshold,
		OverlapThreshold:   DefaultOverlapThreshold,
		UploadInterval:     DefaultUploadInterval,
		EdgeFilterFlag:     DefaultEdgeFilterFlag,
		SendImageFlag:      DefaultSendImageFlag,
		InputWidth:         CanvasMaxWidth,
		InputHeight:        CanvasMaxHeight,
	}
}

// NormalizeZone приводит зону к виду top-left / bottom-right
func (p *ParameterState) NormalizeZone() {
	left, right := minMax(p.StartPoint.X, p.EndPoint.X)
	top, bottom := minMax(p.StartPoint.Y, p.EndPoint.Y)
	p.StartPoint = Point{X: left, Y: top}
	p.EndPoint = Point{X: right, Y: bottom}
}

// ClampPoint ограничивает точку прямоугольником [0,InputWidth]x[0,InputHeight]
func (p *ParameterState) ClampPoint(pt Point) Point {
	return Point{
		X: clampInt(pt.X, 0, p.InputWidth),
		Y: clampInt(pt.Y, 0, p.InputHeight),
	}
}

func minMax(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ============ DEVICES ============

// Device - устройство из консоли
type Device struct {
	DeviceID        string   `json:"device_id"`
	DeviceName      string   `json:"device_name"`
	ConnectionState string   `json:"connection_state"`
	Models          []string `json:"models,omitempty"`
	Application     []string `json:"application,omitempty"`
	InferenceStatus string   `json:"inference_status,omitempty"`
}

// DeviceList - ответ GET devices/
type DeviceList struct {
	Devices []Device `json:"devices"`
}

// Состояния подключения устройства
const (
	ConnectionStateConnected    = "Connected"
	ConnectionStateDisconnected = "Disconnected"
)

// ============ CONSOLE ============

// ConsoleType - версия онлайн-консоли
type ConsoleType string

const (
	ConsoleTypeNone     ConsoleType = "None"
	ConsoleTypeOnlineV1 ConsoleType = "ONLINE V1"
	ConsoleTypeOnlineV2 ConsoleType = "ONLINE V2"
)

// Valid проверяет что тип консоли известен
func (t ConsoleType) Valid() bool {
	return t == ConsoleTypeOnlineV1 || t == ConsoleTypeOnlineV2
}

// ConsoleSettings - учетные данные подключения к консоли
type ConsoleSettings struct {
	ConsoleEndpoint             string `db:"console_endpoint" json:"console_endpoint"`
	PortalAuthorizationEndpoint string `db:"portal_authorization_endpoint" json:"portal_authorization_endpoint"`
	ClientID                    string `db:"client_id" json:"client_id"`
	ClientSecret                string `db:"client_secret" json:"client_secret"`
}

// ClientTypeRequest - тело PUT client/
type ClientTypeRequest struct {
	ClientType ConsoleType `json:"client_type"`
}

// LoginRequest - запрос на подключение к консоли
type LoginRequest struct {
	ConsoleType ConsoleType     `json:"console_type" binding:"required"`
	Settings    ConsoleSettings `json:"settings"`
}

// StatusResponse - стандартный ответ бэкенда
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse - стандартный ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}
