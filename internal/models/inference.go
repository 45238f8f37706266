package models

// BoundingBox - рамка объекта
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// DetectedObject - один объект из результата инференса
type DetectedObject struct {
	ClassID     int         `json:"class_id"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Score       float64     `json:"score"`
	ZoneFlag    bool        `json:"zone_flag"` // объект внутри зоны
}

// ObjectDetectionData - список детекций кадра
type ObjectDetectionData struct {
	ObjectDetectionList []DetectedObject `json:"object_detection_list"`
}

// Inference - корень результата инференса
type Inference struct {
	Perception ObjectDetectionData `json:"perception"`
}

// EmptyInference - инференс без детекций
func EmptyInference() Inference {
	return Inference{Perception: ObjectDetectionData{ObjectDetectionList: []DetectedObject{}}}
}

// StreamFrame - кадр из потока processing/ws
type StreamFrame struct {
	Inference Inference `json:"inference"`
	Timestamp string    `json:"timestamp"`
	Image     string    `json:"image"` // base64, может быть пустым
	DeviceID  string    `json:"deviceId"`
}

// StatsData - точка телеметрии: время и число объектов в зоне
type StatsData struct {
	Timestamp          string  `json:"timestamp"` // YYYYMMDDHHMMSSmmm
	NumberOfDetections float64 `json:"number_of_detections"`
}

// ObjectCount - последний счетчик объектов устройства
type ObjectCount struct {
	ObjectCount       *int   `json:"object_count"`
	ObjectCountInZone *int   `json:"object_count_in_zone"`
	Timestamp         string `json:"timestamp"`
}

// ============ HEALTH ============

// RateValue - значение частоты в момент времени
type RateValue struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// DeviceTelemetryRates - частота телеметрии одного устройства
type DeviceTelemetryRates struct {
	DeviceID       string      `json:"device_id"`
	TelemetryRates []RateValue `json:"telemetry_rates"`
}

// OverallTelemetryRates - ответ health/telemetry_rates
type OverallTelemetryRates struct {
	GroupedTelemetryRates []DeviceTelemetryRates `json:"grouped_telemetry_rates"`
}

// DeviceDataRates - частота данных одного устройства
type DeviceDataRates struct {
	DeviceID  string      `json:"device_id"`
	DataRates []RateValue `json:"data_rates"`
}

// OverallDataRates - ответ health/data_rates
type OverallDataRates struct {
	GroupedDataRates []DeviceDataRates `json:"grouped_data_rates"`
}

// DatabaseInfo - ответ health/database_info
type DatabaseInfo struct {
	OldestTimestamp string `json:"oldest_timestamp"`
	StorageSize     int64  `json:"storage_size"`
}

// SeriesPoint - точка графика (время HH:MM:SS и значение)
type SeriesPoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}
