package models

import "time"

// Размеры холста по умолчанию
const (
	CanvasMaxWidth  = 640
	CanvasMaxHeight = 480
)

// Значения по умолчанию для входного тензора и PPL параметров
const (
	DefaultInputWidth          = 300
	DefaultInputHeight         = 300
	DefaultMaxDetections       = 5
	DefaultDNNOutputDetections = 50
	DefaultSendIntervalMs      = 0
	DefaultModelID             = ""
)

// Границы порогов и интервала выгрузки
const (
	MinDetectionThreshold     = 0.0
	DefaultDetectionThreshold = 0.5
	MaxDetectionThreshold     = 1.0

	MinOverlapThreshold     = 0.0
	DefaultOverlapThreshold = 0.5
	MaxOverlapThreshold     = 1.0

	MinUploadInterval     = 0.1 // секунды
	DefaultUploadInterval = 1.0
	MaxUploadInterval     = 600.0 // 10 минут
)

const (
	DefaultEdgeFilterFlag = false
	DefaultSendImageFlag  = true
)

// Параметры агрегации телеметрии
const (
	AveragingWindow      = 10 * time.Second
	HistoryTimeLength    = time.Hour
	RecentTelemetrySize  = 20
	MaxAverageSeriesSize = int(HistoryTimeLength / AveragingWindow)
)
