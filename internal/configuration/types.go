package configuration

import "encoding/json"

// SchemaVersion - версия схемы конфигурации устройства
type SchemaVersion int

const (
	// SchemaAuto определяет версию по наличию ключа edge_app
	SchemaAuto SchemaVersion = iota
	SchemaV1
	SchemaV2
)

func (v SchemaVersion) String() string {
	switch v {
	case SchemaV1:
		return "v1"
	case SchemaV2:
		return "v2"
	default:
		return "auto"
	}
}

// Configuration - конфигурация устройства: *ConfigurationV1 или *ConfigurationV2.
// Других реализаций нет, все потребители делают полный type switch.
type Configuration interface {
	Version() SchemaVersion
	sealed()
}

// ============ V1: командный файл ============

// ConfigurationV1 - командный файл консоли первой версии
type ConfigurationV1 struct {
	FileName string    `json:"file_name"`
	Commands []Command `json:"commands"`
	Extra    Extra     `json:"-"`
}

func (*ConfigurationV1) Version() SchemaVersion { return SchemaV1 }
func (*ConfigurationV1) sealed()                {}

// Command - команда командного файла
type Command struct {
	CommandName string            `json:"command_name"`
	Parameters  CommandParameters `json:"parameters"`
	Extra       Extra             `json:"-"`
}

// CommandParameters - параметры команды. Mode: 1 - с изображением, 2 - без.
type CommandParameters struct {
	Mode                  *int          `json:"Mode,omitempty"`
	UploadMethod          *string       `json:"UploadMethod,omitempty"`
	FileFormat            *string       `json:"FileFormat,omitempty"`
	UploadMethodIR        *string       `json:"UploadMethodIR,omitempty"`
	NumberOfImages        *int          `json:"NumberOfImages,omitempty"`
	UploadInterval        *float64      `json:"UploadInterval,omitempty"`
	MaxDetectionsPerFrame *int          `json:"MaxDetectionsPerFrame,omitempty"`
	ModelId               *string       `json:"ModelId,omitempty"`
	PPLParameter          *PPLParameter `json:"PPLParameter,omitempty"`
	Extra                 Extra         `json:"-"`
}

// PPLParameter - параметры пайплайна zone detection на устройстве
type PPLParameter struct {
	Header              json.RawMessage `json:"header,omitempty"`
	DNNOutputDetections *int            `json:"dnn_output_detections,omitempty"`
	MaxDetections       *int            `json:"max_detections,omitempty"`
	Mode                *int            `json:"mode,omitempty"` // 1 - фильтрация по IoU на устройстве
	Zone                *Zone           `json:"zone,omitempty"`
	Threshold           *Threshold      `json:"threshold,omitempty"`
	InputWidth          *int            `json:"input_width,omitempty"`
	InputHeight         *int            `json:"input_height,omitempty"`
	SendIntervalMs      *int            `json:"send_interval_ms,omitempty"`
	Extra               Extra           `json:"-"`
}

// Zone - зона в координатах входного тензора
type Zone struct {
	TopLeftX     *float64 `json:"top_left_x,omitempty"`
	TopLeftY     *float64 `json:"top_left_y,omitempty"`
	BottomRightX *float64 `json:"bottom_right_x,omitempty"`
	BottomRightY *float64 `json:"bottom_right_y,omitempty"`
	Extra        Extra    `json:"-"`
}

// Threshold - пороги: iou соответствует overlap, score - детекции
type Threshold struct {
	IoU   *float64 `json:"iou,omitempty"`
	Score *float64 `json:"score,omitempty"`
	Extra Extra    `json:"-"`
}

// ============ V2: edge_app ============

// ConfigurationV2 - конфигурация edge-приложения консоли второй версии
type ConfigurationV2 struct {
	EdgeApp EdgeApp `json:"edge_app"`
	Extra   Extra   `json:"-"`
}

func (*ConfigurationV2) Version() SchemaVersion { return SchemaV2 }
func (*ConfigurationV2) sealed()                {}

// EdgeApp - корень конфигурации V2
type EdgeApp struct {
	ResInfo        json.RawMessage `json:"res_info,omitempty"`
	CommonSettings *CommonSettings `json:"common_settings,omitempty"`
	CustomSettings *CustomSettings `json:"custom_settings,omitempty"`
	Extra          Extra           `json:"-"`
}

// CommonSettings - настройки устройства
type CommonSettings struct {
	ProcessState                *int            `json:"process_state,omitempty"`
	LogLevel                    *int            `json:"log_level,omitempty"`
	InferenceSettings           json.RawMessage `json:"inference_settings,omitempty"`
	PQSettings                  *PQSettings     `json:"pq_settings,omitempty"`
	PortSettings                *PortSettings   `json:"port_settings,omitempty"`
	CodecSettings               json.RawMessage `json:"codec_settings,omitempty"`
	NumberOfInferencePerMessage *int            `json:"number_of_inference_per_message,omitempty"`
	Extra                       Extra           `json:"-"`
}

// PQSettings - настройки качества изображения
type PQSettings struct {
	FrameRate *FrameRate `json:"frame_rate,omitempty"`
	Extra     Extra      `json:"-"`
}

// FrameRate - частота кадров дробью num/denom
type FrameRate struct {
	Num   *float64 `json:"num,omitempty"`
	Denom *float64 `json:"denom,omitempty"`
	Extra Extra    `json:"-"`
}

// PortSettings - порты выгрузки метаданных и входного тензора
type PortSettings struct {
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	InputTensor *InputTensor    `json:"input_tensor,omitempty"`
	Extra       Extra           `json:"-"`
}

// InputTensor - выгрузка изображения; path, method и пр. остаются в Extra
type InputTensor struct {
	Enabled *bool `json:"enabled,omitempty"`
	Extra   Extra `json:"-"`
}

// CustomSettings - настройки приложения zone detection
type CustomSettings struct {
	AIModels         *AIModels         `json:"ai_models,omitempty"`
	Area             *Area             `json:"area,omitempty"`
	MetadataSettings *MetadataSettings `json:"metadata_settings,omitempty"`
	ResInfo          json.RawMessage   `json:"res_info,omitempty"`
	Extra            Extra             `json:"-"`
}

// AIModels - модели приложения
type AIModels struct {
	Detection *Detection `json:"detection,omitempty"`
	Extra     Extra      `json:"-"`
}

// Detection - модель детекции. Пустой bundle id сериализуется как null.
type Detection struct {
	AIModelBundleID *string              `json:"ai_model_bundle_id"`
	Parameters      *DetectionParameters `json:"parameters,omitempty"`
	Extra           Extra                `json:"-"`
}

// DetectionParameters - параметры постобработки детектора
type DetectionParameters struct {
	MaxDetections     *int     `json:"max_detections,omitempty"`
	Threshold         *float64 `json:"threshold,omitempty"`
	InputWidth        *int     `json:"input_width,omitempty"`
	InputHeight       *int     `json:"input_height,omitempty"`
	BBoxOrder         *string  `json:"bbox_order,omitempty"`
	BBoxNormalization *bool    `json:"bbox_normalization,omitempty"`
	ClassScoreOrder   *string  `json:"class_score_order,omitempty"`
	Extra             Extra    `json:"-"`
}

// Area - зона и порог перекрытия
type Area struct {
	Coordinates *Coordinates    `json:"coordinates,omitempty"`
	Overlap     *float64        `json:"overlap,omitempty"`
	ClassID     json.RawMessage `json:"class_id,omitempty"`
	Extra       Extra           `json:"-"`
}

// Coordinates - прямоугольник зоны
type Coordinates struct {
	Left   *float64 `json:"left,omitempty"`
	Top    *float64 `json:"top,omitempty"`
	Right  *float64 `json:"right,omitempty"`
	Bottom *float64 `json:"bottom,omitempty"`
	Extra  Extra    `json:"-"`
}

// MetadataSettings - формат метаданных: 1 - фильтрация на устройстве
type MetadataSettings struct {
	Format *int  `json:"format,omitempty"`
	Extra  Extra `json:"-"`
}
