package configuration

import (
	"encoding/json"
	"regexp"

	"zone-detection-console/internal/models"

	"github.com/google/uuid"
)

// DefaultCommandName - команда, которую создает консоль для нового устройства
const DefaultCommandName = "StartUploadInferenceData"

var modelIDPattern = regexp.MustCompile(`\((\d+)\)`)

// NewCommandFileName генерирует имя командного файла
func NewCommandFileName() string {
	return uuid.NewString() + ".json"
}

// DefaultConfigurationV1 - командный файл, который привязывается к устройству без конфигурации
func DefaultConfigurationV1(fileName string) *ConfigurationV1 {
	return &ConfigurationV1{
		FileName: fileName,
		Commands: []Command{{
			CommandName: DefaultCommandName,
			Parameters: CommandParameters{
				Mode: ptr(1),
				PPLParameter: &PPLParameter{
					InputWidth:          ptr(models.DefaultInputWidth),
					InputHeight:         ptr(models.DefaultInputHeight),
					MaxDetections:       ptr(models.DefaultMaxDetections),
					DNNOutputDetections: ptr(models.DefaultDNNOutputDetections),
					SendIntervalMs:      ptr(models.DefaultSendIntervalMs),
				},
			},
		}},
	}
}

// EmptyConfiguration - конфигурация до загрузки с устройства
func EmptyConfiguration() *ConfigurationV1 {
	return &ConfigurationV1{FileName: "none", Commands: []Command{}}
}

// defaultCustomSettings - custom_settings по умолчанию; bundle id берется из символов 6..12 id модели
func defaultCustomSettings(modelID string) *CustomSettings {
	return &CustomSettings{
		AIModels: &AIModels{
			Detection: &Detection{
				AIModelBundleID: ptr(substring(modelID, 6, 12)),
				Parameters:      defaultDetectionParameters(),
			},
		},
		Area: &Area{
			Coordinates: &Coordinates{
				Left:   ptr(0.0),
				Top:    ptr(0.0),
				Right:  ptr(480.0),
				Bottom: ptr(480.0),
			},
			Overlap: ptr(0.5),
			ClassID: json.RawMessage(`[]`),
		},
		MetadataSettings: &MetadataSettings{Format: ptr(0)},
	}
}

func defaultDetectionParameters() *DetectionParameters {
	return &DetectionParameters{
		MaxDetections:     ptr(10),
		Threshold:         ptr(0.3),
		InputWidth:        ptr(480),
		InputHeight:       ptr(480),
		BBoxOrder:         ptr("xyxy"),
		BBoxNormalization: ptr(false),
		ClassScoreOrder:   ptr("score_cls"),
	}
}

// FillInMissingValuesWithDefault подставляет блоки по умолчанию вместо отсутствующих
// ai_models, detection, parameters, area и metadata_settings.
// Возвращает true, если что-то было подставлено и конфигурацию нужно отправить на устройство.
func FillInMissingValuesWithDefault(cfg *ConfigurationV2, modelID string) bool {
	defaults := defaultCustomSettings(modelID)
	custom := cfg.EdgeApp.CustomSettings

	if custom == nil || custom.AIModels == nil {
		cfg.EdgeApp.CustomSettings = defaults
		return true
	}

	updated := false
	switch {
	case custom.AIModels.Detection == nil:
		custom.AIModels = defaults.AIModels
		updated = true
	case custom.AIModels.Detection.Parameters == nil:
		custom.AIModels.Detection.Parameters = defaults.AIModels.Detection.Parameters
		updated = true
	}
	if custom.Area == nil {
		custom.Area = defaults.Area
		updated = true
	}
	if custom.MetadataSettings == nil {
		custom.MetadataSettings = defaults.MetadataSettings
		updated = true
	}
	return updated
}

// ExtractModelID достает цифры в скобках: "detector (000123)" -> "000123".
// Без совпадения возвращает nil, такой bundle id уходит на устройство как null.
func ExtractModelID(modelID string) *string {
	match := modelIDPattern.FindStringSubmatch(modelID)
	if match == nil {
		return nil
	}
	return &match[1]
}

// SetBundleID записывает id модели в detection, если custom_settings есть
func SetBundleID(cfg *ConfigurationV2, modelID string) {
	custom := cfg.EdgeApp.CustomSettings
	if custom == nil || custom.AIModels == nil || custom.AIModels.Detection == nil {
		return
	}
	custom.AIModels.Detection.AIModelBundleID = ExtractModelID(modelID)
}

// substring режет по символам, а не по байтам
func substring(s string, from, to int) string {
	runes := []rune(s)
	if from > len(runes) {
		return ""
	}
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to])
}
