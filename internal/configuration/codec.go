package configuration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/models"

	"go.uber.org/zap"
)

// ReferenceFrameRate - опорная частота кадров для перевода frame_rate в секунды
const ReferenceFrameRate = 30

// Decode разбирает JSON конфигурации. SchemaAuto выбирает вариант по ключу edge_app,
// явная версия, не совпадающая с содержимым, - ошибка ErrWrongFormat.
func Decode(raw []byte, version SchemaVersion) (Configuration, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: ожидался объект", ErrInvalidJSON)
	}

	edgeApp, isV2 := top["edge_app"]
	switch {
	case version == SchemaV1 && isV2, version == SchemaV2 && !isV2:
		return nil, ErrWrongFormat
	}

	if isV2 {
		if bytes.Equal(bytes.TrimSpace(edgeApp), []byte("null")) {
			return nil, fmt.Errorf("%w: edge_app", ErrMissingPath)
		}
		var cfg ConfigurationV2
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора конфигурации V2: %w", err)
		}
		return &cfg, nil
	}

	if commands, ok := top["commands"]; !ok || bytes.Equal(bytes.TrimSpace(commands), []byte("null")) {
		return nil, fmt.Errorf("%w: commands", ErrMissingPath)
	}
	var cfg ConfigurationV1
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации V1: %w", err)
	}
	return &cfg, nil
}

// Encode сериализует конфигурацию для отправки на бэкенд
func Encode(cfg Configuration) ([]byte, error) {
	switch c := cfg.(type) {
	case *ConfigurationV1:
		return json.Marshal(c)
	case *ConfigurationV2:
		return json.Marshal(c)
	default:
		return nil, fmt.Errorf("неизвестный тип конфигурации %T", cfg)
	}
}

// FrameRateToTimeBetweenUpdates переводит frame_rate num/denom в секунды между выгрузками.
// denom <= 0 считается отсутствующим. Переполнение прижимается к ±MaxFloat64.
func FrameRateToTimeBetweenUpdates(num, denom float64) float64 {
	if denom > 0 {
		return finite(num / denom / ReferenceFrameRate)
	}
	return finite(num / ReferenceFrameRate)
}

// TimeBetweenUpdatesToFrameRate - обратное преобразование в числитель frame_rate
func TimeBetweenUpdatesToFrameRate(interval, denom float64) float64 {
	if denom > 0 {
		return finite(interval * denom * ReferenceFrameRate)
	}
	return finite(interval * ReferenceFrameRate)
}

// finite заменяет NaN и бесконечность значениями, которые кодируются в JSON
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	default:
		return v
	}
}

// ============ PARSE ============

// Parse извлекает параметры из конфигурации. ModelID не заполняется:
// модель выбирает оператор.
func Parse(cfg Configuration) models.ParameterState {
	switch c := cfg.(type) {
	case *ConfigurationV1:
		return parseV1(c)
	case *ConfigurationV2:
		return parseV2(c)
	default:
		return parseDefaults()
	}
}

func parseDefaults() models.ParameterState {
	state := models.DefaultParameterState()
	state.InputWidth = models.DefaultInputWidth
	state.InputHeight = models.DefaultInputHeight
	return state
}

func parseV1(c *ConfigurationV1) models.ParameterState {
	state := parseDefaults()

	for _, cmd := range c.Commands {
		params := cmd.Parameters
		state.SendImageFlag = params.Mode == nil || *params.Mode != 2
		if params.UploadInterval != nil && *params.UploadInterval != 0 {
			state.UploadInterval = clampOrDefault(*params.UploadInterval,
				models.MinUploadInterval, models.MaxUploadInterval, models.DefaultUploadInterval)
		}

		ppl := params.PPLParameter
		if ppl == nil {
			continue
		}
		state.EdgeFilterFlag = ppl.Mode != nil && *ppl.Mode == 1
		if ppl.InputWidth != nil && *ppl.InputWidth != 0 {
			state.InputWidth = *ppl.InputWidth
		}
		if ppl.InputHeight != nil && *ppl.InputHeight != 0 {
			state.InputHeight = *ppl.InputHeight
		}

		zone := ppl.Zone
		if zone == nil {
			zone = &Zone{}
		}
		state.StartPoint = models.Point{
			X: coordinateOr(zone.TopLeftX, state.InputWidth, 0),
			Y: coordinateOr(zone.TopLeftY, state.InputHeight, 0),
		}
		state.EndPoint = models.Point{
			X: coordinateOr(zone.BottomRightX, state.InputWidth, state.InputWidth),
			Y: coordinateOr(zone.BottomRightY, state.InputHeight, state.InputHeight),
		}

		state.OverlapThreshold = models.DefaultOverlapThreshold
		state.DetectionThreshold = models.DefaultDetectionThreshold
		if t := ppl.Threshold; t != nil {
			state.OverlapThreshold = clampOrDefault(valueOr(t.IoU, math.NaN()),
				models.MinOverlapThreshold, models.MaxOverlapThreshold, models.DefaultOverlapThreshold)
			state.DetectionThreshold = clampOrDefault(valueOr(t.Score, math.NaN()),
				models.MinDetectionThreshold, models.MaxDetectionThreshold, models.DefaultDetectionThreshold)
		}
	}
	return state
}

// parseV2 идет по вложенным путям по порядку и останавливается на первом
// отсутствующем ключе, возвращая уже собранное состояние без перепроверки
func parseV2(c *ConfigurationV2) models.ParameterState {
	state := parseDefaults()
	common := c.EdgeApp.CommonSettings
	custom := c.EdgeApp.CustomSettings

	detectionParams := func() (*DetectionParameters, error) {
		if custom.AIModels == nil || custom.AIModels.Detection == nil || custom.AIModels.Detection.Parameters == nil {
			return nil, fmt.Errorf("%w: custom_settings.ai_models.detection.parameters", ErrMissingPath)
		}
		return custom.AIModels.Detection.Parameters, nil
	}
	area := func() (*Area, error) {
		if custom.Area == nil {
			return nil, fmt.Errorf("%w: custom_settings.area", ErrMissingPath)
		}
		return custom.Area, nil
	}

	steps := []func() error{
		func() error {
			if common == nil {
				state.SendImageFlag = false
				return nil
			}
			if common.PortSettings == nil || common.PortSettings.InputTensor == nil {
				return fmt.Errorf("%w: common_settings.port_settings.input_tensor", ErrMissingPath)
			}
			state.SendImageFlag = valueOr(common.PortSettings.InputTensor.Enabled, false)
			return nil
		},
		func() error {
			if custom == nil {
				return nil
			}
			params, err := detectionParams()
			if err != nil {
				return err
			}
			state.InputWidth = valueOr(params.InputWidth, models.DefaultInputWidth)
			state.InputHeight = valueOr(params.InputHeight, models.DefaultInputHeight)
			return nil
		},
		func() error {
			if common == nil {
				return nil
			}
			if common.PQSettings == nil || common.PQSettings.FrameRate == nil || common.PQSettings.FrameRate.Num == nil {
				return fmt.Errorf("%w: common_settings.pq_settings.frame_rate.num", ErrMissingPath)
			}
			fr := common.PQSettings.FrameRate
			state.UploadInterval = FrameRateToTimeBetweenUpdates(*fr.Num, valueOr(fr.Denom, 0))
			return nil
		},
		func() error {
			if custom == nil {
				return nil
			}
			a, err := area()
			if err != nil {
				return err
			}
			co := a.Coordinates
			if co == nil || co.Left == nil || co.Top == nil || co.Right == nil || co.Bottom == nil {
				return fmt.Errorf("%w: custom_settings.area.coordinates", ErrMissingPath)
			}
			state.StartPoint = models.Point{X: roundInt(*co.Left), Y: roundInt(*co.Top)}
			state.EndPoint = models.Point{X: roundInt(*co.Right), Y: roundInt(*co.Bottom)}
			return nil
		},
		func() error {
			state.EdgeFilterFlag = false
			if custom == nil {
				return nil
			}
			if custom.MetadataSettings == nil {
				return fmt.Errorf("%w: custom_settings.metadata_settings", ErrMissingPath)
			}
			state.EdgeFilterFlag = valueOr(custom.MetadataSettings.Format, 0) == 1
			return nil
		},
		func() error {
			if custom == nil {
				return nil
			}
			a, err := area()
			if err != nil {
				return err
			}
			if a.Overlap == nil {
				return fmt.Errorf("%w: custom_settings.area.overlap", ErrMissingPath)
			}
			state.OverlapThreshold = *a.Overlap
			return nil
		},
		func() error {
			if custom == nil {
				return nil
			}
			params, err := detectionParams()
			if err != nil {
				return err
			}
			if params.Threshold == nil {
				return fmt.Errorf("%w: custom_settings.ai_models.detection.parameters.threshold", ErrMissingPath)
			}
			state.DetectionThreshold = *params.Threshold
			return nil
		},
	}

	for _, step := range steps {
		if err := step(); err != nil {
			logger.Log().Warn("ошибка разбора конфигурации V2", zap.Error(err))
			break
		}
	}
	return state
}

func clampOrDefault(v, lo, hi, fallback float64) float64 {
	switch {
	case math.IsNaN(v):
		return fallback
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// coordinateOr возвращает координату, если она в [0, limit], иначе fallback
func coordinateOr(v *float64, limit, fallback int) int {
	if v == nil || math.IsNaN(*v) || *v < 0 || *v > float64(limit) {
		return fallback
	}
	return roundInt(*v)
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

// ============ MERGE ============

// Merge переносит параметры в копию конфигурации; исходная не меняется
func Merge(state models.ParameterState, cfg Configuration) (Configuration, error) {
	switch c := cfg.(type) {
	case *ConfigurationV1:
		return mergeV1(state, c)
	case *ConfigurationV2:
		return mergeV2(state, c)
	default:
		return nil, fmt.Errorf("неизвестный тип конфигурации %T", cfg)
	}
}

func mergeV1(state models.ParameterState, c *ConfigurationV1) (*ConfigurationV1, error) {
	out, err := deepCopy(c)
	if err != nil {
		return nil, err
	}
	for i := range out.Commands {
		cmd := &out.Commands[i]
		cmd.Parameters.ModelId = ptr(state.ModelID)
		cmd.Parameters.Mode = ptr(modeFor(state.SendImageFlag))
		cmd.Parameters.UploadInterval = ptr(state.UploadInterval)

		if ppl := cmd.Parameters.PPLParameter; ppl != nil {
			ppl.Mode = ptr(boolToInt(state.EdgeFilterFlag))
			ppl.Zone = &Zone{
				TopLeftX:     ptr(float64(state.StartPoint.X)),
				TopLeftY:     ptr(float64(state.StartPoint.Y)),
				BottomRightX: ptr(float64(state.EndPoint.X)),
				BottomRightY: ptr(float64(state.EndPoint.Y)),
			}
			ppl.Threshold = &Threshold{
				IoU:   ptr(state.OverlapThreshold),
				Score: ptr(state.DetectionThreshold),
			}
		}
		out.Commands[i] = withoutNulls(*cmd)
	}
	return out, nil
}

// withoutNulls собирает команду заново только из определенных полей
func withoutNulls(cmd Command) Command {
	data, err := json.Marshal(cmd)
	if err != nil {
		return cmd
	}
	if data, err = dropNulls(data); err != nil {
		return cmd
	}
	var out Command
	if err := json.Unmarshal(data, &out); err != nil {
		return cmd
	}
	return out
}

// mergeV2 переписывает только существующие ветки common_settings/custom_settings.
// Отсутствующая ветка пропускается: после загрузки custom_settings заполнен значениями по умолчанию.
func mergeV2(state models.ParameterState, c *ConfigurationV2) (*ConfigurationV2, error) {
	out, err := deepCopy(c)
	if err != nil {
		return nil, err
	}

	if common := out.EdgeApp.CommonSettings; common != nil {
		if common.PortSettings == nil {
			common.PortSettings = &PortSettings{}
		}
		if common.PortSettings.InputTensor == nil {
			common.PortSettings.InputTensor = &InputTensor{}
		}
		common.PortSettings.InputTensor.Enabled = ptr(state.SendImageFlag)

		if common.PQSettings == nil {
			common.PQSettings = &PQSettings{}
		}
		if common.PQSettings.FrameRate == nil {
			common.PQSettings.FrameRate = &FrameRate{}
		}
		fr := common.PQSettings.FrameRate
		fr.Num = ptr(TimeBetweenUpdatesToFrameRate(state.UploadInterval, valueOr(fr.Denom, 0)))
	}

	if custom := out.EdgeApp.CustomSettings; custom != nil {
		if custom.Area == nil {
			custom.Area = &Area{}
		}
		if custom.Area.Coordinates == nil {
			custom.Area.Coordinates = &Coordinates{}
		}
		co := custom.Area.Coordinates
		co.Left = ptr(float64(state.StartPoint.X))
		co.Top = ptr(float64(state.StartPoint.Y))
		co.Right = ptr(float64(state.EndPoint.X))
		co.Bottom = ptr(float64(state.EndPoint.Y))
		custom.Area.Overlap = ptr(state.OverlapThreshold)

		if custom.MetadataSettings == nil {
			custom.MetadataSettings = &MetadataSettings{}
		}
		custom.MetadataSettings.Format = ptr(boolToInt(state.EdgeFilterFlag))

		if custom.AIModels == nil {
			custom.AIModels = &AIModels{}
		}
		if custom.AIModels.Detection == nil {
			custom.AIModels.Detection = &Detection{}
		}
		if custom.AIModels.Detection.Parameters == nil {
			custom.AIModels.Detection.Parameters = &DetectionParameters{}
		}
		custom.AIModels.Detection.Parameters.Threshold = ptr(state.DetectionThreshold)
	}
	return out, nil
}

func modeFor(sendImage bool) int {
	if sendImage {
		return 1
	}
	return 2
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
