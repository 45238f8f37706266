package configuration

import (
	"fmt"
	"strings"

	"zone-detection-console/internal/models"
)

// ApplyEdit вливает конфигурацию, отредактированную вручную, в текущую.
// Возвращает новую конфигурацию и параметры, в которые перенесены изменения.
// При любой ошибке prev и state не меняются.
func ApplyEdit(prev Configuration, raw []byte, state models.ParameterState, deviceModels []string) (Configuration, models.ParameterState, error) {
	edited, err := Decode(raw, SchemaAuto)
	if err != nil {
		return nil, state, err
	}

	switch p := prev.(type) {
	case *ConfigurationV1:
		e, ok := edited.(*ConfigurationV1)
		if !ok {
			return nil, state, ErrWrongFormat
		}
		return applyEditV1(p, e, state, deviceModels)
	case *ConfigurationV2:
		e, ok := edited.(*ConfigurationV2)
		if !ok {
			return nil, state, ErrWrongFormat
		}
		return applyEditV2(p, e, state, deviceModels)
	default:
		return nil, state, fmt.Errorf("неизвестный тип конфигурации %T", prev)
	}
}

// ============ V1 ============

// passThroughV1 - поля команды, которые копируются из правки, если они были в исходной команде
var passThroughV1 = []func(dst, src *CommandParameters){
	func(dst, src *CommandParameters) {
		if dst.FileFormat != nil {
			dst.FileFormat = src.FileFormat
		}
	},
	func(dst, src *CommandParameters) {
		if dst.UploadMethod != nil {
			dst.UploadMethod = src.UploadMethod
		}
	},
	func(dst, src *CommandParameters) {
		if dst.UploadMethodIR != nil {
			dst.UploadMethodIR = src.UploadMethodIR
		}
	},
	func(dst, src *CommandParameters) {
		if dst.NumberOfImages != nil {
			dst.NumberOfImages = src.NumberOfImages
		}
	},
	func(dst, src *CommandParameters) {
		if dst.MaxDetectionsPerFrame != nil {
			dst.MaxDetectionsPerFrame = src.MaxDetectionsPerFrame
		}
	},
}

func applyEditV1(prev, edited *ConfigurationV1, state models.ParameterState, deviceModels []string) (Configuration, models.ParameterState, error) {
	// Новые параметры - из последней команды
	if len(edited.Commands) == 0 {
		return nil, state, ErrMissingPPLParameter
	}
	newParams := edited.Commands[len(edited.Commands)-1].Parameters
	if newParams.PPLParameter == nil {
		return nil, state, ErrMissingPPLParameter
	}
	if fields := validateV1(newParams, deviceModels); len(fields) > 0 {
		return nil, state, &ValidationError{Fields: fields}
	}

	out, err := deepCopy(prev)
	if err != nil {
		return nil, state, err
	}
	ppl := newParams.PPLParameter
	for i := range out.Commands {
		params := &out.Commands[i].Parameters

		if params.PPLParameter != nil {
			state.StartPoint = models.Point{X: roundInt(*ppl.Zone.TopLeftX), Y: roundInt(*ppl.Zone.TopLeftY)}
			state.EndPoint = models.Point{X: roundInt(*ppl.Zone.BottomRightX), Y: roundInt(*ppl.Zone.BottomRightY)}
			state.DetectionThreshold = *ppl.Threshold.Score
			state.OverlapThreshold = *ppl.Threshold.IoU
			if ppl.InputWidth != nil {
				state.InputWidth = *ppl.InputWidth
			}
			if ppl.InputHeight != nil {
				state.InputHeight = *ppl.InputHeight
			}
			pplCopy, err := deepCopy(ppl)
			if err != nil {
				return nil, state, err
			}
			params.PPLParameter = pplCopy
		}
		if params.ModelId != nil && *params.ModelId != "" {
			params.ModelId = newParams.ModelId
			state.ModelID = valueOr(newParams.ModelId, "")
		}
		if params.UploadInterval != nil && *params.UploadInterval != 0 {
			params.UploadInterval = newParams.UploadInterval
			if newParams.UploadInterval != nil {
				state.UploadInterval = *newParams.UploadInterval
			}
		}
		if params.Mode != nil && *params.Mode != 0 {
			params.Mode = newParams.Mode
			state.SendImageFlag = valueOr(newParams.Mode, 0) == 1
		}
		for _, copyField := range passThroughV1 {
			copyField(params, &newParams)
		}
	}
	return out, state, nil
}

func validateV1(params CommandParameters, deviceModels []string) []string {
	var fields []string
	if params.ModelId == nil || !contains(deviceModels, *params.ModelId) {
		fields = append(fields, "неизвестный ModelId")
	}

	ppl := params.PPLParameter
	width := valueOr(ppl.InputWidth, 0)
	height := valueOr(ppl.InputHeight, 0)
	if width < 0 {
		fields = append(fields, "PPLParameter.input_width не может быть < 0")
	}
	if height < 0 {
		fields = append(fields, "PPLParameter.input_height не может быть < 0")
	}

	if ppl.Zone == nil {
		fields = append(fields, "PPLParameter.zone отсутствует")
	} else {
		fields = appendOutOfBounds(fields, "zone.top_left_x", ppl.Zone.TopLeftX, float64(width))
		fields = appendOutOfBounds(fields, "zone.top_left_y", ppl.Zone.TopLeftY, float64(height))
		fields = appendOutOfBounds(fields, "zone.bottom_right_x", ppl.Zone.BottomRightX, float64(width))
		fields = appendOutOfBounds(fields, "zone.bottom_right_y", ppl.Zone.BottomRightY, float64(height))
	}

	if ppl.Threshold == nil {
		fields = append(fields, "PPLParameter.threshold отсутствует")
	} else {
		fields = appendOutOfBounds(fields, "threshold.score", ppl.Threshold.Score, models.MaxDetectionThreshold)
		fields = appendOutOfBounds(fields, "threshold.iou", ppl.Threshold.IoU, models.MaxOverlapThreshold)
	}

	if mode := valueOr(params.Mode, 0); mode < 0 || mode > 2 {
		fields = append(fields, "недопустимое значение Mode, допустимы: [0, 1, 2]")
	}
	return fields
}

// ============ V2 ============

func applyEditV2(prev, edited *ConfigurationV2, state models.ParameterState, deviceModels []string) (Configuration, models.ParameterState, error) {
	newCustom := edited.EdgeApp.CustomSettings
	if newCustom == nil || newCustom.AIModels == nil || newCustom.AIModels.Detection == nil ||
		newCustom.AIModels.Detection.Parameters == nil {
		return nil, state, ErrMissingDetectionParameters
	}
	if fields := validateV2(edited.EdgeApp, deviceModels); len(fields) > 0 {
		return nil, state, &ValidationError{Fields: fields}
	}

	newDetection := newCustom.AIModels.Detection
	newParams := newDetection.Parameters
	newCoordinates := newCustom.Area.Coordinates

	if prevCustom := prev.EdgeApp.CustomSettings; prevCustom != nil {
		var prevDetection *Detection
		var prevParams *DetectionParameters
		if prevCustom.AIModels != nil && prevCustom.AIModels.Detection != nil {
			prevDetection = prevCustom.AIModels.Detection
			prevParams = prevDetection.Parameters
		}
		if prevParams == nil {
			prevParams = &DetectionParameters{}
		}

		if prevDetection == nil || valueOr(prevDetection.AIModelBundleID, "") != valueOr(newDetection.AIModelBundleID, "") {
			state.ModelID = valueOr(newDetection.AIModelBundleID, "")
		}
		if !sameInt(prevParams.InputWidth, newParams.InputWidth) {
			state.InputWidth = valueOr(newParams.InputWidth, state.InputWidth)
		}
		if !sameInt(prevParams.InputHeight, newParams.InputHeight) {
			state.InputHeight = valueOr(newParams.InputHeight, state.InputHeight)
		}
		state.StartPoint = models.Point{X: roundInt(*newCoordinates.Left), Y: roundInt(*newCoordinates.Top)}
		state.EndPoint = models.Point{X: roundInt(*newCoordinates.Right), Y: roundInt(*newCoordinates.Bottom)}
		state.DetectionThreshold = *newParams.Threshold
		state.OverlapThreshold = *newCustom.Area.Overlap
	}

	newCommon := edited.EdgeApp.CommonSettings
	if prevCommon := prev.EdgeApp.CommonSettings; prevCommon != nil {
		if fr := frameRateOf(newCommon); fr != nil && fr.Num != nil {
			prevFr := frameRateOf(prevCommon)
			if prevFr == nil || !sameFloat(prevFr.Num, fr.Num) {
				state.UploadInterval = FrameRateToTimeBetweenUpdates(*fr.Num, valueOr(fr.Denom, 0))
			}
		}
		if enabled := inputTensorEnabled(newCommon); enabled != nil {
			if prevEnabled := inputTensorEnabled(prevCommon); prevEnabled == nil || *prevEnabled != *enabled {
				state.SendImageFlag = *enabled
			}
		}
	}

	out, err := deepCopy(prev)
	if err != nil {
		return nil, state, err
	}
	// edge_app заменяется целиком, ключи верхнего уровня остаются от prev
	edgeApp, err := deepCopy(&edited.EdgeApp)
	if err != nil {
		return nil, state, err
	}
	out.EdgeApp = *edgeApp
	return out, state, nil
}

func validateV2(edgeApp EdgeApp, deviceModels []string) []string {
	var fields []string
	if custom := edgeApp.CustomSettings; custom != nil {
		detection := custom.AIModels.Detection
		params := detection.Parameters

		bundleID := valueOr(detection.AIModelBundleID, "")
		if !anyContains(deviceModels, bundleID) {
			fields = append(fields, "неизвестный id модели")
		}
		width := valueOr(params.InputWidth, 0)
		height := valueOr(params.InputHeight, 0)
		if width < 0 {
			fields = append(fields, "custom_settings.ai_models.detection.parameters.input_width не может быть < 0")
		}
		if height < 0 {
			fields = append(fields, "custom_settings.ai_models.detection.parameters.input_height не может быть < 0")
		}

		if custom.Area == nil || custom.Area.Coordinates == nil {
			fields = append(fields, "custom_settings.area.coordinates отсутствует")
		} else {
			co := custom.Area.Coordinates
			fields = appendOutOfBounds(fields, "custom_settings.area.coordinates.left", co.Left, float64(width))
			fields = appendOutOfBounds(fields, "custom_settings.area.coordinates.top", co.Top, float64(height))
			fields = appendOutOfBounds(fields, "custom_settings.area.coordinates.right", co.Right, float64(width))
			fields = appendOutOfBounds(fields, "custom_settings.area.coordinates.bottom", co.Bottom, float64(height))
		}
		fields = appendOutOfBounds(fields, "custom_settings.ai_models.detection.parameters.threshold",
			params.Threshold, models.MaxDetectionThreshold)
		if custom.Area != nil {
			fields = appendOutOfBounds(fields, "custom_settings.area.overlap", custom.Area.Overlap, models.MaxOverlapThreshold)
		}
	}

	common := edgeApp.CommonSettings
	if common == nil || common.ProcessState == nil || *common.ProcessState < 0 || *common.ProcessState > 2 {
		fields = append(fields, "недопустимое значение common_settings.process_state, допустимы: [0, 1, 2]")
	}
	return fields
}

func frameRateOf(common *CommonSettings) *FrameRate {
	if common == nil || common.PQSettings == nil {
		return nil
	}
	return common.PQSettings.FrameRate
}

func inputTensorEnabled(common *CommonSettings) *bool {
	if common == nil || common.PortSettings == nil || common.PortSettings.InputTensor == nil {
		return nil
	}
	return common.PortSettings.InputTensor.Enabled
}

// ============ HELPERS ============

// appendOutOfBounds добавляет поле, если значения нет или оно вне [0, limit]
func appendOutOfBounds(fields []string, name string, v *float64, limit float64) []string {
	if v == nil || *v < 0 || *v > limit {
		return append(fields, name+" вне допустимого диапазона")
	}
	return fields
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func anyContains(items []string, sub string) bool {
	for _, item := range items {
		if strings.Contains(item, sub) {
			return true
		}
	}
	return false
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
