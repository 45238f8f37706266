package configuration

import (
	"math"

	"zone-detection-console/internal/models"
)

const floatTolerance = 1e-9

// Differs сообщает, расходятся ли параметры с последней конфигурацией устройства.
// Отсутствующее поле в конфигурации считается расхождением.
func Differs(state models.ParameterState, cfg Configuration) bool {
	switch c := cfg.(type) {
	case *ConfigurationV1:
		return differsV1(state, c)
	case *ConfigurationV2:
		return differsV2(state, c)
	default:
		return true
	}
}

func differsV1(state models.ParameterState, c *ConfigurationV1) bool {
	for _, cmd := range c.Commands {
		params := cmd.Parameters
		if !intEquals(params.Mode, modeFor(state.SendImageFlag)) ||
			!floatEquals(params.UploadInterval, state.UploadInterval) ||
			params.ModelId == nil || *params.ModelId != state.ModelID {
			return true
		}

		ppl := params.PPLParameter
		if ppl == nil {
			continue
		}
		if !intEquals(ppl.Mode, boolToInt(state.EdgeFilterFlag)) || ppl.Zone == nil || ppl.Threshold == nil {
			return true
		}
		zone := ppl.Zone
		if !floatEquals(zone.TopLeftX, float64(state.StartPoint.X)) ||
			!floatEquals(zone.TopLeftY, float64(state.StartPoint.Y)) ||
			!floatEquals(zone.BottomRightX, float64(state.EndPoint.X)) ||
			!floatEquals(zone.BottomRightY, float64(state.EndPoint.Y)) ||
			!floatEquals(ppl.Threshold.IoU, state.OverlapThreshold) ||
			!floatEquals(ppl.Threshold.Score, state.DetectionThreshold) {
			return true
		}
	}
	return false
}

func differsV2(state models.ParameterState, c *ConfigurationV2) bool {
	common := c.EdgeApp.CommonSettings
	if common == nil || common.PortSettings == nil || common.PortSettings.InputTensor == nil ||
		common.PQSettings == nil || common.PQSettings.FrameRate == nil || common.PQSettings.FrameRate.Num == nil {
		return true
	}
	enabled := common.PortSettings.InputTensor.Enabled
	if enabled == nil || *enabled != state.SendImageFlag {
		return true
	}
	fr := common.PQSettings.FrameRate
	interval := FrameRateToTimeBetweenUpdates(*fr.Num, valueOr(fr.Denom, 0))
	if !floatEquals(&interval, state.UploadInterval) {
		return true
	}

	custom := c.EdgeApp.CustomSettings
	if custom == nil {
		return false
	}
	if custom.MetadataSettings == nil || custom.Area == nil || custom.Area.Coordinates == nil ||
		custom.AIModels == nil || custom.AIModels.Detection == nil || custom.AIModels.Detection.Parameters == nil {
		return true
	}
	co := custom.Area.Coordinates
	return !intEquals(custom.MetadataSettings.Format, boolToInt(state.EdgeFilterFlag)) ||
		!floatEquals(co.Left, float64(state.StartPoint.X)) ||
		!floatEquals(co.Top, float64(state.StartPoint.Y)) ||
		!floatEquals(co.Right, float64(state.EndPoint.X)) ||
		!floatEquals(co.Bottom, float64(state.EndPoint.Y)) ||
		!floatEquals(custom.Area.Overlap, state.OverlapThreshold) ||
		!floatEquals(custom.AIModels.Detection.Parameters.Threshold, state.DetectionThreshold)
}

func intEquals(p *int, v int) bool {
	return p != nil && *p == v
}

// floatEquals сравнивает с допуском: frame_rate пересчитывается через деление
func floatEquals(p *float64, v float64) bool {
	return p != nil && math.Abs(*p-v) <= floatTolerance
}
