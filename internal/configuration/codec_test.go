package configuration

import (
	"encoding/json"
	"math"
	"testing"

	"zone-detection-console/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configV1JSON = `{
  "file_name": "cmd.json",
  "custom_top": "keep",
  "commands": [{
    "command_name": "StartUploadInferenceData",
    "parameters": {
      "Mode": 1,
      "UploadMethod": "BlobStorage",
      "FileFormat": "JPG",
      "UploadMethodIR": "Mqtt",
      "NumberOfImages": 0,
      "UploadInterval": 30,
      "MaxDetectionsPerFrame": 5,
      "ModelId": "0300000001",
      "PPLParameter": {
        "header": {"id": "00", "version": "01.01.00"},
        "dnn_output_detections": 100,
        "max_detections": 5,
        "mode": 1,
        "zone": {"top_left_x": 10, "top_left_y": 20, "bottom_right_x": 200, "bottom_right_y": 150},
        "threshold": {"iou": 0.4, "score": 0.6},
        "input_width": 320,
        "input_height": 240,
        "vendor_key": {"a": 1}
      }
    }
  }]
}`

const configV2JSON = `{
  "edge_app": {
    "req_info": {"req_id": "abc"},
    "common_settings": {
      "process_state": 2,
      "log_level": 2,
      "inference_settings": {"number_of_iterations": 0},
      "pq_settings": {"frame_rate": {"num": 60, "denom": 1}, "digital_zoom": 1},
      "port_settings": {
        "metadata": {"method": 0, "enabled": true},
        "input_tensor": {"method": 0, "storage_name": "st", "path": "p", "enabled": true}
      },
      "codec_settings": {"format": 1},
      "number_of_inference_per_message": 1
    },
    "custom_settings": {
      "ai_models": {"detection": {"ai_model_bundle_id": "000123", "parameters": {
        "max_detections": 10, "threshold": 0.3, "input_width": 480, "input_height": 480,
        "bbox_order": "xyxy", "bbox_normalization": false, "class_score_order": "score_cls"}}},
      "area": {"coordinates": {"left": 10, "top": 20, "right": 300, "bottom": 400}, "overlap": 0.5, "class_id": [0]},
      "metadata_settings": {"format": 1}
    }
  }
}`

func mustDecode(t *testing.T, raw string) Configuration {
	t.Helper()
	cfg, err := Decode([]byte(raw), SchemaAuto)
	require.NoError(t, err)
	return cfg
}

func TestDecodeDiscriminatesByEdgeApp(t *testing.T) {
	assert.IsType(t, &ConfigurationV1{}, mustDecode(t, configV1JSON))
	assert.IsType(t, &ConfigurationV2{}, mustDecode(t, configV2JSON))

	_, err := Decode([]byte(configV2JSON), SchemaV1)
	assert.ErrorIs(t, err, ErrWrongFormat)

	_, err = Decode([]byte(configV1JSON), SchemaV2)
	assert.ErrorIs(t, err, ErrWrongFormat)

	_, err = Decode([]byte(`{"file_name": "x"}`), SchemaV1)
	assert.ErrorIs(t, err, ErrMissingPath)

	_, err = Decode([]byte(`[1, 2]`), SchemaAuto)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestEncodePreservesUnknownKeys(t *testing.T) {
	for name, raw := range map[string]string{"v1": configV1JSON, "v2": configV2JSON} {
		t.Run(name, func(t *testing.T) {
			data, err := Encode(mustDecode(t, raw))
			require.NoError(t, err)
			assert.JSONEq(t, raw, string(data))
		})
	}
}

func TestParseV1(t *testing.T) {
	state := Parse(mustDecode(t, configV1JSON))

	assert.True(t, state.SendImageFlag)
	assert.True(t, state.EdgeFilterFlag)
	assert.Equal(t, 30.0, state.UploadInterval)
	assert.Equal(t, 320, state.InputWidth)
	assert.Equal(t, 240, state.InputHeight)
	assert.Equal(t, models.Point{X: 10, Y: 20}, state.StartPoint)
	assert.Equal(t, models.Point{X: 200, Y: 150}, state.EndPoint)
	assert.Equal(t, 0.4, state.OverlapThreshold)
	assert.Equal(t, 0.6, state.DetectionThreshold)
	assert.Empty(t, state.ModelID)
}

func TestParseV1FallsBackOnInvalidValues(t *testing.T) {
	raw := `{"file_name": "f", "commands": [{"command_name": "c", "parameters": {
		"Mode": 2,
		"UploadInterval": 5000,
		"PPLParameter": {
			"zone": {"top_left_x": -5, "top_left_y": 10, "bottom_right_x": 999},
			"threshold": {"iou": 1.5, "score": -1},
			"input_width": 300, "input_height": 200
		}}}]}`
	state := Parse(mustDecode(t, raw))

	assert.False(t, state.SendImageFlag)
	assert.False(t, state.EdgeFilterFlag)
	assert.Equal(t, models.MaxUploadInterval, state.UploadInterval)
	assert.Equal(t, models.Point{X: 0, Y: 10}, state.StartPoint)
	assert.Equal(t, models.Point{X: 300, Y: 200}, state.EndPoint)
	assert.Equal(t, models.MaxOverlapThreshold, state.OverlapThreshold)
	assert.Equal(t, models.MinDetectionThreshold, state.DetectionThreshold)
}

func TestParseDefaultConfigurationV1(t *testing.T) {
	state := Parse(DefaultConfigurationV1("x.json"))

	assert.Equal(t, models.Point{}, state.StartPoint)
	assert.Equal(t, models.Point{X: 300, Y: 300}, state.EndPoint)
	assert.True(t, state.SendImageFlag)
	assert.False(t, state.EdgeFilterFlag)
	assert.Equal(t, models.DefaultDetectionThreshold, state.DetectionThreshold)
	assert.Equal(t, models.DefaultOverlapThreshold, state.OverlapThreshold)
	assert.Equal(t, models.DefaultUploadInterval, state.UploadInterval)
}

func TestParseV2(t *testing.T) {
	state := Parse(mustDecode(t, configV2JSON))

	assert.True(t, state.SendImageFlag)
	assert.Equal(t, 480, state.InputWidth)
	assert.Equal(t, 480, state.InputHeight)
	assert.InDelta(t, 2.0, state.UploadInterval, 1e-9)
	assert.Equal(t, models.Point{X: 10, Y: 20}, state.StartPoint)
	assert.Equal(t, models.Point{X: 300, Y: 400}, state.EndPoint)
	assert.True(t, state.EdgeFilterFlag)
	assert.Equal(t, 0.5, state.OverlapThreshold)
	assert.Equal(t, 0.3, state.DetectionThreshold)
}

func TestParseV2StopsAtFirstMissingKey(t *testing.T) {
	raw := `{"edge_app": {
		"common_settings": {
			"pq_settings": {"frame_rate": {"num": 15}},
			"port_settings": {"input_tensor": {"enabled": true}}
		},
		"custom_settings": {
			"ai_models": {"detection": {"parameters": {"threshold": 0.9, "input_width": 100, "input_height": 50}}}
		}
	}}`
	state := Parse(mustDecode(t, raw))

	// дошли до area и остановились
	assert.True(t, state.SendImageFlag)
	assert.Equal(t, 100, state.InputWidth)
	assert.Equal(t, 50, state.InputHeight)
	assert.InDelta(t, 0.5, state.UploadInterval, 1e-9)
	assert.Equal(t, models.Point{}, state.StartPoint)
	assert.False(t, state.EdgeFilterFlag)
	assert.Equal(t, models.DefaultDetectionThreshold, state.DetectionThreshold)
}

func TestParseV2SendImageFlag(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{
			name: "нет port_settings: остается значение по умолчанию",
			raw:  `{"edge_app": {"common_settings": {"process_state": 2}, "custom_settings": {}}}`,
			want: models.DefaultSendImageFlag,
		},
		{
			name: "нет input_tensor: остается значение по умолчанию",
			raw:  `{"edge_app": {"common_settings": {"port_settings": {"metadata": {"enabled": true}}}}}`,
			want: models.DefaultSendImageFlag,
		},
		{
			name: "input_tensor выключен",
			raw:  `{"edge_app": {"common_settings": {"port_settings": {"input_tensor": {"enabled": false}}}}}`,
			want: false,
		},
		{
			name: "нет common_settings",
			raw:  `{"edge_app": {"custom_settings": {}}}`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(mustDecode(t, tt.raw)).SendImageFlag)
		})
	}
}

func TestFrameRateConversionStaysFinite(t *testing.T) {
	assert.Equal(t, math.MaxFloat64, TimeBetweenUpdatesToFrameRate(models.MaxUploadInterval, 1e308))
	assert.Equal(t, math.MaxFloat64, FrameRateToTimeBetweenUpdates(1e308, 1e-300))
	assert.Equal(t, -math.MaxFloat64, FrameRateToTimeBetweenUpdates(-1e308, 1e-300))
	assert.Equal(t, 0.0, FrameRateToTimeBetweenUpdates(math.NaN(), 1))
}

func TestMergeV2HugeDenomEncodes(t *testing.T) {
	raw := `{"edge_app": {"common_settings": {"pq_settings": {"frame_rate": {"num": 60, "denom": 1e308}},
		"port_settings": {"input_tensor": {"enabled": true}}}}}`
	cfg := mustDecode(t, raw)
	state := Parse(cfg)
	state.UploadInterval = models.MaxUploadInterval

	merged, err := Merge(state, cfg)
	require.NoError(t, err)

	data, err := Encode(merged)
	require.NoError(t, err)

	decoded, err := Decode(data, SchemaV2)
	require.NoError(t, err)
	fr := decoded.(*ConfigurationV2).EdgeApp.CommonSettings.PQSettings.FrameRate
	assert.Equal(t, math.MaxFloat64, *fr.Num)
}

func TestFrameRateConversionIsInverse(t *testing.T) {
	for _, num := range []float64{1, 7.5, 15, 30, 60, 1800} {
		for _, denom := range []float64{1, 2, 1001} {
			interval := FrameRateToTimeBetweenUpdates(num, denom)
			assert.InDelta(t, num, TimeBetweenUpdatesToFrameRate(interval, denom), 1e-9)
		}
	}
	assert.Equal(t, 2.0, FrameRateToTimeBetweenUpdates(60, 0))
	assert.Equal(t, 60.0, TimeBetweenUpdatesToFrameRate(2, 0))
}

func TestMergeV1RoundTrip(t *testing.T) {
	cfg := mustDecode(t, configV1JSON)
	out, err := Merge(Parse(cfg), cfg)
	require.NoError(t, err)
	merged := out.(*ConfigurationV1)

	ppl := merged.Commands[0].Parameters.PPLParameter
	assert.Equal(t, 10.0, *ppl.Zone.TopLeftX)
	assert.Equal(t, 20.0, *ppl.Zone.TopLeftY)
	assert.Equal(t, 200.0, *ppl.Zone.BottomRightX)
	assert.Equal(t, 150.0, *ppl.Zone.BottomRightY)
	assert.Equal(t, 0.4, *ppl.Threshold.IoU)
	assert.Equal(t, 0.6, *ppl.Threshold.Score)
	assert.Equal(t, 1, *ppl.Mode)
	assert.Equal(t, 1, *merged.Commands[0].Parameters.Mode)
	assert.Equal(t, "BlobStorage", *merged.Commands[0].Parameters.UploadMethod)
	assert.Contains(t, ppl.Extra, "vendor_key")
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	cfg := mustDecode(t, configV1JSON)
	state := Parse(cfg)
	state.DetectionThreshold = 0.99

	_, err := Merge(state, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0.6, *cfg.(*ConfigurationV1).Commands[0].Parameters.PPLParameter.Threshold.Score)
}

func TestMergeV1DropsNullFields(t *testing.T) {
	raw := `{"file_name": "f", "commands": [{"command_name": "c", "legacy": null,
		"parameters": {"Mode": 1, "Legacy": null, "Nested": {"a": null, "b": 1}}}]}`
	merged, err := Merge(models.DefaultParameterState(), mustDecode(t, raw))
	require.NoError(t, err)

	data, err := Encode(merged)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	cmd := out["commands"].([]any)[0].(map[string]any)
	params := cmd["parameters"].(map[string]any)
	assert.NotContains(t, cmd, "legacy")
	assert.NotContains(t, params, "Legacy")
	assert.Equal(t, map[string]any{"b": 1.0}, params["Nested"])
}

func TestMergeV2SkipsMissingBranches(t *testing.T) {
	raw := `{"edge_app": {"custom_settings": {"area": {"overlap": 0.1}}}}`
	state := models.DefaultParameterState()
	state.StartPoint = models.Point{X: 1, Y: 2}

	out, err := Merge(state, mustDecode(t, raw))
	require.NoError(t, err)
	merged := out.(*ConfigurationV2)

	assert.Nil(t, merged.EdgeApp.CommonSettings)
	co := merged.EdgeApp.CustomSettings.Area.Coordinates
	require.NotNil(t, co)
	assert.Equal(t, 1.0, *co.Left)
	assert.Equal(t, 2.0, *co.Top)
	assert.Equal(t, state.OverlapThreshold, *merged.EdgeApp.CustomSettings.Area.Overlap)
	assert.Equal(t, state.DetectionThreshold, *merged.EdgeApp.CustomSettings.AIModels.Detection.Parameters.Threshold)
}

func TestMergeV2RewritesFrameRate(t *testing.T) {
	state := Parse(mustDecode(t, configV2JSON))
	state.UploadInterval = 4
	state.SendImageFlag = false

	out, err := Merge(state, mustDecode(t, configV2JSON))
	require.NoError(t, err)
	merged := out.(*ConfigurationV2)

	fr := merged.EdgeApp.CommonSettings.PQSettings.FrameRate
	assert.InDelta(t, 120.0, *fr.Num, 1e-9)
	assert.Equal(t, 1.0, *fr.Denom)
	assert.False(t, *merged.EdgeApp.CommonSettings.PortSettings.InputTensor.Enabled)
	assert.Contains(t, merged.EdgeApp.CommonSettings.PortSettings.InputTensor.Extra, "storage_name")
}

func TestFillInMissingValuesWithDefault(t *testing.T) {
	t.Run("без custom_settings", func(t *testing.T) {
		cfg := mustDecode(t, `{"edge_app": {"common_settings": {"process_state": 1}}}`).(*ConfigurationV2)

		assert.True(t, FillInMissingValuesWithDefault(cfg, "abcdef123456gh"))
		detection := cfg.EdgeApp.CustomSettings.AIModels.Detection
		assert.Equal(t, "123456", *detection.AIModelBundleID)
		assert.Equal(t, 0.3, *detection.Parameters.Threshold)
		assert.Equal(t, 480.0, *cfg.EdgeApp.CustomSettings.Area.Coordinates.Right)
		assert.Equal(t, 0, *cfg.EdgeApp.CustomSettings.MetadataSettings.Format)
	})

	t.Run("id модели не в ASCII", func(t *testing.T) {
		cfg := mustDecode(t, `{"edge_app": {"common_settings": {"process_state": 1}}}`).(*ConfigurationV2)

		assert.True(t, FillInMissingValuesWithDefault(cfg, "модель123456xy"))
		assert.Equal(t, "123456", *cfg.EdgeApp.CustomSettings.AIModels.Detection.AIModelBundleID)
	})

	t.Run("короткий id модели", func(t *testing.T) {
		cfg := mustDecode(t, `{"edge_app": {"common_settings": {"process_state": 1}}}`).(*ConfigurationV2)

		assert.True(t, FillInMissingValuesWithDefault(cfg, "ключ№9"))
		assert.Equal(t, "", *cfg.EdgeApp.CustomSettings.AIModels.Detection.AIModelBundleID)
	})

	t.Run("полная конфигурация", func(t *testing.T) {
		cfg := mustDecode(t, configV2JSON).(*ConfigurationV2)
		assert.False(t, FillInMissingValuesWithDefault(cfg, "abcdef123456gh"))
	})

	t.Run("без parameters", func(t *testing.T) {
		cfg := mustDecode(t, `{"edge_app": {"custom_settings": {
			"ai_models": {"detection": {"ai_model_bundle_id": "1"}},
			"area": {"overlap": 0.2},
			"metadata_settings": {"format": 1}}}}`).(*ConfigurationV2)

		assert.True(t, FillInMissingValuesWithDefault(cfg, "m"))
		assert.Equal(t, 480, *cfg.EdgeApp.CustomSettings.AIModels.Detection.Parameters.InputWidth)
		assert.Equal(t, 0.2, *cfg.EdgeApp.CustomSettings.Area.Overlap)
		assert.Equal(t, "1", *cfg.EdgeApp.CustomSettings.AIModels.Detection.AIModelBundleID)
	})
}

func TestExtractModelID(t *testing.T) {
	id := ExtractModelID("Detector (0312) v2")
	require.NotNil(t, id)
	assert.Equal(t, "0312", *id)
	assert.Nil(t, ExtractModelID("Detector"))
}

func TestSetBundleIDWritesNullWithoutMatch(t *testing.T) {
	cfg := mustDecode(t, configV2JSON).(*ConfigurationV2)
	SetBundleID(cfg, "no brackets")

	data, err := Encode(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ai_model_bundle_id":null`)
}
