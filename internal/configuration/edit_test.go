package configuration

import (
	"errors"
	"testing"

	"zone-detection-console/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEdited(t *testing.T, raw string, edit func(Configuration)) []byte {
	t.Helper()
	cfg := mustDecode(t, raw)
	edit(cfg)
	data, err := Encode(cfg)
	require.NoError(t, err)
	return data
}

func TestApplyEditV1(t *testing.T) {
	prev := mustDecode(t, configV1JSON)
	raw := encodeEdited(t, configV1JSON, func(c Configuration) {
		params := &c.(*ConfigurationV1).Commands[0].Parameters
		params.Mode = ptr(2)
		params.UploadInterval = ptr(60.0)
		params.FileFormat = ptr("BMP")
		params.PPLParameter.Zone = &Zone{TopLeftX: ptr(5.0), TopLeftY: ptr(6.0), BottomRightX: ptr(100.0), BottomRightY: ptr(120.0)}
		params.PPLParameter.Threshold = &Threshold{IoU: ptr(0.3), Score: ptr(0.7)}
	})

	out, state, err := ApplyEdit(prev, raw, Parse(prev), []string{"0300000001"})
	require.NoError(t, err)

	assert.Equal(t, models.Point{X: 5, Y: 6}, state.StartPoint)
	assert.Equal(t, models.Point{X: 100, Y: 120}, state.EndPoint)
	assert.Equal(t, 0.7, state.DetectionThreshold)
	assert.Equal(t, 0.3, state.OverlapThreshold)
	assert.Equal(t, 60.0, state.UploadInterval)
	assert.False(t, state.SendImageFlag)
	assert.Equal(t, "0300000001", state.ModelID)
	assert.Equal(t, 320, state.InputWidth)

	params := out.(*ConfigurationV1).Commands[0].Parameters
	assert.Equal(t, "BMP", *params.FileFormat)
	assert.Equal(t, 2, *params.Mode)
	assert.Equal(t, 0.7, *params.PPLParameter.Threshold.Score)

	// prev не меняется
	assert.Equal(t, "JPG", *prev.(*ConfigurationV1).Commands[0].Parameters.FileFormat)
}

func TestApplyEditV1Validation(t *testing.T) {
	prev := mustDecode(t, configV1JSON)
	state := Parse(prev)
	raw := encodeEdited(t, configV1JSON, func(c Configuration) {
		params := &c.(*ConfigurationV1).Commands[0].Parameters
		params.ModelId = ptr("unknown")
		params.Mode = ptr(3)
		params.PPLParameter.Zone.TopLeftX = ptr(400.0)
		params.PPLParameter.Threshold.Score = nil
	})

	out, got, err := ApplyEdit(prev, raw, state, []string{"0300000001"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, state, got)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{
		"неизвестный ModelId",
		"zone.top_left_x вне допустимого диапазона",
		"threshold.score вне допустимого диапазона",
		"недопустимое значение Mode, допустимы: [0, 1, 2]",
	}, verr.Fields)
}

func TestApplyEditV1MissingPPLParameter(t *testing.T) {
	prev := mustDecode(t, configV1JSON)
	raw := encodeEdited(t, configV1JSON, func(c Configuration) {
		c.(*ConfigurationV1).Commands[0].Parameters.PPLParameter = nil
	})

	_, _, err := ApplyEdit(prev, raw, Parse(prev), []string{"0300000001"})
	assert.ErrorIs(t, err, ErrMissingPPLParameter)
}

func TestApplyEditRejectsOtherSchema(t *testing.T) {
	prev := mustDecode(t, configV1JSON)
	_, _, err := ApplyEdit(prev, []byte(configV2JSON), Parse(prev), nil)
	assert.ErrorIs(t, err, ErrWrongFormat)

	_, _, err = ApplyEdit(prev, []byte(`{not json`), Parse(prev), nil)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestApplyEditV2(t *testing.T) {
	prev := mustDecode(t, configV2JSON)
	state := Parse(prev)
	state.ModelID = "Detector (000123)"

	raw := encodeEdited(t, configV2JSON, func(c Configuration) {
		edgeApp := &c.(*ConfigurationV2).EdgeApp
		edgeApp.CommonSettings.PQSettings.FrameRate.Num = ptr(30.0)
		edgeApp.CommonSettings.PortSettings.InputTensor.Enabled = ptr(false)
		edgeApp.CustomSettings.AIModels.Detection.Parameters.Threshold = ptr(0.45)
		edgeApp.CustomSettings.Area.Coordinates = &Coordinates{Left: ptr(1.0), Top: ptr(2.0), Right: ptr(100.0), Bottom: ptr(200.0)}
	})

	out, got, err := ApplyEdit(prev, raw, state, []string{"Detector (000123)"})
	require.NoError(t, err)

	assert.Equal(t, "Detector (000123)", got.ModelID)
	assert.Equal(t, 480, got.InputWidth)
	assert.Equal(t, models.Point{X: 1, Y: 2}, got.StartPoint)
	assert.Equal(t, models.Point{X: 100, Y: 200}, got.EndPoint)
	assert.Equal(t, 0.45, got.DetectionThreshold)
	assert.Equal(t, 0.5, got.OverlapThreshold)
	assert.InDelta(t, 1.0, got.UploadInterval, 1e-9)
	assert.False(t, got.SendImageFlag)

	edgeApp := out.(*ConfigurationV2).EdgeApp
	assert.Equal(t, 30.0, *edgeApp.CommonSettings.PQSettings.FrameRate.Num)
	assert.Contains(t, edgeApp.Extra, "req_info")
	assert.False(t, Differs(got, out))
}

func TestApplyEditV2Errors(t *testing.T) {
	prev := mustDecode(t, configV2JSON)
	deviceModels := []string{"Detector (000123)"}

	raw := encodeEdited(t, configV2JSON, func(c Configuration) {
		c.(*ConfigurationV2).EdgeApp.CustomSettings.AIModels.Detection.Parameters = nil
	})
	_, _, err := ApplyEdit(prev, raw, Parse(prev), deviceModels)
	assert.ErrorIs(t, err, ErrMissingDetectionParameters)

	raw = encodeEdited(t, configV2JSON, func(c Configuration) {
		c.(*ConfigurationV2).EdgeApp.CommonSettings.ProcessState = ptr(5)
	})
	_, _, err = ApplyEdit(prev, raw, Parse(prev), deviceModels)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"недопустимое значение common_settings.process_state, допустимы: [0, 1, 2]"}, verr.Fields)
}
