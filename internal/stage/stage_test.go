package stage

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func drive(m *Machine, events ...Event) error {
	for _, e := range events {
		if _, err := m.Transition(e); err != nil {
			return err
		}
	}
	return nil
}

func TestPredicates(t *testing.T) {
	convey.Convey("stage predicates", t, func() {
		convey.So(IsInitialStages(Initial), convey.ShouldBeTrue)
		convey.So(IsInitialStages(ApplyReady), convey.ShouldBeTrue)
		convey.So(IsInitialStages(ParameterLoading), convey.ShouldBeFalse)

		convey.So(IsConfigurationStages(ParameterSelection), convey.ShouldBeTrue)
		convey.So(IsConfigurationStages(ExtraParameterSelection), convey.ShouldBeTrue)
		convey.So(IsConfigurationStages(ZoneSelection), convey.ShouldBeFalse)

		for _, s := range []Stage{InferenceStarting, InferenceRunning, InferenceStopping} {
			convey.So(IsInferenceStages(s), convey.ShouldBeTrue)
		}
		convey.So(IsLoadingStage(ParameterLoading), convey.ShouldBeTrue)
		convey.So(IsLoadingStage(InferenceRunning), convey.ShouldBeFalse)
	})
}

func TestOperatorFlow(t *testing.T) {
	convey.Convey("full operator flow", t, func() {
		m := NewMachine()
		convey.So(m.Current(), convey.ShouldEqual, Initial)

		convey.Convey("apply, start and stop inference", func() {
			err := drive(m, SelectModel, Apply, LoadSucceeded, StartInference, InferenceStarted)
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, InferenceRunning)

			err = drive(m, StopInference, InferenceStopped)
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ParameterSelection)
		})

		convey.Convey("default configuration lands on extra parameters", func() {
			err := drive(m, SelectModel, Apply, LoadSucceededDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ExtraParameterSelection)

			convey.So(drive(m, EditApplied), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ParameterSelection)
		})

		convey.Convey("failed load returns to apply_ready", func() {
			convey.So(drive(m, SelectModel, Apply, LoadFailed), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ApplyReady)
		})

		convey.Convey("zone editing", func() {
			convey.So(drive(m, Apply, LoadSucceeded, EditZone), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ZoneSelection)
			convey.So(m.Can(StartInference), convey.ShouldBeFalse)

			convey.So(drive(m, AcceptZone), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ParameterSelection)
		})

		convey.Convey("extra panel toggles both ways", func() {
			convey.So(drive(m, Apply, LoadSucceeded, ToggleExtra), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ExtraParameterSelection)
			convey.So(drive(m, ToggleExtra), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ParameterSelection)
		})

		convey.Convey("failed start and failed stop", func() {
			convey.So(drive(m, Apply, LoadSucceeded, StartInference, InferenceStartFailed), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, ParameterSelection)

			convey.So(drive(m, StartInference, InferenceStarted, StopInference, InferenceStopFailed), convey.ShouldBeNil)
			convey.So(m.Current(), convey.ShouldEqual, InferenceRunning)
		})
	})
}

func TestInvalidTransitions(t *testing.T) {
	convey.Convey("transitions outside the table are rejected", t, func() {
		m := NewMachine()

		st, err := m.Transition(StartInference)
		convey.So(errors.Is(err, ErrInvalidTransition), convey.ShouldBeTrue)
		convey.So(st, convey.ShouldEqual, Initial)

		convey.So(drive(m, Apply), convey.ShouldBeNil)
		_, err = m.Transition(Apply)
		convey.So(errors.Is(err, ErrInvalidTransition), convey.ShouldBeTrue)
		convey.So(m.Current(), convey.ShouldEqual, ParameterLoading)

		convey.Convey("parameters cannot change while inference runs", func() {
			convey.So(drive(m, LoadSucceeded, StartInference, InferenceStarted), convey.ShouldBeNil)
			convey.So(m.Can(EditZone), convey.ShouldBeFalse)
			convey.So(m.Can(ToggleExtra), convey.ShouldBeFalse)
			convey.So(m.Can(Configure), convey.ShouldBeTrue)
		})
	})
}

func TestResetFromAnyStage(t *testing.T) {
	convey.Convey("reset is allowed everywhere", t, func() {
		for _, s := range All {
			next, err := Next(s, Reset)
			convey.So(err, convey.ShouldBeNil)
			convey.So(next, convey.ShouldEqual, Initial)
		}
	})
}
