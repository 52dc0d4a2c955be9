package model_test

import (
	"testing"

	"github.com/okian/mosaic/internal/domain/model"
)

func TestStateString(t *testing.T) {
	cases := map[model.State]string{
		model.StatePending: "pending",
		model.StateQueued:  "queued",
		model.StateLoading: "loading",
		model.StateLoaded:  "loaded",
		model.StateErrored: "errored",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, state := range []model.State{model.StatePending, model.StateQueued, model.StateLoading} {
		if state.Terminal() {
			t.Errorf("%s should not be terminal", state)
		}
	}
	for _, state := range []model.State{model.StateLoaded, model.StateErrored} {
		if !state.Terminal() {
			t.Errorf("%s should be terminal", state)
		}
	}
}

func TestParseTier(t *testing.T) {
	for name, want := range map[string]model.PriorityTier{
		"critical": model.TierCritical,
		"high":     model.TierHigh,
		"normal":   model.TierNormal,
		"low":      model.TierLow,
	} {
		got, err := model.ParseTier(name)
		if err != nil || got != want {
			t.Errorf("ParseTier(%q) = %v, %v; want %v", name, got, err, want)
		}
	}

	if _, err := model.ParseTier("urgent"); err == nil {
		t.Error("ParseTier should reject unknown tiers")
	}
}

func TestTierOrdering(t *testing.T) {
	if !(model.TierCritical < model.TierHigh && model.TierHigh < model.TierNormal && model.TierNormal < model.TierLow) {
		t.Error("tier constants must order critical < high < normal < low")
	}
}

func TestTierZeroValue(t *testing.T) {
	var tier model.PriorityTier
	if tier != model.TierUnset {
		t.Errorf("zero tier = %v, want unset", tier)
	}
	if tier == model.TierCritical {
		t.Error("zero tier must not rank as critical")
	}
}

func TestParseDeviceClass(t *testing.T) {
	if dc, err := model.ParseDeviceClass(""); err != nil || dc != model.DeviceStandard {
		t.Errorf("empty device class should default to standard, got %v, %v", dc, err)
	}
	if dc, err := model.ParseDeviceClass("constrained"); err != nil || dc != model.DeviceConstrained {
		t.Errorf("ParseDeviceClass(constrained) = %v, %v", dc, err)
	}
	if _, err := model.ParseDeviceClass("quantum"); err == nil {
		t.Error("ParseDeviceClass should reject unknown classes")
	}
}
