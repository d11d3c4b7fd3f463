package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/pose"
)

func TestNew_DefaultsTarget(t *testing.T) {
	tests := []struct {
		name   string
		target pose.Label
		want   pose.Label
	}{
		{"selectable", pose.Warrior, pose.Warrior},
		{"no pose", pose.NoPose, pose.SelectableLabels[0]},
		{"unknown", pose.Label("Lotus"), pose.SelectableLabels[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.target).Target())
		})
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New(pose.Tree)

	var selected []pose.Label
	var toggles []bool
	tr.OnSelect(func(l pose.Label) { selected = append(selected, l) })
	tr.OnToggle(func(running bool) { toggles = append(toggles, running) })

	tr.handleSelect(pose.Tree)
	tr.handleSelect(pose.Chair)
	tr.handleToggle()
	tr.handleToggle()

	assert.Equal(t, []pose.Label{pose.Chair}, selected, "reselecting the target is a no-op")
	assert.Equal(t, pose.Chair, tr.Target())
	assert.Equal(t, []bool{true, false}, toggles)
	assert.False(t, tr.Running())

	tr.SetRunning(true)
	assert.True(t, tr.Running())
}

func TestTray_ReportBeforeReady(t *testing.T) {
	tr := New(pose.Tree)
	// Menu items do not exist yet; must not panic.
	tr.Report(app.FrameReport{Holding: true, BestHoldSeconds: 3})
}

func TestHoldTitle(t *testing.T) {
	assert.Equal(t, "Best hold: 0.0s", holdTitle(app.FrameReport{}))
	assert.Equal(t, "Best hold: 4.2s", holdTitle(app.FrameReport{BestHoldSeconds: 4.2}))
	assert.Equal(t, "Holding Tree: 1.5s (best 4.2s)", holdTitle(app.FrameReport{
		Pose:               pose.Tree,
		Holding:            true,
		CurrentHoldSeconds: 1.5,
		BestHoldSeconds:    4.2,
	}))
}
