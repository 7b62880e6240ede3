package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestHeaderKeepsParamOrder(t *testing.T) {
	h := NewHeader("Apply settings", "pigeon-cfg settings apply").
		Add("Device", "192.168.1.40").
		Add("Skipped", "").
		Add("SSID", "home")
	out := h.SetWidth(80).Render()

	if !strings.Contains(out, "APPLY SETTINGS") {
		t.Errorf("title not upper-cased:\n%s", out)
	}
	if strings.Contains(out, "Skipped") {
		t.Errorf("empty param rendered:\n%s", out)
	}
	dev := strings.Index(out, "Device:")
	ssid := strings.Index(out, "SSID:")
	if dev < 0 || ssid < 0 || dev > ssid {
		t.Errorf("params out of order (Device at %d, SSID at %d)", dev, ssid)
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Settings applied", Field{"Status", "HTTP 202"}),
			want:   []string{"SUCCESS", "Settings applied", "HTTP 202"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Apply failed", errors.New("connection refused"), "Is the device powered?"),
			want:   []string{"FAILED", "connection refused", "Troubleshooting:", "Is the device powered?"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No heartbeat", Field{"Broker", "mqtt://broker:1883"}),
			want:   []string{"WARNING", "No heartbeat", "mqtt://broker:1883"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestProgressPercent(t *testing.T) {
	p := NewProgress("Validate", "Apply", "Verify", "Heartbeat")

	p.UpdateStep(1, StepComplete, "")
	p.UpdateStep(2, StepRunning, "")
	if p.Current != 2 {
		t.Errorf("Current = %d, want 2", p.Current)
	}
	if p.Percent != 0.25 {
		t.Errorf("Percent = %v, want 0.25", p.Percent)
	}

	p.UpdateStep(2, StepComplete, "HTTP 202")
	p.UpdateStep(3, StepFailed, "")
	p.UpdateStep(4, StepSkipped, "")
	if p.Percent != 0.75 {
		t.Errorf("Percent = %v, want 0.75", p.Percent)
	}

	// out of range is ignored
	p.UpdateStep(9, StepComplete, "")

	line := p.RenderStep(p.Steps[1])
	if !strings.Contains(line, "[2/4]") || !strings.Contains(line, "(HTTP 202)") {
		t.Errorf("step line = %q", line)
	}
}

func TestRunnerSuccess(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:   "Apply settings",
		Command: "pigeon-cfg settings apply",
		Params:  []Field{{"Device", "192.168.4.1"}},
		Steps:   []string{"Apply", "Verify"},
		Output:  &buf,
	})
	r.now = func() time.Time { return time.Unix(0, 0) }

	err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) ([]Field, error) {
		onStep(1, StepRunning, "")
		onStep(1, StepComplete, "HTTP 202")
		onStep(2, StepSkipped, "not requested")
		return []Field{{"SSID", "home"}}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	for _, w := range []string{"APPLY SETTINGS", "192.168.4.1", "(HTTP 202)", "(not requested)", "Apply settings complete", "home", "Duration"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRunnerFailure(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("device unreachable")
	r := NewRunner(RunnerConfig{
		Title:        "Reset",
		Steps:        []string{"Erase settings"},
		Troubleshoot: func(error) []string { return []string{"Join the device hotspot"} },
		Output:       &buf,
	})

	err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) ([]Field, error) {
		onStep(1, StepFailed, "")
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	out := buf.String()
	if !strings.Contains(out, "Reset failed") || !strings.Contains(out, "Join the device hotspot") {
		t.Errorf("failure box incomplete:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"RESET\n", true},
		{"  RESET  \n", true},
		{"RESET", true},
		{"reset\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got := Confirm(strings.NewReader(tt.input), &out, ResetConfirmation("192.168.4.1"))
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "192.168.4.1") {
				t.Errorf("warning does not name the device:\n%s", out.String())
			}
		})
	}
}

func TestClampWidth(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, MinTerminalWidth},
		{80, 80},
		{400, MaxContentWidth},
	}
	for _, tt := range tests {
		if got := clampWidth(tt.in); got != tt.want {
			t.Errorf("clampWidth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
