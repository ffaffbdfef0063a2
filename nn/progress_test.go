package nn

import (
	"testing"
	"time"
)

func TestProgressBar(t *testing.T) {
	pb := NewProgressBar("Training", 10)

	for i := 1; i <= 10; i++ {
		metrics := map[string]float64{
			"loss": 1.0 - float64(i)*0.08,
		}
		pb.Update(i, metrics)
	}

	pb.Finish()

	if pb.current != pb.total {
		t.Errorf("Expected progress %d/%d after Finish, got %d", pb.total, pb.total, pb.current)
	}
}

func TestProgressBarUpdateMetrics(t *testing.T) {
	pb := NewProgressBar("Validation", 5)
	pb.Update(2, map[string]float64{"loss": 0.5})

	// UpdateMetrics merges without advancing progress
	pb.UpdateMetrics(map[string]float64{"val_loss": 0.4})

	if pb.current != 2 {
		t.Errorf("Expected progress to stay at 2, got %d", pb.current)
	}
	if len(pb.metrics) != 2 {
		t.Errorf("Expected 2 metrics after merge, got %d", len(pb.metrics))
	}
	if pb.metrics["loss"] != 0.5 || pb.metrics["val_loss"] != 0.4 {
		t.Errorf("Unexpected metrics after merge: %v", pb.metrics)
	}
}

func TestProgressBarClampsOvershoot(t *testing.T) {
	pb := NewProgressBar("Overshoot", 4)

	// Updates past total must not panic or overflow the bar width
	pb.Update(7, map[string]float64{"loss": 0.1})
	pb.Finish()

	if pb.current != pb.total {
		t.Errorf("Expected Finish to pin progress at %d, got %d", pb.total, pb.current)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{61 * time.Second, "01:01"},
		{10 * time.Minute, "10:00"},
		{62*time.Minute + 5*time.Second, "62:05"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("formatDuration(%v): expected %s, got %s", tt.d, tt.expected, got)
		}
	}
}
