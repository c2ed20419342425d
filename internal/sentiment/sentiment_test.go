package sentiment

import (
	"context"
	"testing"
)

func TestNoopAlwaysZero(t *testing.T) {
	adj, err := Noop{}.Adjust(context.Background(), "RELIANCE")
	if err != nil || adj != 0 {
		t.Fatalf("Adjust = (%v, %v), want (0, nil)", adj, err)
	}
}

func TestStaticClampsAdjustments(t *testing.T) {
	s := NewStatic(map[string]float64{"RELIANCE": 0.5, "TCS": -0.9, "INFY": 0.1})

	cases := map[string]float64{
		"RELIANCE": 0.2,
		"TCS":      -0.2,
		"INFY":     0.1,
		"UNKNOWN":  0,
	}
	for inst, want := range cases {
		got, err := s.Adjust(context.Background(), inst)
		if err != nil {
			t.Fatalf("Adjust(%s): %v", inst, err)
		}
		if got != want {
			t.Errorf("Adjust(%s) = %v, want %v", inst, got, want)
		}
	}

	s.Set("INFY", 1.5)
	got, _ := s.Adjust(context.Background(), "INFY")
	if got != 0.2 {
		t.Errorf("Set should clamp, got %v", got)
	}
}
