package domain

import "testing"

func TestThresholds_RequiresForm(t *testing.T) {
	th := Thresholds{General: 60000, Rail: 50000}

	tests := []struct {
		name  string
		rail  int64
		other int64
		want  bool
	}{
		{name: "both one cent below", rail: 49999, other: 59999, want: false},
		{name: "general reached exactly", rail: 0, other: 60000, want: true},
		{name: "rail reached exactly", rail: 50000, other: 0, want: true},
		{name: "rail alone above", rail: 70000, other: 10, want: true},
		{name: "nothing paid", rail: 0, other: 0, want: false},
		{name: "rail amount is not counted against general", rail: 49999, other: 10001, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.RequiresForm(tt.rail, tt.other); got != tt.want {
				t.Fatalf("RequiresForm(%d, %d) = %v, want %v", tt.rail, tt.other, got, tt.want)
			}
		})
	}
}

func TestDefaultThresholds_RailIsLower(t *testing.T) {
	th := DefaultThresholds()
	if th.Rail >= th.General {
		t.Fatalf("expected rail threshold %d to be lower than general %d", th.Rail, th.General)
	}
}
