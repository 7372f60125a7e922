package check

import "testing"

func TestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		difficulty int
		want       bool
	}{
		{"exact match", 12, 12, true},
		{"above difficulty", 18, 12, true},
		{"below difficulty", 7, 12, false},
		{"zero total zero difficulty", 0, 0, true},
		{"negative total", -3, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeetsDifficulty(tt.total, tt.difficulty)
			if got != tt.want {
				t.Errorf("MeetsDifficulty(%d, %d) = %v, want %v", tt.total, tt.difficulty, got, tt.want)
			}
		})
	}
}

func TestMargin(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		difficulty int
		want       int
	}{
		{"exact match", 12, 12, 0},
		{"above by 6", 18, 12, 6},
		{"below by 5", 7, 12, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Margin(tt.total, tt.difficulty)
			if got != tt.want {
				t.Errorf("Margin(%d, %d) = %v, want %v", tt.total, tt.difficulty, got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		difficulty int
		want       Result
	}{
		{"success with margin", 18, 12, Result{Success: true, Margin: 6}},
		{"exact success", 12, 12, Result{Success: true, Margin: 0}},
		{"failure", 7, 12, Result{Success: false, Margin: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.total, tt.difficulty)
			if got != tt.want {
				t.Errorf("Check(%d, %d) = %v, want %v", tt.total, tt.difficulty, got, tt.want)
			}
		})
	}
}
