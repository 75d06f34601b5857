package worker

import (
	"testing"
	"time"
)

func TestBackoffDelayDoubles(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s срезается потолком
		{10, 30 * time.Second},
		{0, 2 * time.Second}, // некорректный attempt ведёт себя как первый
	}

	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, base, max); got != tt.want {
			t.Errorf("attempt %d: expected %s, got %s", tt.attempt, tt.want, got)
		}
	}
}
