package jobstore

import (
	"testing"
	"time"
)

func TestNullableTimeZeroIsNil(t *testing.T) {
	if got := nullableTime(time.Time{}); got != nil {
		t.Errorf("nullableTime(zero) = %v, want nil", got)
	}
}

func TestNullableTimeNonZeroPassesThrough(t *testing.T) {
	now := time.Now()
	got := nullableTime(now)
	if got != now {
		t.Errorf("nullableTime(now) = %v, want %v", got, now)
	}
}
