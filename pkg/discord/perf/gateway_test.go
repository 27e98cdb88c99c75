package perf

import (
	"testing"
	"time"
)

func TestDisabledThresholdReturnsNoop(t *testing.T) {
	done := startWithThreshold(0, "MESSAGE_CREATE")
	done()
}

func TestSlowEventIsReported(t *testing.T) {
	done := startWithThreshold(time.Nanosecond, "")
	time.Sleep(time.Millisecond)
	done()
}
