package pdu

import "time"

// RealTimeSource reads the process's monotonic clock, matching the
// original steady_clock-based time source: the epoch is arbitrary but
// stable for the process lifetime, which is all deadline arithmetic needs.
type RealTimeSource struct {
	start time.Time
}

func NewRealTimeSource() *RealTimeSource {
	return &RealTimeSource{start: time.Now()}
}

func (t *RealTimeSource) NowMicros() uint64 {
	return uint64(time.Since(t.start).Microseconds())
}

func (t *RealTimeSource) Sleep(usec uint64) {
	time.Sleep(time.Duration(usec) * time.Microsecond)
}
