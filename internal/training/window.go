package training

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for an empty or inverted time window.
var ErrInvalidWindow = errors.New("invalid time window")

// Window is the half-open range [Start, End) of one query.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate requires End after Start.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end %s is not after start %s",
			ErrInvalidWindow, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Bins returns the start instant of every step-wide bin covering the
// window. The last bin may extend past End.
func (w Window) Bins(step time.Duration) ([]time.Time, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step %s", ErrInvalidWindow, step)
	}
	span := w.End.Sub(w.Start)
	n := int(span / step)
	if span%step != 0 {
		n++
	}
	bins := make([]time.Time, n)
	for k := range bins {
		bins[k] = w.Start.Add(time.Duration(k) * step)
	}
	return bins, nil
}
