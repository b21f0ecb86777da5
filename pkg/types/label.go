package types

import (
	"fmt"
	"math"
)

// LabelSpan is a labeled sub-region of an audio file
type LabelSpan struct {
	Start       float64 // Milliseconds from the beginning of the file
	End         float64 // Milliseconds, End >= Start
	Description string
}

// Duration returns the span length in milliseconds
func (s LabelSpan) Duration() float64 {
	return s.End - s.Start
}

// Validate checks the span bounds and the minimum duration constraint.
// A minDuration of zero disables the length check.
func (s LabelSpan) Validate(minDuration float64) error {
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
		return fmt.Errorf("%w: span bounds must be finite", ErrInvalidArgument)
	}
	if s.Start < 0 {
		return fmt.Errorf("%w: span start %.0fms is negative", ErrInvalidArgument, s.Start)
	}
	if s.End < s.Start {
		return fmt.Errorf("%w: span end %.0fms precedes start %.0fms", ErrInvalidArgument, s.End, s.Start)
	}
	if minDuration > 0 && s.Duration() < minDuration {
		return fmt.Errorf("%w: span of %.0fms is shorter than the %.0fms minimum",
			ErrInvalidArgument, s.Duration(), minDuration)
	}
	return nil
}
