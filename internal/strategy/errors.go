package strategy

import (
	"errors"
	"fmt"
)

var (
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrExternalSignal   = errors.New("external signal failure")
)

// Signal sources named in SignalError.
const (
	SourcePrice          = "price"
	SourcePrediction     = "prediction"
	SourceSentiment      = "sentiment"
	SourceRecommendation = "recommendation"
)

// SignalError reports which external call aborted a cycle.
type SignalError struct {
	Source string
	Err    error
}

func (e *SignalError) Error() string {
	if e.Source == SourcePrice {
		return fmt.Sprintf("%v: %v", ErrPriceUnavailable, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", ErrExternalSignal, e.Source, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// Is matches ErrPriceUnavailable for price failures and ErrExternalSignal for the rest.
func (e *SignalError) Is(target error) bool {
	if e.Source == SourcePrice {
		return target == ErrPriceUnavailable
	}
	return target == ErrExternalSignal
}
