package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInsufficientCapital      = errors.New("insufficient capital")
	ErrInsufficientPosition     = errors.New("insufficient position")
	ErrNoInvestment             = errors.New("no investment recorded")
	ErrInsufficientWithdrawable = errors.New("amount exceeds withdrawable share")
	ErrPersistenceFailure       = errors.New("persistence failure")
	ErrInvalidAsset             = errors.New("invalid asset id")
	ErrInvalidUser              = errors.New("invalid user id")
)

// PersistenceError reports a failed load or save. The in-memory ledger stays authoritative.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistenceFailure }
