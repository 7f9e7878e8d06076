package miner

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmission covers a rejected or unsendable round transaction,
	// including an underfunded fee payer and on-chain execution failure.
	ErrSubmission = errors.New("submission failed")

	// ErrConfirmationTimeout is returned when a sent transaction never
	// becomes visible within the confirmation window.
	ErrConfirmationTimeout = errors.New("transaction not confirmed")

	// ErrInsufficientBalance is returned when the fee payer cannot cover fees.
	ErrInsufficientBalance = errors.New("insufficient fee payer balance")
)

// Phase names the step of the mining loop an error came from.
type Phase string

const (
	PhaseOpen    Phase = "open"
	PhaseConfig  Phase = "fetch-config"
	PhaseProof   Phase = "wait-proof"
	PhaseClock   Phase = "clock"
	PhaseSearch  Phase = "search"
	PhaseSubmit  Phase = "submit"
	PhaseConfirm Phase = "confirm"
	PhaseIdle    Phase = "idle"
)

// PhaseError is a session-ending error tagged with the phase it came from.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
