package models

import "errors"

// State machine validation failures. These are the protocol verdicts a
// client receives back; none of them is retryable.
var (
	ErrMatchNotFound     = errors.New("match does not exist")
	ErrAlreadyJoined     = errors.New("can't join the match, it has already been joined or finished")
	ErrSelfJoin          = errors.New("can't join a match you created")
	ErrBetMismatch       = errors.New("escrowed value does not equal the match bet amount")
	ErrInvalidReveal     = errors.New("revealed secret does not match the stored commitment")
	ErrAlreadyRevealed   = errors.New("participant has already revealed")
	ErrInvalidState      = errors.New("operation is not valid in the current match state")
	ErrNotParticipant    = errors.New("caller is not a participant of this match")
	ErrTimeoutNotElapsed = errors.New("reveal window has not elapsed yet")
	ErrNotEligible       = errors.New("caller has not revealed and may not claim the forfeit")
	ErrNoBalance         = errors.New("insufficient account balance")
	ErrBadBetAmount      = errors.New("bet amount must be positive")
)
