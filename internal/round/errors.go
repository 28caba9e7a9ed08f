package round

import "errors"

// ErrInvalidState is returned when an operation is attempted outside its
// legal round status. The round is left untouched.
var ErrInvalidState = errors.New("invalid round state")

// ErrValidation is returned for malformed bets or out-of-range
// multipliers. No state is mutated.
var ErrValidation = errors.New("validation failed")
