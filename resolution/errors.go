package resolution

import (
	"errors"
	"strconv"
)

// Code is a rejection returned by the state machine. The numeric values are
// wire compatible with existing callers and must not change.
type Code uint32

const (
	CodeNotAuthorized     Code = 100
	CodeInvalidDispute    Code = 101
	CodeAppealExpired     Code = 102
	CodeAlreadyResolved   Code = 103
	CodeInvalidMediator   Code = 104
	CodeInvalidOutcome    Code = 105
	CodeInvalidRationale  Code = 106
	CodeAppealNotAllowed  Code = 107
	CodeFinalizationEarly Code = 108
	CodeNoResolution      Code = 109
)

var codeNames = map[Code]string{
	CodeNotAuthorized:     "not-authorized",
	CodeInvalidDispute:    "invalid-dispute",
	CodeAppealExpired:     "appeal-expired",
	CodeAlreadyResolved:   "already-resolved",
	CodeInvalidMediator:   "invalid-mediator",
	CodeInvalidOutcome:    "invalid-outcome",
	CodeInvalidRationale:  "invalid-rationale",
	CodeAppealNotAllowed:  "appeal-not-allowed",
	CodeFinalizationEarly: "finalization-early",
	CodeNoResolution:      "no-resolution",
}

// Name is the stable kebab-case name of the code.
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown-" + strconv.FormatUint(uint64(c), 10)
}

func (c Code) Error() string {
	return "resolution: " + c.Name() + " (u" + strconv.FormatUint(uint64(c), 10) + ")"
}

// Sentinels for errors.Is. AlreadyResolved covers several distinct conditions
// (duplicate fee, finalize without fee, finalize or appeal on a final record).
var (
	ErrNotAuthorized     error = CodeNotAuthorized
	ErrInvalidDispute    error = CodeInvalidDispute
	ErrAppealExpired     error = CodeAppealExpired
	ErrAlreadyResolved   error = CodeAlreadyResolved
	ErrInvalidMediator   error = CodeInvalidMediator
	ErrInvalidOutcome    error = CodeInvalidOutcome
	ErrInvalidRationale  error = CodeInvalidRationale
	ErrAppealNotAllowed  error = CodeAppealNotAllowed
	ErrFinalizationEarly error = CodeFinalizationEarly
	ErrNoResolution      error = CodeNoResolution
)

// ErrValueOutOfRange rejects parameter values the BIGINT columns cannot hold.
// It is not a state machine code.
var ErrValueOutOfRange = errors.New("resolution: value exceeds 9223372036854775807")

// CodeOf extracts the rejection code from err, if any.
func CodeOf(err error) (Code, bool) {
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return 0, false
}
