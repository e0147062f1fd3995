package resolution

import (
	"unicode/utf8"

	"leaseflow/ledger"
)

const (
	MaxOutcomeLen   = 256
	MaxRationaleLen = 512
)

// Resolution is the mediator's proposed outcome for one dispute and its
// lifecycle flags. Final records are immutable.
type Resolution struct {
	Mediator     string
	Outcome      string
	Rationale    string
	ResolvedAt   uint64
	Appealed     bool
	AppealsCount uint64
	Final        bool
	FeePaid      bool
}

// Params are the administrative parameters applied to every dispute at the
// moment an operation executes.
type Params struct {
	AppealWindow  uint64
	MaxAppeals    uint64
	ResolutionFee uint64
}

// DefaultParams mirrors the values seeded by the initial migration.
func DefaultParams() Params {
	return Params{AppealWindow: 43200, MaxAppeals: 1, ResolutionFee: 500}
}

// Env is the per-operation input the ledger environment supplies.
type Env struct {
	Caller string
	Height uint64
	Params Params
}

// Decision is the engine's answer to an accepted operation: the record to
// store and the transfers that must succeed before it is stored.
type Decision struct {
	Resolution Resolution
	Transfers  []ledger.Transfer
}

// windowEnd returns resolvedAt + window, saturating at the max height.
func windowEnd(resolvedAt, window uint64) uint64 {
	end := resolvedAt + window
	if end < resolvedAt {
		return ^uint64(0)
	}
	return end
}

// validText accepts 1..max ASCII characters. Any byte outside ASCII rejects
// the whole string, so byte length equals character length.
func validText(s string, max int) bool {
	if len(s) < 1 || len(s) > max {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
