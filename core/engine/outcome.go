package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type OutcomeKind int

const (
	OutcomeIncluded OutcomeKind = iota
	OutcomeDryRun
	OutcomeNonceInvalid
	OutcomeFatal
	OutcomeAborted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIncluded:
		return "included"
	case OutcomeDryRun:
		return "dry_run"
	case OutcomeNonceInvalid:
		return "nonce_invalid"
	case OutcomeFatal:
		return "fatal"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the terminal state of a run. The caller decides what to do with it; the
// engine never exits the process.
type Outcome struct {
	Kind        OutcomeKind
	BundleHash  common.Hash
	TargetBlock uint64
	Attempts    int
	Err         error
}

// ExitCode maps the outcome to a process exit status: 0 for inclusion or a finished dry
// run, 1 for everything else.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeIncluded, OutcomeDryRun:
		return 0
	default:
		return 1
	}
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return o.Kind.String()
}

func fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}
