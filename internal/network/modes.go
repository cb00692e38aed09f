package network

import "fmt"

// CascadeMode selects how insolvency propagates through the network.
type CascadeMode string

const (
	// Simultaneous propagates losses in waves. Within a round every bank reads
	// committed state only; pending changes are promoted together at round end.
	Simultaneous CascadeMode = "simultaneous"

	// Sequential propagates losses depth-first and applies them immediately.
	Sequential CascadeMode = "sequential"
)

// Valid returns true if the mode is a recognized value.
func (m CascadeMode) Valid() bool {
	switch m {
	case Simultaneous, Sequential:
		return true
	}
	return false
}

// String returns the string representation of the mode.
func (m CascadeMode) String() string { return string(m) }

// ParseCascadeMode converts a configuration value into a CascadeMode.
func ParseCascadeMode(s string) (CascadeMode, error) {
	m := CascadeMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown cascade mode %q (valid: simultaneous, sequential)", ErrValidation, s)
	}
	return m, nil
}

// MergeRule selects how RandomMerge picks the acquiring and acquired bank.
type MergeRule string

const (
	// MergeRandom merges two uniformly drawn distinct banks.
	MergeRandom MergeRule = "random"

	// MergeVertical lets the largest bank by merge state acquire a uniformly
	// drawn other bank.
	MergeVertical MergeRule = "vertical"

	// MergeSemihorizontal consumes a shuffled perfect pairing of the banks so
	// every bank takes part exactly once per pass.
	MergeSemihorizontal MergeRule = "semihorizontal"
)

// Valid returns true if the rule is a recognized value.
func (r MergeRule) Valid() bool {
	switch r {
	case MergeRandom, MergeVertical, MergeSemihorizontal:
		return true
	}
	return false
}

// String returns the string representation of the rule.
func (r MergeRule) String() string { return string(r) }

// ParseMergeRule converts a configuration value into a MergeRule.
func ParseMergeRule(s string) (MergeRule, error) {
	r := MergeRule(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown merge rule %q (valid: random, vertical, semihorizontal)", ErrValidation, s)
	}
	return r, nil
}

// DevaluationLaw selects the price-impact function applied by Asset.Devaluate.
type DevaluationLaw string

const (
	// DevaluationExponential multiplies the price factor by exp(-alpha*x).
	DevaluationExponential DevaluationLaw = "exponential"

	// DevaluationIdentity multiplies the price factor by x. Used for
	// deterministic tests.
	DevaluationIdentity DevaluationLaw = "identity"
)

// Valid returns true if the law is a recognized value.
func (l DevaluationLaw) Valid() bool {
	switch l {
	case DevaluationExponential, DevaluationIdentity:
		return true
	}
	return false
}

// String returns the string representation of the law.
func (l DevaluationLaw) String() string { return string(l) }

// ParseDevaluationLaw converts a configuration value into a DevaluationLaw.
func ParseDevaluationLaw(s string) (DevaluationLaw, error) {
	l := DevaluationLaw(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: unknown devaluation law %q (valid: exponential, identity)", ErrValidation, s)
	}
	return l, nil
}
