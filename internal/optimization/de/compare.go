package de

import "github.com/Median-Group/differential-evolution2/internal/optimization"

// TiePolicy decides whether a trial whose cost equals the target's replaces it.
type TiePolicy int

const (
	// AcceptOnTie lets an equally good trial move the candidate.
	AcceptOnTie TiePolicy = iota
	// RejectOnTie keeps the target unless the trial is strictly better.
	RejectOnTie
)

func (p TiePolicy) String() string {
	switch p {
	case AcceptOnTie:
		return "accept"
	case RejectOnTie:
		return "reject"
	default:
		return "unknown"
	}
}

// CompareCosts orders costs totally: finite values numerically, and every
// non-finite value after all finite ones and equal to the other non-finite
// values. It returns -1, 0 or +1.
func CompareCosts(a, b float64) int {
	fa, fb := optimization.IsFinite(a), optimization.IsFinite(b)
	switch {
	case fa && fb:
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	case fa:
		return -1
	case fb:
		return 1
	default:
		return 0
	}
}

// accepts reports whether a trial with cost trial replaces a target with
// cost target.
func (p TiePolicy) accepts(trial, target float64) bool {
	c := CompareCosts(trial, target)
	if p == RejectOnTie {
		return c < 0
	}
	return c <= 0
}
