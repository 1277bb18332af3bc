package loader

import (
	"fmt"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

type GeneReason string

const (
	GeneZero     GeneReason = "no gene matched"
	GeneMultiple GeneReason = "more than one gene matched"
)

// UnresolvedGeneError is raised when a closest-gene or target-gene lookup does not return
// exactly one gene.
type UnresolvedGeneError struct {
	Line    int
	Query   string
	Reason  GeneReason
	Matches []model.GeneRef
}

func (e *UnresolvedGeneError) Error() string {
	msg := fmt.Sprintf("gene %s: %s", e.Query, e.Reason)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if len(e.Matches) > 1 {
		names := make([]string, len(e.Matches))
		for i, g := range e.Matches {
			names[i] = fmt.Sprintf("%s(%d)", g.Name, g.ID)
		}
		msg += " [" + strings.Join(names, ", ") + "]"
	}
	return msg
}

// UnresolvedFeatureError is raised when an observation's source locus matches no feature of
// the analysed experiment.
type UnresolvedFeatureError struct {
	Line       int
	Experiment string
	Locus      string
}

func (e *UnresolvedFeatureError) Error() string {
	return fmt.Sprintf("line %d: no feature at %s in experiment %s", e.Line, e.Locus, e.Experiment)
}

// LoadError wraps any failure with the run it ended and the state it failed in.
type LoadError struct {
	RunID string
	Kind  Kind
	State State
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s load %s failed in %s: %v", e.Kind, e.RunID, e.State, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
