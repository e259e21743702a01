package engine

import (
	"errors"
	"fmt"
)

// ErrStageOrder is returned when a run tries to re-enter or skip back to an
// earlier stage.
var ErrStageOrder = errors.New("stage order violated")

type Stage int

const (
	StageIdle Stage = iota
	StageIngesting
	StageEmbedding
	StageIndexing
	StageAnswering
	StageTeardown
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StageIngesting:
		return "INGESTING"
	case StageEmbedding:
		return "EMBEDDING"
	case StageIndexing:
		return "INDEXING"
	case StageAnswering:
		return "ANSWERING"
	case StageTeardown:
		return "TEARDOWN"
	case StageDone:
		return "DONE"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// run tracks the progress of one request. Stages only move forward; TEARDOWN
// may be entered from any earlier stage so cleanup happens after a failure.
type run struct {
	stage Stage
}

func (r *run) enter(next Stage) error {
	if next <= r.stage {
		return fmt.Errorf("%w: %s after %s", ErrStageOrder, next, r.stage)
	}
	if next != StageTeardown && next != StageDone && next != r.stage+1 {
		return fmt.Errorf("%w: %s after %s", ErrStageOrder, next, r.stage)
	}
	if next == StageDone && r.stage != StageTeardown {
		return fmt.Errorf("%w: %s after %s", ErrStageOrder, next, r.stage)
	}
	r.stage = next
	return nil
}

func (r *run) current() Stage {
	return r.stage
}
