// Package pipeline chains the upload, extract, and reconcile stages into one
// run that halts at the first failing stage.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Stage is one step of a pipeline run.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// StageStatus is the outcome of a stage.
type StageStatus string

// Stage outcomes.
const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records how one stage went.
type StageResult struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// RunResult is the summary of a pipeline run.
type RunResult struct {
	RunID  string        `json:"run_id"`
	Stages []StageResult `json:"stages"`
}

// Failed returns the first failed stage, if any.
func (r *RunResult) Failed() (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return s, true
		}
	}
	return StageResult{}, false
}

// Runner executes stages in order.
type Runner struct {
	stages []Stage
}

// NewRunner creates a Runner over stages.
func NewRunner(stages ...Stage) *Runner {
	return &Runner{stages: stages}
}

// Run executes each stage sequentially. The first failure stops the run:
// later stages are recorded as skipped and the stage error is returned.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: starting run", zap.Int("stages", len(r.stages)))

	var runErr error
	for _, stage := range r.stages {
		name := stage.Name()
		if runErr != nil {
			result.Stages = append(result.Stages, StageResult{Name: name, Status: StageSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = eris.Wrapf(err, "pipeline: cancelled before %s", name)
			result.Stages = append(result.Stages, StageResult{Name: name, Status: StageSkipped})
			continue
		}

		log.Info("pipeline: running stage", zap.String("stage", name))
		start := time.Now()
		err := stage.Run(ctx)
		sr := StageResult{Name: name, Duration: time.Since(start).Milliseconds()}

		if err != nil {
			sr.Status = StageFailed
			sr.Error = err.Error()
			runErr = eris.Wrapf(err, "pipeline: stage %s", name)
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", sr.Duration),
				zap.Error(err),
			)
		} else {
			sr.Status = StageComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", sr.Duration),
			)
		}
		result.Stages = append(result.Stages, sr)
	}

	if runErr != nil {
		return result, runErr
	}
	log.Info("pipeline: run complete")
	return result, nil
}
