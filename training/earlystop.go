package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-earlystop/snapshot"
)

// StopReason indicates why the control loop stopped producing epochs
type StopReason string

const (
	// ReasonNone indicates the loop has not stopped yet
	ReasonNone StopReason = ""
	// ReasonPlateau indicates the decay-cycle budget was exhausted without improvement
	ReasonPlateau StopReason = "plateau"
	// ReasonMaxEpochs indicates the epoch budget was reached
	ReasonMaxEpochs StopReason = "max_epochs"
	// ReasonDiverged indicates the objective became non-finite
	ReasonDiverged StopReason = "diverged"
)

// EarlyStoppingConfig configures the early stopping control loop
type EarlyStoppingConfig struct {
	Interval     int     // Epoch ticks between objective evaluations
	Patience     int     // Non-improving evaluations tolerated before a decay/stop decision
	Start        int     // Starting epoch count
	MaxIter      int     // Maximum number of epochs
	Maximize     bool    // Whether the objective is maximized or minimized
	Tolerance    float64 // Margin by which the objective must improve to count as a new best
	SwitchMode   bool    // Switch the model to inference mode around objective evaluation
	RestoreBest  bool    // Reload the best snapshot at decay and finalization boundaries
	LRDecaySteps int     // Number of decay cycles before stopping
	WarmupEpochs int     // Length of the warm-up phase; only meaningful with a scheduler pair

	Scheduler  Scheduler      // Single scheduler, stepped once per evaluation
	Schedulers *SchedulerPair // Warm-up/main scheduler pair; mutually exclusive with Scheduler

	Tracker Tracker // Optional objective sink, invoked once per epoch tick
	Logger  Logger  // Optional log channel; defaults to the standard library logger
}

// DefaultEarlyStoppingConfig returns the standard configuration
func DefaultEarlyStoppingConfig() EarlyStoppingConfig {
	return EarlyStoppingConfig{
		Interval:     5,
		Patience:     20,
		Start:        0,
		MaxIter:      1000,
		Maximize:     true,
		Tolerance:    1e-5,
		SwitchMode:   true,
		RestoreBest:  true,
		LRDecaySteps: 1,
		WarmupEpochs: 0,
	}
}

// control loop stages
const (
	stageRun = iota
	stageCycleEnd
)

// EarlyStopping drives the patience and learning-rate-decay state machine
// over an opaque model. It keeps track of the best model state observed and
// restores it at decay boundaries and at the end of the run, so the caller
// always ends up holding the best-observed state rather than whatever state
// training happened to stop in.
//
// It is a resumable, single-threaded state object driven one epoch tick at
// a time in the manner of bufio.Scanner:
//
//	es, err := training.NewEarlyStopping(model, objective, cfg)
//	for es.Next() {
//	    trainStep(model) // one training step per tick
//	}
//	if err := es.Err(); err != nil { ... }
//
// The controller assumes the caller does not mutate the model concurrently
// with a Next call. A caller that stops iterating before Next returns false
// leaves the model in the state of the last tick; best-state restoration
// only happens when the controller itself reaches a decay or finalization
// boundary
type EarlyStopping struct {
	model     Trainable
	objective Objective
	cfg       EarlyStoppingConfig
	logger    Logger

	// scheduler shape, resolved at construction
	warmupSched  Scheduler
	mainSched    Scheduler
	pairMode     bool
	warmupEpochs int

	sign            float64 // +1 when maximizing, -1 when minimizing
	epoch           int
	repeat          int
	patienceCounter int
	tick            int
	stage           int
	current         float64
	best            float64
	bestState       *snapshot.State

	done   bool
	err    error
	reason StopReason
}

// NewEarlyStopping creates the controller, evaluates the objective once to
// seed the best value, and takes the first best-state snapshot
func NewEarlyStopping(model Trainable, objective Objective, cfg EarlyStoppingConfig) (*EarlyStopping, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if objective == nil {
		return nil, fmt.Errorf("objective cannot be nil")
	}
	if cfg.Interval < 1 {
		return nil, fmt.Errorf("interval must be at least 1, got %d", cfg.Interval)
	}
	if cfg.Patience < 0 {
		return nil, fmt.Errorf("patience cannot be negative, got %d", cfg.Patience)
	}
	if cfg.LRDecaySteps < 1 {
		return nil, fmt.Errorf("lr decay steps must be at least 1, got %d", cfg.LRDecaySteps)
	}
	if cfg.WarmupEpochs < 0 {
		return nil, fmt.Errorf("warmup epochs cannot be negative, got %d", cfg.WarmupEpochs)
	}
	if cfg.Scheduler != nil && cfg.Schedulers != nil {
		return nil, fmt.Errorf("provide either a single scheduler or a scheduler pair, not both")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = stdLogger{}
	}

	sign := -1.0
	if cfg.Maximize {
		sign = 1.0
	}

	es := &EarlyStopping{
		model:        model,
		objective:    objective,
		cfg:          cfg,
		logger:       logger,
		sign:         sign,
		epoch:        cfg.Start,
		warmupEpochs: cfg.WarmupEpochs,
		stage:        stageRun,
	}

	// resolve the scheduler shape: single scheduler, or warm-up/main pair
	if cfg.Schedulers != nil {
		es.pairMode = true
		es.warmupSched = cfg.Schedulers.Warmup
		es.mainSched = cfg.Schedulers.Main
		if es.warmupSched == nil {
			logger.Warnf("Provided warm up scheduler is nil. Warm up epochs set to %d. Setting number of warm up epochs to 0", es.warmupEpochs)
			es.warmupEpochs = 0
		}
	} else {
		es.mainSched = cfg.Scheduler
	}

	if es.pairMode && es.warmupEpochs == 0 {
		logger.Warnf("Warm up scheduler is provided, but number of warm up epochs is set to 0")
	} else if !es.pairMode && es.warmupEpochs > 0 {
		logger.Warnf("Number of warm up epochs is set to %d, but no warm up scheduler is provided", es.warmupEpochs)
	}

	es.current = es.evaluate()
	es.best = es.current

	state, err := snapshot.Capture(model)
	if err != nil {
		return nil, err
	}
	es.bestState = state

	return es, nil
}

// Next advances the loop by one epoch tick. It returns true when the caller
// should run one more training step, and false once the loop has finalized
// (or failed; see Err). Between ticks the controller evaluates the
// objective every Interval epochs, steps the scheduler, updates the
// patience and best-state bookkeeping, and performs decay and finalization
// transitions
func (es *EarlyStopping) Next() bool {
	if es.done {
		return false
	}

	for {
		switch es.stage {
		case stageRun:
			if es.tick == 0 && !(es.patienceCounter < es.cfg.Patience && es.epoch < es.cfg.MaxIter) {
				es.stage = stageCycleEnd
				continue
			}

			if es.tick < es.cfg.Interval {
				es.tick++
				es.epoch++
				if !isFinite(es.current) {
					// divergence short-circuits everything for this tick,
					// including the tracker report and the yield
					es.logger.Warnf("Objective is not finite. Stopping training")
					es.reason = ReasonDiverged
					es.stop(es.finalize())
					return false
				}
				if es.cfg.Tracker != nil {
					es.cfg.Tracker.LogObjective(es.current)
				}
				return true
			}

			// interval exhausted: re-evaluate and update bookkeeping
			es.tick = 0
			es.current = es.evaluate()
			es.stepScheduler()
			if err := es.updateBest(); err != nil {
				es.stop(err)
				return false
			}

		case stageCycleEnd:
			if es.epoch < es.cfg.MaxIter && es.cfg.LRDecaySteps > 1 {
				if err := es.decay(); err != nil {
					es.stop(err)
					return false
				}
			}
			es.repeat++
			if es.repeat < es.cfg.LRDecaySteps {
				es.patienceCounter = 0
				es.tick = 0
				es.stage = stageRun
				continue
			}

			if es.epoch >= es.cfg.MaxIter {
				es.reason = ReasonMaxEpochs
			} else {
				es.reason = ReasonPlateau
			}
			es.stop(es.finalize())
			return false
		}
	}
}

// Epoch returns the epoch of the current tick
func (es *EarlyStopping) Epoch() int {
	return es.epoch
}

// Objective returns the objective value of the current tick
func (es *EarlyStopping) Objective() float64 {
	return es.current
}

// Best returns the best objective value observed so far
func (es *EarlyStopping) Best() float64 {
	return es.best
}

// Err returns the first error encountered while driving the loop, if any.
// Divergence is not an error; it is reported through Reason
func (es *EarlyStopping) Err() error {
	return es.err
}

// Reason returns why the loop stopped, or ReasonNone while it is running
func (es *EarlyStopping) Reason() StopReason {
	return es.reason
}

// evaluate runs the objective, switching the model into inference mode
// around the call if configured and restoring the exact prior mode after
func (es *EarlyStopping) evaluate() float64 {
	if es.cfg.SwitchMode {
		prev := es.model.IsTraining()
		es.model.SetTrainingMode(false)
		defer es.model.SetTrainingMode(prev)
	}
	return es.objective(es.model)
}

// stepScheduler advances the learning-rate schedule for one evaluation.
// During warm-up only the warm-up scheduler steps; afterwards the main
// scheduler steps, receiving the current objective if it is the
// plateau-reactive variant. A pair with an absent main slot is a no-op
// outside warm-up
func (es *EarlyStopping) stepScheduler() {
	if es.pairMode && es.warmupSched != nil && es.epoch < es.warmupEpochs {
		es.warmupSched.Step()
		return
	}
	if es.mainSched == nil {
		return
	}
	if ms, ok := es.mainSched.(MetricScheduler); ok {
		ms.StepMetric(es.current)
		return
	}
	es.mainSched.Step()
}

// updateBest compares the freshly evaluated objective against the best
// observed value under the sign convention and updates the snapshot and
// patience bookkeeping
func (es *EarlyStopping) updateBest() error {
	if es.sign*es.current > es.sign*es.best+es.cfg.Tolerance {
		es.logger.Infof("[%03d|%02d/%02d] ---> %v", es.epoch, es.patienceCounter, es.cfg.Patience, es.current)
		state, err := snapshot.Capture(es.model)
		if err != nil {
			return err
		}
		es.bestState = state
		es.best = es.current
		es.patienceCounter = 0
	} else {
		es.patienceCounter++
		es.logger.Infof("[%03d|%02d/%02d] ---> %v", es.epoch, es.patienceCounter, es.cfg.Patience, es.current)
	}
	return nil
}

// decay is the hand-off point between decay cycles: the scheduler's own
// decay action has already been applied by the step call, so all that is
// left is to put the model back onto its best-known state
func (es *EarlyStopping) decay() error {
	old := es.evaluate()
	if es.cfg.RestoreBest {
		if err := snapshot.Restore(es.model, es.bestState); err != nil {
			return err
		}
		es.logger.Infof("Restoring best model after lr decay! %.6f ---> %.6f", old, es.evaluate())
	}
	return nil
}

// finalize ends the run, restoring the best snapshot when configured
func (es *EarlyStopping) finalize() error {
	old := es.evaluate()
	if es.cfg.RestoreBest {
		if err := snapshot.Restore(es.model, es.bestState); err != nil {
			return err
		}
		es.logger.Infof("Restoring best model! %.6f ---> %.6f", old, es.evaluate())
	} else {
		es.logger.Infof("Final best model! objective %.6f", old)
	}
	return nil
}

// stop marks the loop finished, recording err if non-nil
func (es *EarlyStopping) stop(err error) {
	if err != nil && es.err == nil {
		es.err = err
	}
	es.done = true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
