package training

import (
	"log"

	"github.com/tsawler/go-earlystop/snapshot"
)

// Trainable is the minimal capability set the control loop requires from a
// model. The model stays owned by the caller; the controller only borrows
// it for the duration of the loop and is its sole mutator while running
type Trainable interface {
	snapshot.Stateful

	// SetTrainingMode switches the model between training (true) and
	// inference (false) mode
	SetTrainingMode(training bool)

	// IsTraining reports whether the model is currently in training mode
	IsTraining() bool
}

// Objective computes a scalar score for the model. It must be free of side
// effects beyond the mode switch the controller performs around it.
// A non-finite return value signals divergence and stops the run
type Objective func(model Trainable) float64

// Tracker receives the current objective value once per epoch tick.
// The controller never calls any finalize or flush operation on it;
// that lifecycle step belongs to the caller
type Tracker interface {
	LogObjective(value float64)
}

// Logger receives informational and warning messages from the controller
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// stdLogger is the default Logger backed by the standard library log package
type stdLogger struct{}

func (stdLogger) Infof(format string, args ...interface{}) {
	log.Printf("INFO: "+format, args...)
}

func (stdLogger) Warnf(format string, args ...interface{}) {
	log.Printf("WARNING: "+format, args...)
}
