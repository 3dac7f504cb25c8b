package training

import (
	"math"
)

// Scheduler advances a learning-rate schedule by one evaluation step.
// Schedulers are stateful: each Step call moves the schedule forward and
// pushes the resulting learning rate into the attached LRSink
type Scheduler interface {
	Step()
}

// MetricScheduler is implemented by plateau-reactive schedulers whose step
// decision requires the current objective value. The controller detects
// this capability at runtime and passes the objective to StepMetric
// instead of calling Step
type MetricScheduler interface {
	StepMetric(objective float64)
}

// LRSink receives learning-rate updates from a scheduler. Optimizers
// implement it
type LRSink interface {
	SetLearningRate(lr float64)
}

// SchedulerPair couples a warm-up scheduler with the main scheduler.
// The warm-up scheduler is stepped while the epoch count is below the
// configured number of warm-up epochs; afterwards the main scheduler takes
// over. Main may be nil if no schedule is desired after warm-up
type SchedulerPair struct {
	Warmup Scheduler
	Main   Scheduler
}

// StepLR reduces the learning rate by a factor of gamma every stepSize steps
type StepLR struct {
	sink     LRSink
	baseLR   float64
	stepSize int
	gamma    float64
	step     int
}

// NewStepLR creates a step learning rate scheduler
func NewStepLR(sink LRSink, baseLR float64, stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 30 // Default: reduce every 30 steps
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1 // Default: reduce by 10x
	}
	return &StepLR{
		sink:     sink,
		baseLR:   baseLR,
		stepSize: stepSize,
		gamma:    gamma,
	}
}

func (s *StepLR) Step() {
	s.step++
	times := s.step / s.stepSize
	s.sink.SetLearningRate(s.baseLR * math.Pow(s.gamma, float64(times)))
}

// ExponentialLR decays the learning rate by gamma every step
type ExponentialLR struct {
	sink   LRSink
	baseLR float64
	gamma  float64
	step   int
}

// NewExponentialLR creates an exponential learning rate scheduler
func NewExponentialLR(sink LRSink, baseLR float64, gamma float64) *ExponentialLR {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95 // Default: 5% reduction per step
	}
	return &ExponentialLR{
		sink:   sink,
		baseLR: baseLR,
		gamma:  gamma,
	}
}

func (s *ExponentialLR) Step() {
	s.step++
	s.sink.SetLearningRate(s.baseLR * math.Pow(s.gamma, float64(s.step)))
}

// CosineAnnealingLR anneals the learning rate along a cosine curve from the
// base rate down to etaMin over tMax steps
type CosineAnnealingLR struct {
	sink   LRSink
	baseLR float64
	tMax   int
	etaMin float64
	step   int
}

// NewCosineAnnealingLR creates a cosine annealing scheduler
func NewCosineAnnealingLR(sink LRSink, baseLR float64, tMax int, etaMin float64) *CosineAnnealingLR {
	if tMax <= 0 {
		tMax = 100 // Default: 100 steps
	}
	if etaMin < 0 {
		etaMin = 0 // Default: anneal to 0
	}
	return &CosineAnnealingLR{
		sink:   sink,
		baseLR: baseLR,
		tMax:   tMax,
		etaMin: etaMin,
	}
}

func (s *CosineAnnealingLR) Step() {
	s.step++
	if s.step >= s.tMax {
		s.sink.SetLearningRate(s.etaMin)
		return
	}
	lr := s.etaMin + (s.baseLR-s.etaMin)*(1+math.Cos(math.Pi*float64(s.step)/float64(s.tMax)))/2
	s.sink.SetLearningRate(lr)
}

// LambdaLR scales the base learning rate by a caller-supplied factor of the
// current step count. This is the usual building block for warm-up ramps
type LambdaLR struct {
	sink   LRSink
	baseLR float64
	factor func(step int) float64
	step   int
}

// NewLambdaLR creates a lambda learning rate scheduler
func NewLambdaLR(sink LRSink, baseLR float64, factor func(step int) float64) *LambdaLR {
	return &LambdaLR{
		sink:   sink,
		baseLR: baseLR,
		factor: factor,
	}
}

func (s *LambdaLR) Step() {
	lr := s.baseLR * s.factor(s.step)
	s.step++
	s.sink.SetLearningRate(lr)
}

// WarmupFactor returns a lambda for NewLambdaLR that doubles the learning
// rate each step until it reaches the base rate after warmupSteps steps
func WarmupFactor(warmupSteps int) func(step int) float64 {
	return func(step int) float64 {
		return 1 / math.Pow(2, float64(warmupSteps-step-1))
	}
}

// ReduceLROnPlateau reduces the learning rate when the tracked objective
// has stopped improving. This is the plateau-reactive scheduler variant:
// its step decision needs the current objective, so it implements
// MetricScheduler. Step without a metric leaves the schedule unchanged
type ReduceLROnPlateau struct {
	sink      LRSink
	factor    float64
	patience  int
	threshold float64
	maximize  bool

	bestMetric  float64
	badEpochs   int
	currentLR   float64
	initialized bool
}

// NewReduceLROnPlateau creates a plateau-based scheduler. Set maximize to
// match the direction of the objective being tracked
func NewReduceLROnPlateau(sink LRSink, baseLR float64, factor float64, patience int, threshold float64, maximize bool) *ReduceLROnPlateau {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	return &ReduceLROnPlateau{
		sink:      sink,
		factor:    factor,
		patience:  patience,
		threshold: threshold,
		maximize:  maximize,
		currentLR: baseLR,
	}
}

// StepMetric updates the plateau state with the current objective and
// reduces the learning rate after patience consecutive bad steps
func (s *ReduceLROnPlateau) StepMetric(objective float64) {
	if !s.initialized {
		s.bestMetric = objective
		s.initialized = true
		s.sink.SetLearningRate(s.currentLR)
		return
	}

	improved := false
	if s.maximize {
		improved = objective > s.bestMetric+s.threshold
	} else {
		improved = objective < s.bestMetric-s.threshold
	}

	if improved {
		s.bestMetric = objective
		s.badEpochs = 0
	} else {
		s.badEpochs++
		if s.badEpochs >= s.patience {
			s.currentLR *= s.factor
			s.badEpochs = 0
		}
	}

	s.sink.SetLearningRate(s.currentLR)
}

// Step satisfies Scheduler for drivers that cannot supply a metric.
// The learning rate is left unchanged
func (s *ReduceLROnPlateau) Step() {
	s.sink.SetLearningRate(s.currentLR)
}

// LR returns the current learning rate tracked by the scheduler
func (s *ReduceLROnPlateau) LR() float64 {
	return s.currentLR
}
