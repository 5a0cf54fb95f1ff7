package granite

import "sync"

// maxAccumulatedSteps bounds how many fixed steps a single frame may trigger,
// preventing the spiral of death after a long stall.
const maxAccumulatedSteps = 8

// Accumulator converts variable frame time into a whole number of fixed
// timesteps and an interpolation alpha for rendering between them.
// Safe for concurrent use.
type Accumulator struct {
	mu            sync.Mutex
	accumulated   float64
	FixedTimestep float64
}

// NewAccumulator creates an accumulator for the given fixed timestep.
func NewAccumulator(fixedTimestep float64) *Accumulator {
	return &Accumulator{FixedTimestep: fixedTimestep}
}

// Accumulate adds frame time and returns the number of fixed steps to run.
func (a *Accumulator) Accumulate(delta float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.accumulated += delta
	if a.accumulated > a.FixedTimestep*maxAccumulatedSteps {
		a.accumulated = a.FixedTimestep * maxAccumulatedSteps
	}

	steps := int(a.accumulated / a.FixedTimestep)
	a.accumulated -= float64(steps) * a.FixedTimestep

	return steps
}

// Alpha returns how far between fixed steps the simulation is, in [0, 1).
func (a *Accumulator) Alpha() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.accumulated / a.FixedTimestep
}

// Reset drops any accumulated time.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.accumulated = 0
}
