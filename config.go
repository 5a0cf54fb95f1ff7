package granite

import "github.com/go-gl/mathgl/mgl64"

// Config is the solver configuration: plain numeric fields, no environment
// variables or file formats at this level.
type Config struct {
	// Dt is the fixed timestep in seconds.
	Dt float64
	// Iterations is the fixed primal/dual iteration budget per step.
	// A step always runs the full budget; there is no early exit.
	Iterations int
	// Beta is the stiffness ramp rate: k grows by Beta*|C_reg| per iteration.
	Beta float64
	// Alpha in [0,1] is the regularization factor limiting how much residual
	// error from a finite iteration budget can inject energy into the system.
	Alpha float64
	// Gamma in [0,1) is the warmstart decay applied to the previous frame's
	// dual state.
	Gamma float64
	// KStart is the initial constraint stiffness. Stiffness never drops
	// below it.
	KStart float64
	// Gravity acceleration (m/s²).
	Gravity mgl64.Vec3
	// MaxLinearVelocity and MaxAngularVelocity are safety clamps applied
	// during validation; exceeding them marks the step Unstable.
	MaxLinearVelocity  float64
	MaxAngularVelocity float64
	// ContactSlop is the activation margin of contact constraints: the
	// normal row engages while the surface gap is below this distance.
	ContactSlop float64
	// Workers is the fork-join worker count for the parallel phases.
	Workers int
}

// DefaultConfig returns tuned defaults for stacking and jointed scenes at
// 60 Hz.
func DefaultConfig() Config {
	return Config{
		Dt:                 1.0 / 60.0,
		Iterations:         20,
		Beta:               1e5,
		Alpha:              0.95,
		Gamma:              0.99,
		KStart:             1e4,
		Gravity:            mgl64.Vec3{0, -9.81, 0},
		MaxLinearVelocity:  100.0,
		MaxAngularVelocity: 100.0,
		ContactSlop:        0.005,
		Workers:            1,
	}
}
