package constraint

import "math"

// Dual/stiffness updater. Each constraint owns its multipliers and stiffness;
// updates read committed body positions and write only the constraint's own
// state, so they run in parallel across all constraints without locking.

// CaptureReference snapshots C(x) at the start of the step. The regularized
// value C_reg = C - alpha*C0 bounds how much residual error from a finite
// iteration budget can inject energy into the system.
func (c *Constraint) CaptureReference() {
	c.C0 = c.Value()
}

// Regularized returns C_reg(x) = C(x) - alpha*C0.
func (c *Constraint) Regularized(alpha float64) Values {
	v := c.Value()
	for i := 0; i < c.Rows(); i++ {
		v[i] -= alpha * c.C0[i]
	}
	return v
}

// UpdateDual performs one dual iteration:
//
//	lambda <- clamp(k*C_reg + lambda, bounds)
//	k      <- k + beta*|C_reg|
//
// Bounds are snapshotted before any row is written, so the friction rows see
// the normal multiplier of the previous iteration.
func (c *Constraint) UpdateDual(alpha, beta float64) {
	creg := c.Regularized(alpha)
	lo, hi := c.Bounds()

	for i := 0; i < c.Rows(); i++ {
		c.Lambda[i] = clamp(c.K[i]*creg[i]+c.Lambda[i], lo[i], hi[i])
		c.K[i] += beta * math.Abs(creg[i])
	}
}

// Warmstart seeds the dual state from the previous frame's state for the same
// persistence key:
//
//	k0      <- max(gamma*k_prev, kStart)
//	lambda0 <- alpha*gamma*lambda_prev
//
// A nil prev starts the constraint cold.
func (c *Constraint) Warmstart(prev *DualState, alpha, gamma, kStart float64) {
	if prev == nil {
		for i := 0; i < c.Rows(); i++ {
			c.Lambda[i] = 0
			c.K[i] = kStart
		}
		return
	}

	for i := 0; i < c.Rows(); i++ {
		c.Lambda[i] = alpha * gamma * prev.Lambda[i]
		c.K[i] = math.Max(gamma*prev.K[i], kStart)
	}
}

// State exports the dual state carried to the next frame.
func (c *Constraint) State() DualState {
	return DualState{Lambda: c.Lambda, K: c.K}
}

// RowForces returns the clamped per-row force magnitudes used by the primal
// update: clamp(k*C_reg + lambda, bounds).
func (c *Constraint) RowForces(alpha float64) Values {
	creg := c.Regularized(alpha)
	lo, hi := c.Bounds()

	var out Values
	for i := 0; i < c.Rows(); i++ {
		out[i] = clamp(c.K[i]*creg[i]+c.Lambda[i], lo[i], hi[i])
	}
	return out
}
