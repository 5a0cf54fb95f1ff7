package granite

import (
	"math"

	"github.com/akmonengine/granite/actor"
	"github.com/akmonengine/granite/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// Primal solver: one local Newton step per body per iteration, holding all
// other bodies fixed.
//
//	H*dx = f
//	f = -(M/dt²)(x - y) - Σ Jᵀ clamp(k*C_reg + λ, bounds)
//	H = M/dt² + Σ (k*JᵀJ + G̃)
//
// G̃ is a diagonal bound on the curvature term, which keeps H positive
// definite where the exact Hessian would not be.

// solveBody assembles and solves the local system for one dynamic body and
// applies the resulting position/rotation delta in place.
func (w *World) solveBody(body *actor.RigidBody, constraints []*constraint.Constraint, dt float64) {
	massDt2 := body.Mass / (dt * dt)

	// Inertial restoring force toward the predicted pose y.
	fLin := body.InertialPose.Position.Sub(body.Pose.Position).Mul(massDt2)

	rotErr := rotationDelta(body.Pose.Rotation, body.InertialPose.Rotation)
	inertiaWorld := body.InertiaWorld()
	fAng := inertiaWorld.Mul3x1(rotErr).Mul(-1.0 / (dt * dt))

	var h Mat6
	h.addScaledIdentity3(massDt2)
	h.addAngularBlock(inertiaWorld.Mul(1.0 / (dt * dt)))

	for _, c := range constraints {
		rows := c.Rows()
		forces := c.RowForces(w.Config.Alpha)
		jac := c.JacobianFor(body)

		for r := 0; r < rows; r++ {
			j := vec6(jac[r].Lin, jac[r].Ang)
			lambda := forces[r]

			fLin = fLin.Sub(jac[r].Lin.Mul(lambda))
			fAng = fAng.Sub(jac[r].Ang.Mul(lambda))

			h.addOuterScaled(j, c.K[r])

			// Diagonal curvature bound over the angular DOFs; second
			// derivatives of the linear part vanish.
			s := math.Abs(lambda)
			for i := 0; i < 3; i++ {
				h.addDiag(3+i, s*math.Abs(jac[r].Ang[i]))
			}
		}
	}

	dx, ok := solveLDL(h, vec6(fLin, fAng))
	if !ok {
		// Singular system: contained to this body, never aborts the step.
		w.singularFallbacks.Add(1)
		return
	}

	body.ApplyDelta(dx.Lin(), dx.Ang())
}

// rotationDelta returns the tangent-space difference 2*vec(q*r⁻¹) between two
// orientations, the rotational analogue of x - y.
func rotationDelta(q, r mgl64.Quat) mgl64.Vec3 {
	qDelta := q.Mul(r.Conjugate())
	if qDelta.W < 0 {
		return qDelta.V.Mul(-2.0)
	}
	return qDelta.V.Mul(2.0)
}
