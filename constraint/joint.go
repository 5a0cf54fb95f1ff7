package constraint

import (
	"github.com/akmonengine/granite/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Joints are equality constraints with a stable identity, defined once and
// persisting across steps; their multipliers are unbounded.

// NewBallJoint pins a world-space anchor point to both bodies (3 rows).
func NewBallJoint(id uuid.UUID, bodyA, bodyB *actor.RigidBody, worldAnchor mgl64.Vec3) *Constraint {
	return &Constraint{
		Kind:         KindBallJoint,
		BodyA:        bodyA,
		BodyB:        bodyB,
		Key:          PersistenceKey{Joint: id},
		LocalAnchorA: bodyA.Pose.Rotation.Conjugate().Rotate(worldAnchor.Sub(bodyA.Pose.Position)),
		LocalAnchorB: bodyB.Pose.Rotation.Conjugate().Rotate(worldAnchor.Sub(bodyB.Pose.Position)),
	}
}

// NewHingeJoint pins an anchor point and keeps a world axis shared between
// the bodies (3 positional rows + 2 axis-alignment rows). The axis must be
// unit length.
func NewHingeJoint(id uuid.UUID, bodyA, bodyB *actor.RigidBody, worldAnchor, worldAxis mgl64.Vec3) *Constraint {
	// Freeze a basis perpendicular to the axis in B's frame; the alignment
	// rows measure how far A's axis tilts out of that basis plane.
	perp1, perp2 := tangentBasis(worldAxis)

	invRotB := bodyB.Pose.Rotation.Conjugate()

	return &Constraint{
		Kind:         KindHingeJoint,
		BodyA:        bodyA,
		BodyB:        bodyB,
		Key:          PersistenceKey{Joint: id},
		LocalAnchorA: bodyA.Pose.Rotation.Conjugate().Rotate(worldAnchor.Sub(bodyA.Pose.Position)),
		LocalAnchorB: invRotB.Rotate(worldAnchor.Sub(bodyB.Pose.Position)),
		LocalAxisA:   bodyA.Pose.Rotation.Conjugate().Rotate(worldAxis),
		LocalPerpB1:  invRotB.Rotate(perp1),
		LocalPerpB2:  invRotB.Rotate(perp2),
	}
}

// NewFixedJoint welds the two bodies together at B's current position
// (3 positional rows + 3 orientation rows).
func NewFixedJoint(id uuid.UUID, bodyA, bodyB *actor.RigidBody) *Constraint {
	worldAnchor := bodyB.Pose.Position

	return &Constraint{
		Kind:         KindFixedJoint,
		BodyA:        bodyA,
		BodyB:        bodyB,
		Key:          PersistenceKey{Joint: id},
		LocalAnchorA: bodyA.Pose.Rotation.Conjugate().Rotate(worldAnchor.Sub(bodyA.Pose.Position)),
		LocalAnchorB: mgl64.Vec3{},
		RestRotation: bodyA.Pose.Rotation.Conjugate().Mul(bodyB.Pose.Rotation),
	}
}

func ballValue(c *Constraint) Values {
	wa := worldPoint(c.BodyA, c.LocalAnchorA)
	wb := worldPoint(c.BodyB, c.LocalAnchorB)
	delta := wa.Sub(wb)

	var v Values
	v[0], v[1], v[2] = delta.X(), delta.Y(), delta.Z()

	return v
}

func ballJacobian(c *Constraint, body *actor.RigidBody) Jacobian {
	return anchorJacobian(c, body)
}

// anchorJacobian fills the three positional rows shared by every joint:
// row i is the derivative of (w_a - w_b)·e_i, so the linear block is ±e_i
// and the angular block is ±(r × e_i) for the body's lever arm r.
func anchorJacobian(c *Constraint, body *actor.RigidBody) Jacobian {
	var local mgl64.Vec3
	sign := 1.0
	if body == c.BodyA {
		local = c.LocalAnchorA
	} else {
		local = c.LocalAnchorB
		sign = -1.0
	}
	r := body.Pose.Rotation.Rotate(local)

	var j Jacobian
	for i := 0; i < 3; i++ {
		var axis mgl64.Vec3
		axis[i] = sign
		j[i] = Row{Lin: axis, Ang: r.Cross(axis)}
	}

	return j
}

func hingeValue(c *Constraint) Values {
	v := ballValue(c)

	axis := c.BodyA.Pose.Rotation.Rotate(c.LocalAxisA)
	perp1 := c.BodyB.Pose.Rotation.Rotate(c.LocalPerpB1)
	perp2 := c.BodyB.Pose.Rotation.Rotate(c.LocalPerpB2)

	v[3] = axis.Dot(perp1)
	v[4] = axis.Dot(perp2)

	return v
}

func hingeJacobian(c *Constraint, body *actor.RigidBody) Jacobian {
	j := anchorJacobian(c, body)

	axis := c.BodyA.Pose.Rotation.Rotate(c.LocalAxisA)
	perp1 := c.BodyB.Pose.Rotation.Rotate(c.LocalPerpB1)
	perp2 := c.BodyB.Pose.Rotation.Rotate(c.LocalPerpB2)

	sign := 1.0
	if body == c.BodyB {
		sign = -1.0
	}

	// d(axis·perp)/dθ_a = axis × perp, and the mirror image for body B.
	j[3] = Row{Ang: axis.Cross(perp1).Mul(sign)}
	j[4] = Row{Ang: axis.Cross(perp2).Mul(sign)}

	return j
}

func fixedValue(c *Constraint) Values {
	v := ballValue(c)

	// Orientation error relative to the rest rotation, in tangent space.
	target := c.BodyA.Pose.Rotation.Mul(c.RestRotation)
	rot := tangentSpaceDiff(target, c.BodyB.Pose.Rotation)
	v[3], v[4], v[5] = rot.X(), rot.Y(), rot.Z()

	return v
}

func fixedJacobian(c *Constraint, body *actor.RigidBody) Jacobian {
	j := anchorJacobian(c, body)

	sign := 1.0
	if body == c.BodyB {
		sign = -1.0
	}

	// First-order, world-frame approximation of the orientation rows.
	for i := 0; i < 3; i++ {
		var axis mgl64.Vec3
		axis[i] = sign
		j[3+i] = Row{Ang: axis}
	}

	return j
}
