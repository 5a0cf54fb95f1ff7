package constraint

import (
	"math"

	"github.com/akmonengine/granite/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Contact row layout: row 0 is the normal row, rows 1-2 the friction rows
// along the tangent basis.

// NewContact builds a contact constraint from one collision-detection record.
// point is the world contact point, normal points from B to A, depth is
// positive when the surfaces overlap. slop is the activation margin: the
// normal row engages while the surface gap is below slop, which is what lets
// resting bodies settle just above their contact surface instead of sinking
// in before any force appears.
func NewContact(bodyA, bodyB *actor.RigidBody, point, normal mgl64.Vec3, depth, friction, slop float64, pairKey uint64) *Constraint {
	// Anchor a material point on each surface so the value function can track
	// both normal separation and tangential drift as the bodies move.
	wa := point.Sub(normal.Mul(depth * 0.5))
	wb := point.Add(normal.Mul(depth * 0.5))

	tangent, bitangent := tangentBasis(normal)

	return &Constraint{
		Kind:        KindContact,
		BodyA:       bodyA,
		BodyB:       bodyB,
		Key:         PersistenceKey{Pair: pairKey},
		LocalPointA: bodyA.Pose.Rotation.Conjugate().Rotate(wa.Sub(bodyA.Pose.Position)),
		LocalPointB: bodyB.Pose.Rotation.Conjugate().Rotate(wb.Sub(bodyB.Pose.Position)),
		Normal:      normal,
		Tangent:     tangent,
		Bitangent:   bitangent,
		Friction:    friction,
		Slop:        slop,
	}
}

func contactValue(c *Constraint) Values {
	wa := worldPoint(c.BodyA, c.LocalPointA)
	wb := worldPoint(c.BodyB, c.LocalPointB)
	separation := wa.Sub(wb)

	var v Values
	// Positive when penetrating past the slop margin, negative once separated.
	v[0] = c.Slop - separation.Dot(c.Normal)
	// Tangential drift of the anchored material points since contact creation.
	v[1] = separation.Dot(c.Tangent)
	v[2] = separation.Dot(c.Bitangent)

	return v
}

func contactJacobian(c *Constraint, body *actor.RigidBody) Jacobian {
	var local mgl64.Vec3
	sign := 1.0
	if body == c.BodyA {
		local = c.LocalPointA
	} else {
		local = c.LocalPointB
		sign = -1.0
	}
	r := body.Pose.Rotation.Rotate(local)

	var j Jacobian
	// Normal row carries the opposite sign of the friction rows because the
	// value is slop minus the normal separation.
	j[0] = Row{Lin: c.Normal.Mul(-sign), Ang: r.Cross(c.Normal).Mul(-sign)}
	j[1] = Row{Lin: c.Tangent.Mul(sign), Ang: r.Cross(c.Tangent).Mul(sign)}
	j[2] = Row{Lin: c.Bitangent.Mul(sign), Ang: r.Cross(c.Bitangent).Mul(sign)}

	return j
}

// contactBounds keeps the normal row one-sided and boxes the friction rows by
// the normal multiplier of the previous dual update times the friction
// coefficient. The lagged coupling is deliberate: it trades a small accuracy
// loss for a solver that never has to project onto the friction cone.
func contactBounds(c *Constraint) (lo, hi Values) {
	maxFriction := c.Friction * math.Max(c.Lambda[0], 0)

	lo[0], hi[0] = 0, math.Inf(1)
	lo[1], hi[1] = -maxFriction, maxFriction
	lo[2], hi[2] = -maxFriction, maxFriction

	return lo, hi
}

// tangentBasis builds an orthonormal frame around a unit normal.
func tangentBasis(normal mgl64.Vec3) (tangent, bitangent mgl64.Vec3) {
	reference := mgl64.Vec3{1, 0, 0}
	if math.Abs(normal.X()) > 0.9 {
		reference = mgl64.Vec3{0, 1, 0}
	}

	tangent = normal.Cross(reference).Normalize()
	bitangent = normal.Cross(tangent)

	return tangent, bitangent
}
