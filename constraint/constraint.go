// Package constraint defines the constraint model of the solver: a closed set
// of variants (contact, ball joint, hinge joint, fixed joint), each knowing
// how to compute its constraint value, Jacobian and force bounds, plus the
// dual/stiffness state carried across solver iterations and steps.
package constraint

import (
	"math"

	"github.com/akmonengine/granite/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// MaxRows is the widest constraint in the set (fixed joint: 3 positional +
// 3 orientation rows).
const MaxRows = 6

// Values holds one scalar per constraint row; rows beyond Rows() are zero.
type Values [MaxRows]float64

// Kind enumerates the closed constraint variant set.
type Kind int

const (
	KindContact Kind = iota
	KindBallJoint
	KindHingeJoint
	KindFixedJoint
)

func (k Kind) String() string {
	switch k {
	case KindContact:
		return "contact"
	case KindBallJoint:
		return "ball"
	case KindHingeJoint:
		return "hinge"
	case KindFixedJoint:
		return "fixed"
	}
	return "unknown"
}

// Row is the Jacobian block of one constraint row with respect to a single
// body's 6 degrees of freedom. The angular part uses the tangent-space
// convention, so rows stay 6 wide even though orientations are quaternions.
type Row struct {
	Lin mgl64.Vec3
	Ang mgl64.Vec3
}

// Jacobian holds the per-row blocks for one body.
type Jacobian [MaxRows]Row

// PersistenceKey matches constraint state across frames for warmstarting.
// Contacts are keyed by the pair id assigned by collision detection; joints
// by their stable identity.
type PersistenceKey struct {
	Joint uuid.UUID
	Pair  uint64
}

// DualState is the only solver state carried across steps.
type DualState struct {
	Lambda Values
	K      Values
}

// Constraint is a tagged variant over the closed Kind set. Variant-specific
// behavior is dispatched through kindOps rather than an interface, keeping
// the set exhaustively matchable.
type Constraint struct {
	Kind  Kind
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
	Key   PersistenceKey

	// Dual state: Lagrange multipliers and stiffness per row.
	// Invariant: K[i] >= kStart after warmstart, monotone within a step;
	// Lambda respects the row bounds after every dual update.
	Lambda Values
	K      Values

	// Constraint value at the start of the step, reference for the
	// regularized value C_reg = C - alpha*C0.
	C0 Values

	// Contact fields
	LocalPointA mgl64.Vec3
	LocalPointB mgl64.Vec3
	Normal      mgl64.Vec3 // world space, from B to A
	Tangent     mgl64.Vec3
	Bitangent   mgl64.Vec3
	Friction    float64
	Slop        float64

	// Joint fields
	LocalAnchorA mgl64.Vec3
	LocalAnchorB mgl64.Vec3
	LocalAxisA   mgl64.Vec3 // hinge axis in A's frame
	LocalPerpB1  mgl64.Vec3 // hinge basis in B's frame, perpendicular to the axis
	LocalPerpB2  mgl64.Vec3
	RestRotation mgl64.Quat // fixed joint: q_a0^-1 * q_b0
}

type ops struct {
	rows     int
	value    func(*Constraint) Values
	jacobian func(*Constraint, *actor.RigidBody) Jacobian
	bounds   func(*Constraint) (lo, hi Values)
}

var kindOps = [...]ops{
	KindContact:    {rows: 3, value: contactValue, jacobian: contactJacobian, bounds: contactBounds},
	KindBallJoint:  {rows: 3, value: ballValue, jacobian: ballJacobian, bounds: equalityBounds},
	KindHingeJoint: {rows: 5, value: hingeValue, jacobian: hingeJacobian, bounds: equalityBounds},
	KindFixedJoint: {rows: 6, value: fixedValue, jacobian: fixedJacobian, bounds: equalityBounds},
}

// Rows returns the number of active rows for this variant.
func (c *Constraint) Rows() int {
	return kindOps[c.Kind].rows
}

// Value evaluates the constraint error C(x); zero when satisfied.
func (c *Constraint) Value() Values {
	return kindOps[c.Kind].value(c)
}

// JacobianFor returns the per-row Jacobian blocks with respect to body,
// which must be one of the two referenced bodies.
func (c *Constraint) JacobianFor(body *actor.RigidBody) Jacobian {
	return kindOps[c.Kind].jacobian(c, body)
}

// Bounds returns the per-row multiplier bounds. Friction rows are boxed by
// the normal multiplier from the previous dual update (explicit, lagged
// coupling); equality rows are unbounded.
func (c *Constraint) Bounds() (lo, hi Values) {
	return kindOps[c.Kind].bounds(c)
}

// AffectsBody reports whether body is referenced by this constraint.
func (c *Constraint) AffectsBody(body *actor.RigidBody) bool {
	return body == c.BodyA || body == c.BodyB
}

// equalityBounds leaves every row unbounded (joint rows). All MaxRows entries
// are filled so this never has to consult the dispatch table; callers only
// read the active rows anyway.
func equalityBounds(*Constraint) (lo, hi Values) {
	inf := math.Inf(1)
	for i := range lo {
		lo[i] = -inf
		hi[i] = inf
	}
	return lo, hi
}

// worldPoint transforms a body-local point to world space.
func worldPoint(body *actor.RigidBody, local mgl64.Vec3) mgl64.Vec3 {
	return body.Pose.Position.Add(body.Pose.Rotation.Rotate(local))
}

// tangentSpaceDiff returns 2*vec(q_a * q_b^-1), the first-order rotation
// between two orientations. Quaternions are not a vector space, so naive
// subtraction would not produce a usable error measure.
func tangentSpaceDiff(qa, qb mgl64.Quat) mgl64.Vec3 {
	qDelta := qa.Mul(qb.Conjugate())
	if qDelta.W < 0 {
		return qDelta.V.Mul(-2.0)
	}
	return qDelta.V.Mul(2.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
