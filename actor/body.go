package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyType represents the type of rigid body
type BodyType int

const (
	// BodyTypeDynamic bodies are affected by forces, gravity, and constraints
	// They have finite mass and can move freely
	BodyTypeDynamic BodyType = iota

	// BodyTypeKinematic bodies follow their velocity but have infinite mass:
	// they push dynamic bodies and are never pushed back
	BodyTypeKinematic

	// BodyTypeStatic bodies are immovable and have infinite mass
	// They are not affected by forces or gravity (e.g., ground, walls)
	BodyTypeStatic
)

// ID identifies a rigid body within a Store.
type ID int32

// Pose is a position and orientation in world space.
// The rotation is kept unit-length after every update.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewPose creates an identity pose at the given position.
func NewPose(position mgl64.Vec3) Pose {
	return Pose{Position: position, Rotation: mgl64.QuatIdent()}
}

// Velocity groups the linear and angular velocity of a body.
type Velocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// RigidBody represents a rigid body in the physics simulation.
// Pose and velocities are mutated in place by the step driver; the body is
// otherwise owned by the world that created it.
type RigidBody struct {
	id ID

	// Spatial state
	Pose         Pose
	PrevPose     Pose // pose at the start of the current step
	InertialPose Pose // predicted pose y, target of the inertial restoring force

	// Linear motion (m/s)
	Velocity mgl64.Vec3
	// Angular motion (rad/s)
	AngularVelocity mgl64.Vec3

	// Mass properties. Static and kinematic bodies encode infinite mass as
	// InvMass == 0 rather than a literal infinity.
	Mass            float64
	InvMass         float64
	InertiaLocal    mgl64.Mat3
	InvInertiaLocal mgl64.Mat3
	invInertiaWorld mgl64.Mat3

	LinearDamping  float64 // 0.0 - 1.0, typical: 0.01
	AngularDamping float64 // 0.0 - 1.0, typical: 0.05

	BodyType BodyType

	// External force accumulators, cleared after position prediction
	accumulatedForce          mgl64.Vec3
	accumulatedTorque         mgl64.Vec3
	accumulatedImpulse        mgl64.Vec3
	accumulatedAngularImpulse mgl64.Vec3
}

// NewRigidBody creates a new rigid body with the given properties.
// mass and inertiaLocal are ignored for static and kinematic bodies.
func NewRigidBody(pose Pose, mass float64, inertiaLocal mgl64.Mat3, bodyType BodyType) *RigidBody {
	rb := &RigidBody{
		id:           -1,
		Pose:         pose,
		PrevPose:     pose,
		InertialPose: pose,
		BodyType:     bodyType,
	}

	if bodyType == BodyTypeDynamic {
		rb.Mass = mass
		rb.InvMass = 1.0 / mass
		rb.InertiaLocal = inertiaLocal
		rb.InvInertiaLocal = inertiaLocal.Inv()
	}
	rb.RefreshInertiaWorld()

	return rb
}

// ID returns the body's identity within its store, or -1 before Add.
func (rb *RigidBody) ID() ID {
	return rb.id
}

// Dynamic reports whether the body is moved by the solver.
func (rb *RigidBody) Dynamic() bool {
	return rb.BodyType == BodyTypeDynamic
}

// AddForce accumulates a force (N) applied at the center of mass.
func (rb *RigidBody) AddForce(force mgl64.Vec3) {
	if rb.BodyType == BodyTypeDynamic {
		rb.accumulatedForce = rb.accumulatedForce.Add(force)
	}
}

// AddTorque accumulates a torque (N⋅m).
func (rb *RigidBody) AddTorque(torque mgl64.Vec3) {
	if rb.BodyType == BodyTypeDynamic {
		rb.accumulatedTorque = rb.accumulatedTorque.Add(torque)
	}
}

// AddImpulse accumulates an instantaneous momentum change (kg⋅m/s).
func (rb *RigidBody) AddImpulse(impulse mgl64.Vec3) {
	if rb.BodyType == BodyTypeDynamic {
		rb.accumulatedImpulse = rb.accumulatedImpulse.Add(impulse)
	}
}

// AddAngularImpulse accumulates an instantaneous angular momentum change.
func (rb *RigidBody) AddAngularImpulse(impulse mgl64.Vec3) {
	if rb.BodyType == BodyTypeDynamic {
		rb.accumulatedAngularImpulse = rb.accumulatedAngularImpulse.Add(impulse)
	}
}

// ClearForces resets all external accumulators.
func (rb *RigidBody) ClearForces() {
	rb.accumulatedForce = mgl64.Vec3{}
	rb.accumulatedTorque = mgl64.Vec3{}
	rb.accumulatedImpulse = mgl64.Vec3{}
	rb.accumulatedAngularImpulse = mgl64.Vec3{}
}

// Predict advances the body to its inertial pose (y in the solver): the pose
// it would reach under external forces alone. The primal iterations then pull
// it back toward constraint feasibility. External accumulators are consumed.
func (rb *RigidBody) Predict(dt float64, gravity mgl64.Vec3) {
	rb.PrevPose = rb.Pose

	switch rb.BodyType {
	case BodyTypeStatic:
		rb.InertialPose = rb.Pose
		return
	case BodyTypeKinematic:
		rb.Pose.Position = rb.Pose.Position.Add(rb.Velocity.Mul(dt))
		rb.integrateRotation(rb.AngularVelocity, dt)
		rb.InertialPose = rb.Pose
		return
	}

	// ========== LINEAR ==========
	rb.Velocity = rb.Velocity.Mul(math.Exp(-rb.LinearDamping * dt))
	acceleration := gravity.Add(rb.accumulatedForce.Mul(rb.InvMass))
	rb.Velocity = rb.Velocity.Add(acceleration.Mul(dt))
	rb.Velocity = rb.Velocity.Add(rb.accumulatedImpulse.Mul(rb.InvMass))
	rb.Pose.Position = rb.Pose.Position.Add(rb.Velocity.Mul(dt))

	// ========== ANGULAR ==========
	rb.AngularVelocity = rb.AngularVelocity.Mul(math.Exp(-rb.AngularDamping * dt))
	iInv := rb.invInertiaWorld
	angularKick := rb.accumulatedTorque.Mul(dt).Add(rb.accumulatedAngularImpulse)
	rb.AngularVelocity = rb.AngularVelocity.Add(iInv.Mul3x1(angularKick))
	rb.integrateRotation(rb.AngularVelocity, dt)

	rb.InertialPose = rb.Pose
	rb.RefreshInertiaWorld()
	rb.ClearForces()
}

// CommitVelocities derives the post-step velocities from the pose delta over
// the step, the position-based counterpart of velocity integration.
func (rb *RigidBody) CommitVelocities(dt float64) {
	if rb.BodyType != BodyTypeDynamic {
		return
	}

	rb.Velocity = rb.Pose.Position.Sub(rb.PrevPose.Position).Mul(1.0 / dt)

	qDelta := rb.Pose.Rotation.Mul(rb.PrevPose.Rotation.Conjugate())
	if qDelta.W >= 0.0 {
		rb.AngularVelocity = qDelta.V.Mul(2.0 / dt)
	} else {
		rb.AngularVelocity = qDelta.V.Mul(-2.0 / dt)
	}
}

// ApplyDelta moves the body by a solved position/rotation increment.
// The rotation update is first-order, followed by an explicit re-normalization
// so the quaternion stays unit-length.
func (rb *RigidBody) ApplyDelta(deltaPos, deltaRot mgl64.Vec3) {
	rb.Pose.Position = rb.Pose.Position.Add(deltaPos)
	rb.integrateRotation(deltaRot, 1.0)
	rb.RefreshInertiaWorld()
}

// integrateRotation applies q <- normalize(q + 0.5*dt*(0, omega)*q).
func (rb *RigidBody) integrateRotation(omega mgl64.Vec3, dt float64) {
	omegaQuat := mgl64.Quat{V: omega, W: 0}
	qDot := omegaQuat.Mul(rb.Pose.Rotation).Scale(0.5 * dt)
	rb.Pose.Rotation = rb.Pose.Rotation.Add(qDot).Normalize()
}

// RefreshInertiaWorld recomputes the cached world-space inverse inertia
// tensor from the current orientation.
func (rb *RigidBody) RefreshInertiaWorld() {
	if rb.BodyType != BodyTypeDynamic {
		rb.invInertiaWorld = mgl64.Mat3{}
		return
	}

	// I_world^(-1) = R * I_local^(-1) * R^T
	r := rb.Pose.Rotation.Mat4().Mat3()
	rb.invInertiaWorld = r.Mul3(rb.InvInertiaLocal).Mul3(r.Transpose())
}

// InvInertiaWorld returns the cached world-space inverse inertia tensor.
func (rb *RigidBody) InvInertiaWorld() mgl64.Mat3 {
	return rb.invInertiaWorld
}

// InertiaWorld returns the world-space inertia tensor.
func (rb *RigidBody) InertiaWorld() mgl64.Mat3 {
	if rb.BodyType != BodyTypeDynamic {
		return mgl64.Mat3{}
	}

	r := rb.Pose.Rotation.Mat4().Mat3()
	return r.Mul3(rb.InertiaLocal).Mul3(r.Transpose())
}
