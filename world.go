// Package granite implements an Augmented Vertex Block Descent (AVBD)
// rigid-body constraint solver: a primal-dual, Gauss-Seidel-style method
// unifying soft and hard constraints (contacts, joints) under one iterative
// scheme. Collision detection is an external collaborator; the solver
// consumes Contact records and writes resulting poses and velocities back
// through the body store.
package granite

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/akmonengine/granite/actor"
	"github.com/akmonengine/granite/constraint"
	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// ErrStepInProgress reports a re-entrant Step call. A step is atomic from the
// caller's perspective; the body store is owned by the driver until it ends.
var ErrStepInProgress = errors.New("step already in progress")

// Contact is one collision-detection record consumed per step. Normal points
// from BodyB to BodyA; Depth is positive when the surfaces overlap. Key is
// the stable pair id used to match dual state across frames.
type Contact struct {
	BodyA    actor.ID
	BodyB    actor.ID
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Depth    float64
	Friction float64
	Key      uint64
}

// Status is the outcome of one step.
type Status int

const (
	StatusOK Status = iota
	// StatusUnstable means validation detected non-finite state or clamped a
	// velocity. Repeated unstable results are a signal to the caller to
	// adjust configuration, e.g. increase iterations or soften KStart.
	StatusUnstable
)

func (s Status) String() string {
	if s == StatusUnstable {
		return "unstable"
	}
	return "ok"
}

// StepResult reports the outcome and diagnostics of one step.
type StepResult struct {
	Status            Status
	UnstableBodies    []actor.ID
	Colors            int
	Constraints       int
	SingularFallbacks int
}

// World owns the solver state: the body store, persistent joints, warmstart
// state, and the scratch arenas reused across steps.
type World struct {
	Store  *actor.Store
	Config Config
	Log    *log.Logger
	Events Events

	joints []*constraint.Constraint

	// Previous frame's dual state per persistence key.
	warm map[constraint.PersistenceKey]constraint.DualState

	// Step-local scratch, reused across steps.
	constraints       []*constraint.Constraint
	bodyConstraints   [][]*constraint.Constraint
	indexOf           map[*actor.RigidBody]int
	coloring          coloring
	singularFallbacks atomic.Int64
	stepping          bool
}

// NewWorld creates a world with the given configuration. Logging is off by
// default; assign Log to enable it.
func NewWorld(config Config) *World {
	return &World{
		Store:   actor.NewStore(),
		Config:  config,
		Log:     log.New(io.Discard),
		Events:  NewEvents(),
		warm:    make(map[constraint.PersistenceKey]constraint.DualState),
		indexOf: make(map[*actor.RigidBody]int),
	}
}

// AddBody registers a rigid body and returns its id.
func (w *World) AddBody(body *actor.RigidBody) actor.ID {
	return w.Store.Add(body)
}

// RemoveBody unregisters a body along with every joint referencing it.
func (w *World) RemoveBody(id actor.ID) error {
	body, err := w.Store.Get(id)
	if err != nil {
		return err
	}

	n := 0
	for _, j := range w.joints {
		if j.BodyA != body && j.BodyB != body {
			w.joints[n] = j
			n++
		}
	}
	w.joints = w.joints[:n]

	return w.Store.Remove(id)
}

// AddBallJoint pins a world-space anchor to both bodies and returns the
// joint's stable identity.
func (w *World) AddBallJoint(a, b actor.ID, worldAnchor mgl64.Vec3) (uuid.UUID, error) {
	bodyA, bodyB, err := w.jointBodies(a, b)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	w.joints = append(w.joints, constraint.NewBallJoint(id, bodyA, bodyB, worldAnchor))

	return id, nil
}

// AddHingeJoint pins an anchor and constrains both bodies to share the given
// world axis.
func (w *World) AddHingeJoint(a, b actor.ID, worldAnchor, worldAxis mgl64.Vec3) (uuid.UUID, error) {
	bodyA, bodyB, err := w.jointBodies(a, b)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	w.joints = append(w.joints, constraint.NewHingeJoint(id, bodyA, bodyB, worldAnchor, worldAxis.Normalize()))

	return id, nil
}

// AddFixedJoint welds two bodies together in their current relative pose.
func (w *World) AddFixedJoint(a, b actor.ID) (uuid.UUID, error) {
	bodyA, bodyB, err := w.jointBodies(a, b)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	w.joints = append(w.joints, constraint.NewFixedJoint(id, bodyA, bodyB))

	return id, nil
}

// RemoveJoint drops a joint by identity; reports whether it existed.
func (w *World) RemoveJoint(id uuid.UUID) bool {
	for i, j := range w.joints {
		if j.Key.Joint == id {
			w.joints = append(w.joints[:i], w.joints[i+1:]...)
			return true
		}
	}
	return false
}

func (w *World) jointBodies(a, b actor.ID) (*actor.RigidBody, *actor.RigidBody, error) {
	bodyA, err := w.Store.Get(a)
	if err != nil {
		return nil, nil, err
	}
	bodyB, err := w.Store.Get(b)
	if err != nil {
		return nil, nil, err
	}
	return bodyA, bodyB, nil
}

// Step advances the simulation by one fixed timestep:
//
//	PredictPositions -> Warmstart -> n x {Primal, Dual} ->
//	IntegrateVelocities -> Validate -> Done
//
// The step always runs the full iteration budget; contacts come from
// external collision detection, joints persist in the world. Numeric edge
// cases inside one body's local solve are contained to that body.
func (w *World) Step(contacts []Contact) (StepResult, error) {
	if w.stepping {
		return StepResult{}, ErrStepInProgress
	}
	w.stepping = true
	defer func() { w.stepping = false }()

	cfg := w.Config
	workers := max(1, cfg.Workers)
	bodies := w.Store.Bodies()

	// Assemble the active constraint set, capturing each constraint's
	// frame-start value C0 while poses are still unpredicted.
	if err := w.assembleConstraints(contacts); err != nil {
		return StepResult{}, err
	}
	w.Events.recordContacts(w.constraints)

	// PredictPositions: advance every body to its inertial pose, consuming
	// the external force accumulators.
	task(workers, bodies, func(body *actor.RigidBody) {
		body.Predict(cfg.Dt, cfg.Gravity)
	})

	// Warmstart: seed dual state from the previous frame where the
	// persistence key matches; cold-start the rest.
	task(workers, w.constraints, func(c *constraint.Constraint) {
		if prev, ok := w.warm[c.Key]; ok {
			c.Warmstart(&prev, cfg.Alpha, cfg.Gamma, cfg.KStart)
		} else {
			c.Warmstart(nil, cfg.Alpha, cfg.Gamma, cfg.KStart)
		}
	})

	w.coloring.build(bodies, w.indexOf, w.constraints)
	w.Log.Debug("step assembled",
		"bodies", len(bodies),
		"constraints", len(w.constraints),
		"colors", w.coloring.colorCount())

	// Main loop: primal update color by color (parallel within a color,
	// sequential across colors), then the dual update across all
	// constraints.
	w.singularFallbacks.Store(0)
	for iteration := 0; iteration < cfg.Iterations; iteration++ {
		for _, group := range w.coloring.groups {
			task(workers, group, func(bodyIdx int) {
				w.solveBody(bodies[bodyIdx], w.bodyConstraints[bodyIdx], cfg.Dt)
			})
		}

		task(workers, w.constraints, func(c *constraint.Constraint) {
			c.UpdateDual(cfg.Alpha, cfg.Beta)
		})
	}

	// IntegrateVelocities: derive velocities from the pose delta.
	task(workers, bodies, func(body *actor.RigidBody) {
		body.CommitVelocities(cfg.Dt)
	})

	result := w.validate(bodies)
	result.Colors = w.coloring.colorCount()
	result.Constraints = len(w.constraints)
	result.SingularFallbacks = int(w.singularFallbacks.Load())

	// Persist dual state for next-frame warmstarting.
	clear(w.warm)
	for _, c := range w.constraints {
		w.warm[c.Key] = c.State()
	}

	w.Events.flush()

	return result, nil
}

// assembleConstraints rebuilds the active constraint set from persistent
// joints plus this step's contact records.
func (w *World) assembleConstraints(contacts []Contact) error {
	bodies := w.Store.Bodies()

	w.constraints = w.constraints[:0]
	w.bodyConstraints = resizeNested(w.bodyConstraints, len(bodies))
	clear(w.indexOf)
	for i, body := range bodies {
		w.indexOf[body] = i
	}

	for _, j := range w.joints {
		w.addActive(j)
	}

	for _, contact := range contacts {
		bodyA, err := w.Store.Get(contact.BodyA)
		if err != nil {
			return fmt.Errorf("contact %d: %w", contact.Key, err)
		}
		bodyB, err := w.Store.Get(contact.BodyB)
		if err != nil {
			return fmt.Errorf("contact %d: %w", contact.Key, err)
		}

		if !bodyA.Dynamic() && !bodyB.Dynamic() {
			continue
		}

		c := constraint.NewContact(bodyA, bodyB,
			contact.Point, contact.Normal, contact.Depth,
			contact.Friction, w.Config.ContactSlop, contact.Key)
		w.addActive(c)
	}

	return nil
}

func (w *World) addActive(c *constraint.Constraint) {
	if !c.BodyA.Dynamic() && !c.BodyB.Dynamic() {
		return
	}

	c.CaptureReference()
	w.constraints = append(w.constraints, c)

	if c.BodyA.Dynamic() {
		i := w.indexOf[c.BodyA]
		w.bodyConstraints[i] = append(w.bodyConstraints[i], c)
	}
	if c.BodyB.Dynamic() {
		i := w.indexOf[c.BodyB]
		w.bodyConstraints[i] = append(w.bodyConstraints[i], c)
	}
}

// validate checks every dynamic body for non-finite state and velocities
// beyond the configured maxima. Offending bodies are reset or clamped and
// reported; the step itself never fails for numeric reasons.
func (w *World) validate(bodies []*actor.RigidBody) StepResult {
	result := StepResult{Status: StatusOK}
	cfg := w.Config

	for _, body := range bodies {
		if !body.Dynamic() {
			continue
		}

		unstable := false

		if !bodyStateFinite(body) {
			body.Pose = body.PrevPose
			body.Velocity = mgl64.Vec3{}
			body.AngularVelocity = mgl64.Vec3{}
			body.RefreshInertiaWorld()
			w.Log.Warn("non-finite body state reset", "body", body.ID())
			unstable = true
		} else {
			if speed := body.Velocity.Len(); speed > cfg.MaxLinearVelocity {
				body.Velocity = body.Velocity.Mul(cfg.MaxLinearVelocity / speed)
				w.Log.Warn("linear velocity clamped", "body", body.ID(), "speed", speed)
				unstable = true
			}
			if speed := body.AngularVelocity.Len(); speed > cfg.MaxAngularVelocity {
				body.AngularVelocity = body.AngularVelocity.Mul(cfg.MaxAngularVelocity / speed)
				w.Log.Warn("angular velocity clamped", "body", body.ID(), "speed", speed)
				unstable = true
			}
		}

		if unstable {
			result.Status = StatusUnstable
			result.UnstableBodies = append(result.UnstableBodies, body.ID())
			w.Events.emitUnstable(body.ID())
		}
	}

	return result
}

func bodyStateFinite(body *actor.RigidBody) bool {
	for i := 0; i < 3; i++ {
		if !isFinite(body.Pose.Position[i]) || !isFinite(body.Velocity[i]) || !isFinite(body.AngularVelocity[i]) {
			return false
		}
	}
	q := body.Pose.Rotation
	return isFinite(q.W) && isFinite(q.V[0]) && isFinite(q.V[1]) && isFinite(q.V[2])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
