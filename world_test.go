package granite

import (
	"errors"
	"math"
	"testing"

	"github.com/akmonengine/granite/actor"
	"github.com/akmonengine/granite/constraint"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

func testConfig() Config {
	return DefaultConfig()
}

func addStaticFloor(w *World) actor.ID {
	return w.AddBody(actor.NewRigidBody(actor.NewPose(mgl64.Vec3{}), 0, mgl64.Mat3{}, actor.BodyTypeStatic))
}

func addSphere(w *World, position mgl64.Vec3, radius, mass float64) actor.ID {
	return w.AddBody(actor.NewRigidBody(actor.NewPose(position), mass, actor.SphereInertia(mass, radius), actor.BodyTypeDynamic))
}

func addBox(w *World, position mgl64.Vec3, half, mass float64) actor.ID {
	inertia := actor.BoxInertia(mass, mgl64.Vec3{half, half, half})
	return w.AddBody(actor.NewRigidBody(actor.NewPose(position), mass, inertia, actor.BodyTypeDynamic))
}

// sphereFloorContacts is a minimal stand-in for external collision detection:
// one sphere over the y=0 plane, reported while the gap is under 1 cm.
func sphereFloorContacts(t *testing.T, w *World, sphereID, floorID actor.ID, radius float64, key uint64) []Contact {
	t.Helper()

	body, err := w.Store.Get(sphereID)
	if err != nil {
		t.Fatalf("Get(%v) failed: %v", sphereID, err)
	}

	bottom := body.Pose.Position.Y() - radius
	if bottom > 0.01 {
		return nil
	}

	depth := -bottom
	point := mgl64.Vec3{body.Pose.Position.X(), bottom + depth/2, body.Pose.Position.Z()}

	return []Contact{{
		BodyA:    sphereID,
		BodyB:    floorID,
		Point:    point,
		Normal:   mgl64.Vec3{0, 1, 0},
		Depth:    depth,
		Friction: 0.5,
		Key:      key,
	}}
}

// boxSupportContacts reports four corner contacts between an axis-aligned box
// and the horizontal support surface at supportY, while the gap is under 1 cm.
func boxSupportContacts(t *testing.T, w *World, boxID, supportID actor.ID, half, supportY float64, baseKey uint64) []Contact {
	t.Helper()

	body, err := w.Store.Get(boxID)
	if err != nil {
		t.Fatalf("Get(%v) failed: %v", boxID, err)
	}

	bottom := body.Pose.Position.Y() - half
	gap := bottom - supportY
	if gap > 0.01 {
		return nil
	}

	depth := -gap
	center := body.Pose.Position
	inset := half * 0.8

	var contacts []Contact
	corners := [4][2]float64{{inset, inset}, {inset, -inset}, {-inset, inset}, {-inset, -inset}}
	for i, corner := range corners {
		contacts = append(contacts, Contact{
			BodyA:    boxID,
			BodyB:    supportID,
			Point:    mgl64.Vec3{center.X() + corner[0], bottom + depth/2, center.Z() + corner[1]},
			Normal:   mgl64.Vec3{0, 1, 0},
			Depth:    depth,
			Friction: 0.6,
			Key:      baseKey + uint64(i),
		})
	}

	return contacts
}

// =============================================================================
// Step Driver Tests
// =============================================================================

func TestStep_FreeFallMatchesIntegrator(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)
	id := addSphere(w, mgl64.Vec3{0, 100, 0}, 0.5, 1.0)

	steps := 60
	for i := 0; i < steps; i++ {
		result, err := w.Step(nil)
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if result.Status != StatusOK {
			t.Fatalf("step %d status = %v, want ok", i, result.Status)
		}
		if result.Constraints != 0 {
			t.Fatalf("step %d reported %d constraints in an empty scene", i, result.Constraints)
		}
	}

	pose, velocity, err := w.Store.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Symplectic Euler: v_n = n*g*dt, y_n = y0 + dt²*g*(1+...+n).
	n := float64(steps)
	wantVel := -9.81 * n * cfg.Dt
	wantY := 100.0 - 9.81*cfg.Dt*cfg.Dt*n*(n+1)/2

	if math.Abs(velocity.Linear.Y()-wantVel) > 1e-6 {
		t.Errorf("velocity.Y = %v, want %v", velocity.Linear.Y(), wantVel)
	}
	if math.Abs(pose.Position.Y()-wantY) > 1e-6 {
		t.Errorf("position.Y = %v, want %v", pose.Position.Y(), wantY)
	}
}

func TestStep_ZeroGravityStasis(t *testing.T) {
	cfg := testConfig()
	cfg.Gravity = mgl64.Vec3{}

	w := NewWorld(cfg)
	start := actor.NewPose(mgl64.Vec3{1, 2, 3})
	id := addSphere(w, start.Position, 0.5, 1.0)

	for i := 0; i < 10; i++ {
		result, err := w.Step(nil)
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if result.Status != StatusOK {
			t.Fatalf("step %d status = %v, want ok", i, result.Status)
		}
	}

	// With no gravity, forces, or constraints, the body must hold its exact
	// state: no drift, not even in the last bit.
	pose, velocity, err := w.Store.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if pose.Position != start.Position {
		t.Errorf("position drifted: %v, want %v", pose.Position, start.Position)
	}
	if pose.Rotation != start.Rotation {
		t.Errorf("rotation drifted: %v, want %v", pose.Rotation, start.Rotation)
	}
	if velocity.Linear != (mgl64.Vec3{}) || velocity.Angular != (mgl64.Vec3{}) {
		t.Errorf("velocity drifted: linear %v, angular %v, want zero", velocity.Linear, velocity.Angular)
	}
}

func TestStep_SphereRestsAtSlopHeight(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)

	floor := addStaticFloor(w)
	sphere := addSphere(w, mgl64.Vec3{0, 0.55, 0}, 0.5, 1.0)

	for i := 0; i < 300; i++ {
		result, err := w.Step(sphereFloorContacts(t, w, sphere, floor, 0.5, 7))
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if result.Status != StatusOK {
			t.Fatalf("step %d status = %v, want ok", i, result.Status)
		}
	}

	pose, velocity, _ := w.Store.Snapshot(sphere)

	// The body settles with its surface hovering inside the slop margin: no
	// visible penetration, no floating beyond the margin.
	height := pose.Position.Y()
	if height < 0.5-1e-3 || height > 0.5+cfg.ContactSlop+1e-3 {
		t.Errorf("resting height = %v, want within [0.5, %v]", height, 0.5+cfg.ContactSlop)
	}
	if speed := velocity.Linear.Len(); speed > 0.01 {
		t.Errorf("resting speed = %v, want < 0.01", speed)
	}
}

func TestStep_BoxStackStaysPut(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)

	half := 0.5
	slop := cfg.ContactSlop
	floor := addStaticFloor(w)
	boxes := []actor.ID{
		addBox(w, mgl64.Vec3{0, half + slop, 0}, half, 1.0),
		addBox(w, mgl64.Vec3{0, 3*half + 2*slop, 0}, half, 1.0),
		addBox(w, mgl64.Vec3{0, 5*half + 3*slop, 0}, half, 1.0),
	}

	stackContacts := func() []Contact {
		var contacts []Contact
		contacts = append(contacts, boxSupportContacts(t, w, boxes[0], floor, half, 0, 100)...)
		for i := 1; i < len(boxes); i++ {
			lower, _ := w.Store.Get(boxes[i-1])
			supportY := lower.Pose.Position.Y() + half
			contacts = append(contacts, boxSupportContacts(t, w, boxes[i], boxes[i-1], half, supportY, uint64(100*(i+1)))...)
		}
		return contacts
	}

	step := func(count int) {
		for i := 0; i < count; i++ {
			result, err := w.Step(stackContacts())
			if err != nil {
				t.Fatalf("step failed: %v", err)
			}
			if result.Status != StatusOK {
				t.Fatalf("status = %v with unstable bodies %v, want ok", result.Status, result.UnstableBodies)
			}
		}
	}

	step(300) // settle
	settled, _, _ := w.Store.Snapshot(boxes[2])
	step(500) // hold

	pose, velocity, _ := w.Store.Snapshot(boxes[2])

	drift := pose.Position.Sub(settled.Position)
	if math.Hypot(drift.X(), drift.Z()) > 0.01 {
		t.Errorf("top box drifted horizontally by %v", mgl64.Vec3{drift.X(), 0, drift.Z()})
	}
	if math.Abs(drift.Y()) > 0.01 {
		t.Errorf("top box height drifted by %v after settling", drift.Y())
	}
	if speed := velocity.Linear.Len(); speed > 0.01 {
		t.Errorf("top box speed = %v after settling, want < 0.01", speed)
	}

	// The whole stack holds its order and spacing.
	wantHeight := 5*half + 3*slop
	if math.Abs(pose.Position.Y()-wantHeight) > 0.01 {
		t.Errorf("top box height = %v, want about %v", pose.Position.Y(), wantHeight)
	}
}

func TestStep_BallJointConvergesInOneStep(t *testing.T) {
	cfg := testConfig()
	cfg.Gravity = mgl64.Vec3{}
	cfg.Alpha = 0 // full correction: no regularization holdback

	w := NewWorld(cfg)
	anchor := w.AddBody(actor.NewRigidBody(actor.NewPose(mgl64.Vec3{}), 0, mgl64.Mat3{}, actor.BodyTypeStatic))
	body := addSphere(w, mgl64.Vec3{}, 0.5, 1.0)

	if _, err := w.AddBallJoint(body, anchor, mgl64.Vec3{}); err != nil {
		t.Fatalf("AddBallJoint failed: %v", err)
	}

	// Violate the joint by a full meter, then give the solver one step.
	if err := w.Store.Set(body, actor.NewPose(mgl64.Vec3{1, 0, 0}), actor.Velocity{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := w.Step(nil); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	pose, _, _ := w.Store.Snapshot(body)
	if violation := pose.Position.Len(); violation > 0.01 {
		t.Errorf("joint violation = %v after one step, want < 0.01", violation)
	}
}

func TestStep_FixedJointHoldsUnderGravity(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)

	anchor := w.AddBody(actor.NewRigidBody(actor.NewPose(mgl64.Vec3{0, 2, 0}), 0, mgl64.Mat3{}, actor.BodyTypeStatic))
	hanging := addBox(w, mgl64.Vec3{0, 1, 0}, 0.5, 1.0)

	if _, err := w.AddFixedJoint(anchor, hanging); err != nil {
		t.Fatalf("AddFixedJoint failed: %v", err)
	}

	for i := 0; i < 120; i++ {
		result, err := w.Step(nil)
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if result.Status != StatusOK {
			t.Fatalf("step %d status = %v, want ok", i, result.Status)
		}
	}

	pose, _, _ := w.Store.Snapshot(hanging)
	if offset := pose.Position.Sub(mgl64.Vec3{0, 1, 0}).Len(); offset > 0.01 {
		t.Errorf("welded body moved %v from its rest position", offset)
	}
	if tilt := pose.Rotation.V.Len(); tilt > 0.01 {
		t.Errorf("welded body tilted, rotation vector magnitude %v", tilt)
	}
}

func TestStep_HingePendulumKeepsPlane(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)

	pivot := w.AddBody(actor.NewRigidBody(actor.NewPose(mgl64.Vec3{}), 0, mgl64.Mat3{}, actor.BodyTypeStatic))
	bob := addSphere(w, mgl64.Vec3{1, 0, 0}, 0.25, 1.0)

	if _, err := w.AddHingeJoint(bob, pivot, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}); err != nil {
		t.Fatalf("AddHingeJoint failed: %v", err)
	}

	for i := 0; i < 120; i++ {
		if _, err := w.Step(nil); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	pose, _, _ := w.Store.Snapshot(bob)

	// The bob swings but stays on the hinge circle and in the hinge plane.
	if radius := pose.Position.Len(); math.Abs(radius-1.0) > 0.02 {
		t.Errorf("bob radius = %v, want about 1", radius)
	}
	if z := math.Abs(pose.Position.Z()); z > 0.01 {
		t.Errorf("bob left the hinge plane by %v", z)
	}
	// And it has actually fallen from its start.
	if pose.Position.Y() > -0.1 {
		t.Errorf("bob did not swing down, y = %v", pose.Position.Y())
	}
}

func TestStep_WarmstartCarriesDualState(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)

	floor := addStaticFloor(w)
	sphere := addSphere(w, mgl64.Vec3{0, 0.5, 0}, 0.5, 1.0)

	key := uint64(42)
	for i := 0; i < 10; i++ {
		if _, err := w.Step(sphereFloorContacts(t, w, sphere, floor, 0.5, key)); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	state, ok := w.warm[constraint.PersistenceKey{Pair: key}]
	if !ok {
		t.Fatal("no warmstart state persisted for the contact key")
	}
	if state.Lambda[0] <= 0 {
		t.Errorf("persisted normal multiplier = %v for a loaded contact, want > 0", state.Lambda[0])
	}
	if state.K[0] < cfg.KStart {
		t.Errorf("persisted stiffness = %v, want >= KStart %v", state.K[0], cfg.KStart)
	}
}

func TestStep_WarmstartNoSlowerThanColdStart(t *testing.T) {
	cfg := testConfig()
	key := uint64(11)

	// Warm world: let a sphere settle so its contact carries dual state.
	warm := NewWorld(cfg)
	warmFloor := addStaticFloor(warm)
	warmSphere := addSphere(warm, mgl64.Vec3{0, 0.5, 0}, 0.5, 1.0)
	for i := 0; i < 10; i++ {
		if _, err := warm.Step(sphereFloorContacts(t, warm, warmSphere, warmFloor, 0.5, key)); err != nil {
			t.Fatalf("warm step %d failed: %v", i, err)
		}
	}

	// Cold world: identical body state, but no persisted dual state.
	pose, velocity, _ := warm.Store.Snapshot(warmSphere)
	cold := NewWorld(cfg)
	coldFloor := addStaticFloor(cold)
	coldSphere := addSphere(cold, pose.Position, 0.5, 1.0)
	if err := cold.Store.Set(coldSphere, pose, actor.Velocity{Linear: velocity.Linear, Angular: velocity.Angular}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := warm.Step(sphereFloorContacts(t, warm, warmSphere, warmFloor, 0.5, key)); err != nil {
		t.Fatalf("warm step failed: %v", err)
	}
	if _, err := cold.Step(sphereFloorContacts(t, cold, coldSphere, coldFloor, 0.5, key)); err != nil {
		t.Fatalf("cold step failed: %v", err)
	}

	restHeight := 0.5 + cfg.ContactSlop
	warmPose, _, _ := warm.Store.Snapshot(warmSphere)
	coldPose, _, _ := cold.Store.Snapshot(coldSphere)

	warmDev := math.Abs(warmPose.Position.Y() - restHeight)
	coldDev := math.Abs(coldPose.Position.Y() - restHeight)
	if warmDev > coldDev+1e-6 {
		t.Errorf("warmstarted deviation %v worse than cold start %v", warmDev, coldDev)
	}
}

func TestStep_DeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) []mgl64.Vec3 {
		cfg := testConfig()
		cfg.Workers = workers
		w := NewWorld(cfg)

		half := 0.5
		floor := addStaticFloor(w)
		boxes := []actor.ID{
			addBox(w, mgl64.Vec3{0, 0.55, 0}, half, 1.0),
			addBox(w, mgl64.Vec3{0.2, 1.6, 0}, half, 1.0),
			addBox(w, mgl64.Vec3{3, 0.7, 0}, half, 1.0),
		}

		for i := 0; i < 120; i++ {
			var contacts []Contact
			contacts = append(contacts, boxSupportContacts(t, w, boxes[0], floor, half, 0, 100)...)
			contacts = append(contacts, boxSupportContacts(t, w, boxes[2], floor, half, 0, 200)...)
			lower, _ := w.Store.Get(boxes[0])
			contacts = append(contacts, boxSupportContacts(t, w, boxes[1], boxes[0], half, lower.Pose.Position.Y()+half, 300)...)

			if _, err := w.Step(contacts); err != nil {
				t.Fatalf("workers=%d step %d failed: %v", workers, i, err)
			}
		}

		positions := make([]mgl64.Vec3, len(boxes))
		for i, id := range boxes {
			pose, _, _ := w.Store.Snapshot(id)
			positions[i] = pose.Position
		}
		return positions
	}

	serial := run(1)
	parallel := run(4)

	// Coloring guarantees disjoint writes within a color and dual updates own
	// their state, so results must be bitwise identical regardless of workers.
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Errorf("box %d: serial %v != parallel %v", i, serial[i], parallel[i])
		}
	}
}

func TestStep_VelocityClampMarksUnstable(t *testing.T) {
	cfg := testConfig()
	w := NewWorld(cfg)
	id := addSphere(w, mgl64.Vec3{}, 0.5, 1.0)

	if err := w.Store.Set(id, actor.NewPose(mgl64.Vec3{}), actor.Velocity{Linear: mgl64.Vec3{500, 0, 0}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := w.Step(nil)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if result.Status != StatusUnstable {
		t.Fatalf("status = %v, want unstable", result.Status)
	}
	if len(result.UnstableBodies) != 1 || result.UnstableBodies[0] != id {
		t.Errorf("UnstableBodies = %v, want [%v]", result.UnstableBodies, id)
	}

	_, velocity, _ := w.Store.Snapshot(id)
	if speed := velocity.Linear.Len(); speed > cfg.MaxLinearVelocity+1e-9 {
		t.Errorf("speed = %v after clamp, want <= %v", speed, cfg.MaxLinearVelocity)
	}
}

func TestStep_UnknownContactBodyFails(t *testing.T) {
	w := NewWorld(testConfig())
	addStaticFloor(w)

	_, err := w.Step([]Contact{{BodyA: 99, BodyB: 0, Normal: mgl64.Vec3{0, 1, 0}, Key: 1}})
	if !errors.Is(err, actor.ErrInvalidReference) {
		t.Errorf("Step error = %v, want ErrInvalidReference", err)
	}
}

func TestStep_ReentrantStepFails(t *testing.T) {
	w := NewWorld(testConfig())
	floor := addStaticFloor(w)
	sphere := addSphere(w, mgl64.Vec3{0, 0.5, 0}, 0.5, 1.0)

	var reentrantErr error
	w.Events.Subscribe(CONTACT_ENTER, func(Event) {
		_, reentrantErr = w.Step(nil)
	})

	if _, err := w.Step(sphereFloorContacts(t, w, sphere, floor, 0.5, 1)); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if !errors.Is(reentrantErr, ErrStepInProgress) {
		t.Errorf("re-entrant Step error = %v, want ErrStepInProgress", reentrantErr)
	}
}

// =============================================================================
// Joint Management Tests
// =============================================================================

func TestAddJoint_UnknownBodyFails(t *testing.T) {
	w := NewWorld(testConfig())
	id := addSphere(w, mgl64.Vec3{}, 0.5, 1.0)

	if _, err := w.AddBallJoint(id, 77, mgl64.Vec3{}); !errors.Is(err, actor.ErrInvalidReference) {
		t.Errorf("AddBallJoint error = %v, want ErrInvalidReference", err)
	}
	if _, err := w.AddHingeJoint(77, id, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}); !errors.Is(err, actor.ErrInvalidReference) {
		t.Errorf("AddHingeJoint error = %v, want ErrInvalidReference", err)
	}
	if _, err := w.AddFixedJoint(id, 77); !errors.Is(err, actor.ErrInvalidReference) {
		t.Errorf("AddFixedJoint error = %v, want ErrInvalidReference", err)
	}
}

func TestRemoveJoint(t *testing.T) {
	w := NewWorld(testConfig())
	a := addSphere(w, mgl64.Vec3{}, 0.5, 1.0)
	b := addSphere(w, mgl64.Vec3{1, 0, 0}, 0.5, 1.0)

	id, err := w.AddBallJoint(a, b, mgl64.Vec3{0.5, 0, 0})
	if err != nil {
		t.Fatalf("AddBallJoint failed: %v", err)
	}

	if !w.RemoveJoint(id) {
		t.Error("RemoveJoint returned false for an existing joint")
	}
	if w.RemoveJoint(id) {
		t.Error("RemoveJoint returned true for an already removed joint")
	}
	if w.RemoveJoint(uuid.New()) {
		t.Error("RemoveJoint returned true for an unknown id")
	}
}

func TestRemoveBody_DropsItsJoints(t *testing.T) {
	w := NewWorld(testConfig())
	a := addSphere(w, mgl64.Vec3{}, 0.5, 1.0)
	b := addSphere(w, mgl64.Vec3{1, 0, 0}, 0.5, 1.0)

	if _, err := w.AddBallJoint(a, b, mgl64.Vec3{0.5, 0, 0}); err != nil {
		t.Fatalf("AddBallJoint failed: %v", err)
	}

	if err := w.RemoveBody(a); err != nil {
		t.Fatalf("RemoveBody failed: %v", err)
	}
	if len(w.joints) != 0 {
		t.Errorf("%d joints left after removing a referenced body, want 0", len(w.joints))
	}

	// The world must still step cleanly afterwards.
	if _, err := w.Step(nil); err != nil {
		t.Fatalf("Step after RemoveBody failed: %v", err)
	}
}
