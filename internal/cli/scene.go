package cli

import (
	"fmt"

	"github.com/akmonengine/granite"
	"github.com/akmonengine/granite/actor"
	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
)

// The demo scenes ship a small analytic collision layer for spheres, boxes and
// the ground plane. Production users plug in their own broad/narrow phase and
// feed Contact records to Step; this one exists so the CLI can run end to end.

type shapeKind int

const (
	shapePlane shapeKind = iota
	shapeSphere
	shapeBox
)

type sceneBody struct {
	id     actor.ID
	kind   shapeKind
	radius float64 // sphere
	half   float64 // box half extent, axis aligned
}

type scene struct {
	world  *granite.World
	bodies []sceneBody
}

func newScene(cfg granite.Config) *scene {
	s := &scene{world: granite.NewWorld(cfg)}

	floor := actor.NewRigidBody(actor.NewPose(mgl64.Vec3{}), 0, mgl64.Mat3{}, actor.BodyTypeStatic)
	s.bodies = append(s.bodies, sceneBody{id: s.world.AddBody(floor), kind: shapePlane})

	return s
}

func (s *scene) addSphere(position mgl64.Vec3, radius, mass float64) actor.ID {
	body := actor.NewRigidBody(actor.NewPose(position), mass, actor.SphereInertia(mass, radius), actor.BodyTypeDynamic)
	id := s.world.AddBody(body)
	s.bodies = append(s.bodies, sceneBody{id: id, kind: shapeSphere, radius: radius})
	return id
}

func (s *scene) addBox(position mgl64.Vec3, half, mass float64) actor.ID {
	inertia := actor.BoxInertia(mass, mgl64.Vec3{half, half, half})
	body := actor.NewRigidBody(actor.NewPose(position), mass, inertia, actor.BodyTypeDynamic)
	id := s.world.AddBody(body)
	s.bodies = append(s.bodies, sceneBody{id: id, kind: shapeBox, half: half})
	return id
}

const contactMargin = 0.01

// pairKey derives a stable persistence key from the body pair and a feature
// index, so warmstarting survives across frames. Fields occupy disjoint bit
// ranges: a from bit 36 up, b in bits 4-35, feature in bits 0-3.
func pairKey(a, b actor.ID, feature int) uint64 {
	return uint64(uint32(a))<<36 | uint64(uint32(b))<<4 | uint64(feature)
}

// contacts runs the analytic narrow phase over all body pairs.
func (s *scene) contacts() []granite.Contact {
	var out []granite.Contact

	for i := range s.bodies {
		for j := range s.bodies {
			if i <= j {
				continue
			}
			a, b := s.bodies[i], s.bodies[j]

			switch {
			case a.kind == shapeSphere && b.kind == shapePlane:
				out = s.spherePlane(out, a)
			case a.kind == shapeBox && b.kind == shapePlane:
				out = s.boxPlane(out, a)
			case a.kind == shapeSphere && b.kind == shapeSphere:
				out = s.sphereSphere(out, a, b)
			case a.kind == shapeBox && b.kind == shapeBox:
				out = s.boxBox(out, a, b)
			}
		}
	}

	return out
}

func (s *scene) spherePlane(out []granite.Contact, sphere sceneBody) []granite.Contact {
	body, _ := s.world.Store.Get(sphere.id)
	bottom := body.Pose.Position.Y() - sphere.radius
	if bottom > contactMargin {
		return out
	}

	depth := -bottom
	return append(out, granite.Contact{
		BodyA:    sphere.id,
		BodyB:    s.bodies[0].id,
		Point:    mgl64.Vec3{body.Pose.Position.X(), bottom + depth/2, body.Pose.Position.Z()},
		Normal:   mgl64.Vec3{0, 1, 0},
		Depth:    depth,
		Friction: 0.5,
		Key:      pairKey(sphere.id, s.bodies[0].id, 0),
	})
}

func (s *scene) boxPlane(out []granite.Contact, box sceneBody) []granite.Contact {
	body, _ := s.world.Store.Get(box.id)
	bottom := body.Pose.Position.Y() - box.half
	if bottom > contactMargin {
		return out
	}

	depth := -bottom
	inset := box.half * 0.8
	corners := [4][2]float64{{inset, inset}, {inset, -inset}, {-inset, inset}, {-inset, -inset}}

	for feature, corner := range corners {
		out = append(out, granite.Contact{
			BodyA:    box.id,
			BodyB:    s.bodies[0].id,
			Point:    mgl64.Vec3{body.Pose.Position.X() + corner[0], bottom + depth/2, body.Pose.Position.Z() + corner[1]},
			Normal:   mgl64.Vec3{0, 1, 0},
			Depth:    depth,
			Friction: 0.6,
			Key:      pairKey(box.id, s.bodies[0].id, feature),
		})
	}

	return out
}

func (s *scene) sphereSphere(out []granite.Contact, a, b sceneBody) []granite.Contact {
	bodyA, _ := s.world.Store.Get(a.id)
	bodyB, _ := s.world.Store.Get(b.id)

	delta := bodyA.Pose.Position.Sub(bodyB.Pose.Position)
	dist := delta.Len()
	if dist < 1e-9 {
		return out
	}

	gap := dist - a.radius - b.radius
	if gap > contactMargin {
		return out
	}

	normal := delta.Mul(1 / dist)
	mid := bodyB.Pose.Position.Add(normal.Mul(b.radius + gap/2))

	return append(out, granite.Contact{
		BodyA:    a.id,
		BodyB:    b.id,
		Point:    mid,
		Normal:   normal,
		Depth:    -gap,
		Friction: 0.5,
		Key:      pairKey(a.id, b.id, 0),
	})
}

// boxBox handles the stacked axis-aligned case: the upper box rests on the
// lower one with vertical contact normals. Good enough for the demo towers.
func (s *scene) boxBox(out []granite.Contact, a, b sceneBody) []granite.Contact {
	bodyA, _ := s.world.Store.Get(a.id)
	bodyB, _ := s.world.Store.Get(b.id)

	upper, lower := a, b
	upperBody, lowerBody := bodyA, bodyB
	if upperBody.Pose.Position.Y() < lowerBody.Pose.Position.Y() {
		upper, lower = b, a
		upperBody, lowerBody = bodyB, bodyA
	}

	dx := upperBody.Pose.Position.X() - lowerBody.Pose.Position.X()
	dz := upperBody.Pose.Position.Z() - lowerBody.Pose.Position.Z()
	overlap := upper.half + lower.half
	if dx > overlap || -dx > overlap || dz > overlap || -dz > overlap {
		return out
	}

	bottom := upperBody.Pose.Position.Y() - upper.half
	top := lowerBody.Pose.Position.Y() + lower.half
	gap := bottom - top
	if gap > contactMargin {
		return out
	}

	depth := -gap
	inset := upper.half * 0.8
	corners := [4][2]float64{{inset, inset}, {inset, -inset}, {-inset, inset}, {-inset, -inset}}

	for feature, corner := range corners {
		out = append(out, granite.Contact{
			BodyA:    upper.id,
			BodyB:    lower.id,
			Point:    mgl64.Vec3{upperBody.Pose.Position.X() + corner[0], bottom + depth/2, upperBody.Pose.Position.Z() + corner[1]},
			Normal:   mgl64.Vec3{0, 1, 0},
			Depth:    depth,
			Friction: 0.6,
			Key:      pairKey(upper.id, lower.id, feature),
		})
	}

	return out
}

// run drives the scene through the fixed-timestep accumulator for the given
// number of steps and reports progress and a final summary.
func (s *scene) run(logger *log.Logger, steps int) error {
	w := s.world
	w.Log = logger

	var enters, exits, unstable int
	w.Events.Subscribe(granite.CONTACT_ENTER, func(granite.Event) { enters++ })
	w.Events.Subscribe(granite.CONTACT_EXIT, func(granite.Event) { exits++ })
	w.Events.Subscribe(granite.BODY_UNSTABLE, func(granite.Event) { unstable++ })

	acc := granite.NewAccumulator(w.Config.Dt)
	done := 0
	for done < steps {
		for n := acc.Accumulate(w.Config.Dt); n > 0; n-- {
			result, err := w.Step(s.contacts())
			if err != nil {
				return fmt.Errorf("step %d: %w", done, err)
			}
			done++

			if done%60 == 0 || done == steps {
				logger.Info("simulated",
					"step", done,
					"constraints", result.Constraints,
					"colors", result.Colors,
					"status", result.Status)
			}
			if done == steps {
				break
			}
		}
	}

	logger.Info("scene finished",
		"steps", done,
		"bodies", w.Store.Len(),
		"contact_enters", enters,
		"contact_exits", exits,
		"unstable_events", unstable)

	for _, sb := range s.bodies[1:] {
		pose, velocity, err := w.Store.Snapshot(sb.id)
		if err != nil {
			return err
		}
		logger.Debug("body state",
			"id", sb.id,
			"position", pose.Position,
			"speed", velocity.Linear.Len())
	}

	return nil
}
