package actor

import (
	"errors"
	"fmt"
)

// ErrInvalidReference reports an operation against a body id unknown to the
// store. This is a programming error on the caller's side, never swallowed.
var ErrInvalidReference = errors.New("invalid body reference")

// Store owns the rigid bodies of a world and maps stable ids to them.
// The step driver checks it out for the duration of a step; no other
// component may mutate body state concurrently with a running step.
type Store struct {
	bodies []*RigidBody
	index  map[ID]*RigidBody
	nextID ID
}

// NewStore creates an empty body store.
func NewStore() *Store {
	return &Store{index: make(map[ID]*RigidBody)}
}

// Add registers a body and assigns its id.
func (s *Store) Add(body *RigidBody) ID {
	body.id = s.nextID
	s.nextID++

	s.bodies = append(s.bodies, body)
	s.index[body.id] = body

	return body.id
}

// Remove unregisters a body. Removing an unknown id fails with
// ErrInvalidReference.
func (s *Store) Remove(id ID) error {
	body, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: body %d", ErrInvalidReference, id)
	}

	delete(s.index, id)
	for i, b := range s.bodies {
		if b == body {
			s.bodies = append(s.bodies[:i], s.bodies[i+1:]...)
			break
		}
	}
	body.id = -1

	return nil
}

// Get returns the body for id, or ErrInvalidReference.
func (s *Store) Get(id ID) (*RigidBody, error) {
	body, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: body %d", ErrInvalidReference, id)
	}

	return body, nil
}

// Snapshot reads the current pose and velocity of a body.
func (s *Store) Snapshot(id ID) (Pose, Velocity, error) {
	body, ok := s.index[id]
	if !ok {
		return Pose{}, Velocity{}, fmt.Errorf("%w: body %d", ErrInvalidReference, id)
	}

	return body.Pose, Velocity{Linear: body.Velocity, Angular: body.AngularVelocity}, nil
}

// Set writes a body's pose and velocity. The rotation is re-normalized so the
// unit-quaternion invariant holds regardless of the input.
func (s *Store) Set(id ID, pose Pose, velocity Velocity) error {
	body, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: body %d", ErrInvalidReference, id)
	}

	pose.Rotation = pose.Rotation.Normalize()
	body.Pose = pose
	body.PrevPose = pose
	body.InertialPose = pose
	body.Velocity = velocity.Linear
	body.AngularVelocity = velocity.Angular
	body.RefreshInertiaWorld()

	return nil
}

// Bodies exposes the underlying body slice. Iteration order is insertion
// order, which keeps step results deterministic for a fixed scene setup.
func (s *Store) Bodies() []*RigidBody {
	return s.bodies
}

// Len returns the number of stored bodies.
func (s *Store) Len() int {
	return len(s.bodies)
}
