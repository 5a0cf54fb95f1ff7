package granite

import (
	"testing"

	"github.com/akmonengine/granite/actor"
	"github.com/go-gl/mathgl/mgl64"
)

func TestEvents_ContactLifecycle(t *testing.T) {
	w := NewWorld(testConfig())
	floor := addStaticFloor(w)
	sphere := addSphere(w, mgl64.Vec3{0, 0.5, 0}, 0.5, 1.0)

	var entered, stayed, exited []uint64
	w.Events.Subscribe(CONTACT_ENTER, func(e Event) {
		entered = append(entered, e.(ContactEnterEvent).Key)
	})
	w.Events.Subscribe(CONTACT_STAY, func(e Event) {
		stayed = append(stayed, e.(ContactStayEvent).Key)
	})
	w.Events.Subscribe(CONTACT_EXIT, func(e Event) {
		exited = append(exited, e.(ContactExitEvent).Key)
	})

	key := uint64(5)
	step := func(withContact bool) {
		var contacts []Contact
		if withContact {
			contacts = sphereFloorContacts(t, w, sphere, floor, 0.5, key)
			if len(contacts) == 0 {
				t.Fatal("expected an active contact")
			}
		}
		if _, err := w.Step(contacts); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	step(true)
	if len(entered) != 1 || entered[0] != key {
		t.Fatalf("after first step: entered = %v, want [%d]", entered, key)
	}
	if len(stayed) != 0 || len(exited) != 0 {
		t.Fatalf("after first step: stayed = %v, exited = %v, want none", stayed, exited)
	}

	step(true)
	if len(stayed) != 1 || stayed[0] != key {
		t.Fatalf("after second step: stayed = %v, want [%d]", stayed, key)
	}
	if len(entered) != 1 {
		t.Fatalf("after second step: entered fired again: %v", entered)
	}

	step(false)
	if len(exited) != 1 || exited[0] != key {
		t.Fatalf("after third step: exited = %v, want [%d]", exited, key)
	}
}

func TestEvents_EnterCarriesBodyIDs(t *testing.T) {
	w := NewWorld(testConfig())
	floor := addStaticFloor(w)
	sphere := addSphere(w, mgl64.Vec3{0, 0.5, 0}, 0.5, 1.0)

	var got ContactEnterEvent
	w.Events.Subscribe(CONTACT_ENTER, func(e Event) {
		got = e.(ContactEnterEvent)
	})

	if _, err := w.Step(sphereFloorContacts(t, w, sphere, floor, 0.5, 9)); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if got.BodyA != sphere || got.BodyB != floor {
		t.Errorf("enter event bodies = (%v, %v), want (%v, %v)", got.BodyA, got.BodyB, sphere, floor)
	}
}

func TestEvents_UnstableBody(t *testing.T) {
	w := NewWorld(testConfig())
	id := addSphere(w, mgl64.Vec3{}, 0.5, 1.0)

	var unstable []actor.ID
	w.Events.Subscribe(BODY_UNSTABLE, func(e Event) {
		unstable = append(unstable, e.(UnstableEvent).Body)
	})

	if err := w.Store.Set(id, actor.NewPose(mgl64.Vec3{}), actor.Velocity{Linear: mgl64.Vec3{1000, 0, 0}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := w.Step(nil); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if len(unstable) != 1 || unstable[0] != id {
		t.Errorf("unstable events = %v, want [%v]", unstable, id)
	}
}

func TestEvents_NoListenersIsFine(t *testing.T) {
	w := NewWorld(testConfig())
	floor := addStaticFloor(w)
	sphere := addSphere(w, mgl64.Vec3{0, 0.5, 0}, 0.5, 1.0)

	for i := 0; i < 3; i++ {
		if _, err := w.Step(sphereFloorContacts(t, w, sphere, floor, 0.5, 1)); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}
}
