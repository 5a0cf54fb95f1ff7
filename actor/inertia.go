package actor

import "github.com/go-gl/mathgl/mgl64"

// BoxInertia returns the body-space inertia tensor of a solid box.
func BoxInertia(mass float64, halfExtents mgl64.Vec3) mgl64.Mat3 {
	x := halfExtents.X() * 2
	y := halfExtents.Y() * 2
	z := halfExtents.Z() * 2

	// I = (m/12) * (dimension1² + dimension2²)
	factor := mass / 12.0
	ix := factor * (y*y + z*z)
	iy := factor * (x*x + z*z)
	iz := factor * (x*x + y*y)

	return mgl64.Mat3{
		ix, 0, 0,
		0, iy, 0,
		0, 0, iz,
	}
}

// SphereInertia returns the body-space inertia tensor of a solid sphere,
// I = (2/5) * m * r², identical on all axes.
func SphereInertia(mass, radius float64) mgl64.Mat3 {
	i := (2.0 / 5.0) * mass * radius * radius

	return mgl64.Mat3{
		i, 0, 0,
		0, i, 0,
		0, 0, i,
	}
}
