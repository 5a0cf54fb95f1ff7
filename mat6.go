package granite

import "github.com/go-gl/mathgl/mgl64"

// Vec6 is one body's generalized coordinate delta: DOFs 0-2 linear,
// 3-5 angular (tangent space).
type Vec6 [6]float64

// Lin returns the linear part of the vector.
func (v Vec6) Lin() mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[1], v[2]}
}

// Ang returns the angular part of the vector.
func (v Vec6) Ang() mgl64.Vec3 {
	return mgl64.Vec3{v[3], v[4], v[5]}
}

func vec6(lin, ang mgl64.Vec3) Vec6 {
	return Vec6{lin.X(), lin.Y(), lin.Z(), ang.X(), ang.Y(), ang.Z()}
}

// Mat6 is the dense symmetric 6x6 system matrix of one body's local Newton
// step, indexed [row][col].
type Mat6 [6][6]float64

// addDiag adds v to diagonal entry i.
func (m *Mat6) addDiag(i int, v float64) {
	m[i][i] += v
}

// addScaledIdentity3 adds s*I to the linear 3x3 block.
func (m *Mat6) addScaledIdentity3(s float64) {
	m[0][0] += s
	m[1][1] += s
	m[2][2] += s
}

// addAngularBlock adds a 3x3 matrix to the angular block.
func (m *Mat6) addAngularBlock(a mgl64.Mat3) {
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			m[3+row][3+col] += a.At(row, col)
		}
	}
}

// addOuterScaled adds s * j*jᵀ, the Gauss-Newton contribution of one
// constraint row.
func (m *Mat6) addOuterScaled(j Vec6, s float64) {
	for row := 0; row < 6; row++ {
		if j[row] == 0 {
			continue
		}
		sj := s * j[row]
		for col := 0; col < 6; col++ {
			m[row][col] += sj * j[col]
		}
	}
}

const ldlPivotEpsilon = 1e-12

// solveLDL solves m*x = f through an LDLᵀ factorization, chosen over direct
// inversion for stability near-degenerate configurations. Returns false when
// a pivot degenerates, in which case x must not be used; the caller falls
// back to a zero delta rather than propagating garbage.
func solveLDL(m Mat6, f Vec6) (Vec6, bool) {
	var l Mat6
	var d Vec6

	for j := 0; j < 6; j++ {
		dj := m[j][j]
		for k := 0; k < j; k++ {
			dj -= l[j][k] * l[j][k] * d[k]
		}
		if dj < ldlPivotEpsilon {
			return Vec6{}, false
		}
		d[j] = dj

		for i := j + 1; i < 6; i++ {
			lij := m[i][j]
			for k := 0; k < j; k++ {
				lij -= l[i][k] * l[j][k] * d[k]
			}
			l[i][j] = lij / dj
		}
	}

	// Forward substitution: L*z = f
	var x Vec6
	for i := 0; i < 6; i++ {
		x[i] = f[i]
		for k := 0; k < i; k++ {
			x[i] -= l[i][k] * x[k]
		}
	}

	// Diagonal: D*y = z
	for i := 0; i < 6; i++ {
		x[i] /= d[i]
	}

	// Back substitution: Lᵀ*out = y
	for i := 5; i >= 0; i-- {
		for k := i + 1; k < 6; k++ {
			x[i] -= l[k][i] * x[k]
		}
	}

	return x, true
}
