package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// RotationVector maps a rotation quaternion to axis*angle, taking the
// shortest arc so the angle lies in [0, π].
func RotationVector(q mgl64.Quat) mgl64.Vec3 {
	q = q.Normalize()
	if q.W < 0 {
		q = q.Scale(-1)
	}
	s := q.V.Len()
	if s < 1e-12 {
		// sin(a/2) ~ a/2
		return q.V.Mul(2)
	}
	angle := 2 * math.Atan2(s, q.W)
	return q.V.Mul(angle / s)
}

// RotationError returns the rotation vector carrying cur onto ref,
// expressed in the world frame: ref * cur⁻¹.
func RotationError(ref, cur mgl64.Quat) mgl64.Vec3 {
	return RotationVector(ref.Mul(cur.Inverse()))
}
