// Package framing computes a camera placement that frames an arbitrary
// bounding box. Given the box and a handful of settings it returns a
// deterministic camera whose frustum is guaranteed to contain the box.
package framing

import (
	"errors"
	"math"

	"github.com/usdtools/usdthumb/pkg/geometry"
)

// ErrDegenerateSubject is returned when there is no geometry to frame.
var ErrDegenerateSubject = errors.New("subject has no renderable geometry to frame")

const (
	// minRadius is the smallest enclosing-sphere radius used when the
	// subject collapses to a single point, keeping the camera distance
	// finite and non-zero.
	minRadius = 1e-6

	// minNearClip is the floor for the near clipping plane.
	minNearClip = 1e-9
)

// Settings controls how a bounding box is framed.
type Settings struct {
	// AspectRatio is the image width divided by height.
	AspectRatio float64
	// FOV is the vertical field of view in degrees (perspective only).
	FOV float64
	// MarginFactor inflates the subject's enclosing sphere so it does
	// not touch the frame edges. Must be >= 1.
	MarginFactor float64
	// ViewDirection is the direction the camera looks along, pointing
	// from the camera toward the subject. Does not need to be
	// normalized.
	ViewDirection geometry.Vector3
	// Up is the preferred world up axis. When it is parallel to the
	// view direction a fallback axis is substituted.
	Up geometry.Vector3
	// Orthographic selects an orthographic projection instead of
	// perspective.
	Orthographic bool
}

// DefaultSettings returns the settings used when nothing is configured:
// a 16:9 perspective camera with a 50 degree vertical field of view,
// looking down from the +X+Y+Z octant with 20% padding.
func DefaultSettings() Settings {
	return Settings{
		AspectRatio:   16.0 / 9.0,
		FOV:           50,
		MarginFactor:  1.2,
		ViewDirection: geometry.NewVector3(-1, -1, -1),
		Up:            geometry.NewVector3(0, 1, 0),
	}
}

// Camera holds a fully resolved camera placement framing a subject.
type Camera struct {
	Position geometry.Vector3
	Center   geometry.Vector3

	// Orthonormal view basis. Forward points from the camera toward
	// the subject.
	Forward geometry.Vector3
	Up      geometry.Vector3
	Right   geometry.Vector3

	// Distance from the camera to the subject center, and the margin-
	// inflated enclosing-sphere radius it was derived from.
	Distance float64
	Radius   float64

	FOV         float64 // vertical, degrees
	AspectRatio float64
	Near        float64
	Far         float64

	Orthographic bool
	// OrthoAperture is the horizontal world-space width of the
	// orthographic view volume. Zero for perspective cameras.
	OrthoAperture float64
}

// Frame computes a camera that fully contains box within its frustum.
// The same box and settings always produce the identical camera.
func Frame(box geometry.BoundingBox, s Settings) (Camera, error) {
	if box.IsEmpty() {
		return Camera{}, ErrDegenerateSubject
	}
	s = s.sanitized()

	center := box.Center()
	radius := box.Size().Length() / 2
	if radius < minRadius {
		radius = minRadius
	}
	radius *= s.MarginFactor

	// The sphere of the given radius must fit the narrower frustum
	// cross-section, whichever of the vertical or horizontal half-angle
	// that is.
	vHalf := s.FOV * math.Pi / 360
	hHalf := math.Atan(math.Tan(vHalf) * s.AspectRatio)
	theta := math.Min(vHalf, hHalf)
	distance := radius / math.Sin(theta)

	forward := s.ViewDirection.Normalize()
	up := chooseUp(s.Up, forward)
	right := forward.Cross(up).Normalize()
	up = right.Cross(forward)

	near := (distance - radius) / 2
	if near < minNearClip {
		near = minNearClip
	}

	cam := Camera{
		Position:    center.Sub(forward.Mul(distance)),
		Center:      center,
		Forward:     forward,
		Up:          up,
		Right:       right,
		Distance:    distance,
		Radius:      radius,
		FOV:         s.FOV,
		AspectRatio: s.AspectRatio,
		Near:        near,
		Far:         (distance + radius) * 2,
	}
	if s.Orthographic {
		cam.Orthographic = true
		cam.OrthoAperture = 2 * radius * math.Max(1, s.AspectRatio)
	}
	return cam, nil
}

// sanitized replaces unusable settings fields with their defaults so a
// partially filled Settings still frames something sensible.
func (s Settings) sanitized() Settings {
	def := DefaultSettings()
	if !(s.AspectRatio > 0) || math.IsInf(s.AspectRatio, 0) {
		s.AspectRatio = def.AspectRatio
	}
	if !(s.FOV > 0) || s.FOV >= 180 {
		s.FOV = def.FOV
	}
	if !(s.MarginFactor >= 1) || math.IsInf(s.MarginFactor, 0) {
		s.MarginFactor = def.MarginFactor
	}
	if s.ViewDirection.Length() == 0 || !s.ViewDirection.IsFinite() {
		s.ViewDirection = def.ViewDirection
	}
	return s
}

// Contains reports whether a world-space point lies inside the camera's
// view frustum, clip planes included. A small relative epsilon absorbs
// floating point error at the frustum boundary.
func (c Camera) Contains(point geometry.Vector3) bool {
	const eps = 1e-9

	rel := point.Sub(c.Position)
	depth := rel.Dot(c.Forward)
	if depth < c.Near-eps || depth > c.Far+eps {
		return false
	}

	x := math.Abs(rel.Dot(c.Right))
	y := math.Abs(rel.Dot(c.Up))

	if c.Orthographic {
		halfW := c.OrthoAperture / 2
		halfH := halfW / c.AspectRatio
		return x <= halfW+eps && y <= halfH+eps
	}

	vHalf := c.FOV * math.Pi / 360
	slack := eps * (1 + depth)
	return y <= depth*math.Tan(vHalf)+slack &&
		x <= depth*math.Tan(vHalf)*c.AspectRatio+slack
}
