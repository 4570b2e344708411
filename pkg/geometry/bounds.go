package geometry

// BoundingBox represents an axis-aligned bounding box in world space.
// The zero value is the empty box, which contains nothing; Extend and
// Union grow it as points or other boxes are accumulated.
type BoundingBox struct {
	Min   Vector3
	Max   Vector3
	empty bool
}

// EmptyBox returns a box that contains no points. Extending it with a
// single point yields a valid point-sized (degenerate) box, which is a
// different thing from an empty one.
func EmptyBox() BoundingBox {
	return BoundingBox{empty: true}
}

// NewBoundingBox creates a box from two opposite corners. Components are
// swapped as needed so that Min <= Max holds per axis.
func NewBoundingBox(a, b Vector3) BoundingBox {
	return BoundingBox{Min: a.Min(b), Max: a.Max(b)}
}

// IsEmpty reports whether the box contains no points at all.
func (b BoundingBox) IsEmpty() bool {
	return b.empty
}

// Extend expands the bounding box to include a point
func (b BoundingBox) Extend(point Vector3) BoundingBox {
	if b.empty {
		return BoundingBox{Min: point, Max: point}
	}
	return BoundingBox{Min: b.Min.Min(point), Max: b.Max.Max(point)}
}

// Union returns the smallest box containing both boxes
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	if b.empty {
		return other
	}
	if other.empty {
		return b
	}
	return BoundingBox{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Translate returns the box shifted by offset
func (b BoundingBox) Translate(offset Vector3) BoundingBox {
	if b.empty {
		return b
	}
	return BoundingBox{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Size returns the dimensions of the bounding box
func (b BoundingBox) Size() Vector3 {
	if b.empty {
		return Vector3{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() Vector3 {
	return Vector3{
		X: (b.Min.X + b.Max.X) / 2.0,
		Y: (b.Min.Y + b.Max.Y) / 2.0,
		Z: (b.Min.Z + b.Max.Z) / 2.0,
	}
}

// Diagonal returns the length of the bounding box diagonal
func (b BoundingBox) Diagonal() float64 {
	return b.Size().Length()
}

// Corners returns the 8 corner points of the box. For a degenerate box
// some corners coincide.
func (b BoundingBox) Corners() [8]Vector3 {
	return [8]Vector3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}
