package usd

import (
	"github.com/usdtools/usdthumb/pkg/geometry"
)

// WorldBounds computes the union of world-space bounds of all visible
// prims on the stage at the given time code. The second return value is
// false when nothing on the stage contributes bounds, which is a
// different condition from a valid zero-sized box around a point.
//
// Only default-time values are currently read, so timeCode is accepted
// for contract symmetry with the renderer's frame selection but does
// not yet select among time samples. Of the xformOp attributes only
// xformOp:translate is honored: scales, rotations and full
// xformOp:transform matrices on ancestors are ignored, so subtrees
// under such ops report their untransformed bounds.
func (s *Stage) WorldBounds(timeCode float64) (geometry.BoundingBox, bool) {
	_ = timeCode

	bounds := geometry.EmptyBox()
	for _, prim := range s.Roots {
		bounds = bounds.Union(primWorldBounds(prim, geometry.Vector3{}))
	}
	if bounds.IsEmpty() {
		return bounds, false
	}
	return bounds, true
}

// primWorldBounds returns the bounds of a prim subtree, translated into
// world space by the accumulated parent offset. Invisible prims hide
// their entire subtree. An authored extent wins over raw points, which
// mirrors how the extent attribute caches the point bounds.
func primWorldBounds(prim *Prim, offset geometry.Vector3) geometry.BoundingBox {
	if prim.Invisible {
		return geometry.EmptyBox()
	}
	offset = offset.Add(prim.Translate)

	bounds := geometry.EmptyBox()
	switch {
	case prim.Extent != nil:
		bounds = prim.Extent.Translate(offset)
	case len(prim.Points) > 0:
		for _, point := range prim.Points {
			bounds = bounds.Extend(point.Add(offset))
		}
	}

	for _, child := range prim.Children {
		bounds = bounds.Union(primWorldBounds(child, offset))
	}
	return bounds
}
