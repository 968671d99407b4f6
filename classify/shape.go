package classify

/*
	Shape says which kinds of files an upload contains.

	It's the one place the placeholder decision is made: the REST create call
	and the tree rebuild both ask the Shape, so they can't disagree.
*/
type Shape int

const (
	ShapeEmpty     Shape = iota // no files at all; never a valid upload
	ShapeLightOnly              // REST only; no git work
	ShapeHeavyOnly              // REST gets the placeholder; git removes it again
	ShapeMixed                  // REST gets the light files; git adds the heavy ones
)

func ShapeOf(light, heavy int) Shape {
	switch {
	case light > 0 && heavy > 0:
		return ShapeMixed
	case light > 0:
		return ShapeLightOnly
	case heavy > 0:
		return ShapeHeavyOnly
	default:
		return ShapeEmpty
	}
}

// NeedsPlaceholder is true when there are no light files to create the paste with.
func (s Shape) NeedsPlaceholder() bool {
	return s == ShapeHeavyOnly
}

// HasHeavy is true when the git path has work to do.
func (s Shape) HasHeavy() bool {
	return s == ShapeHeavyOnly || s == ShapeMixed
}

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeLightOnly:
		return "light-only"
	case ShapeHeavyOnly:
		return "heavy-only"
	case ShapeMixed:
		return "mixed"
	default:
		return "invalid"
	}
}
