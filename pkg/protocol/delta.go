package protocol

// String returns a pointer to s.
func String(s string) *string { return &s }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Empty reports whether the delta changes nothing.
func (d ContentDelta) Empty() bool {
	return d.Title == nil && d.Body == nil &&
		d.X == nil && d.Y == nil && d.Width == nil && d.Height == nil &&
		d.Rotation == nil && d.Color == nil
}

// HasText reports whether the delta touches title or body.
func (d ContentDelta) HasText() bool {
	return d.Title != nil || d.Body != nil
}

// HasGeometry reports whether the delta touches position, size or rotation.
func (d ContentDelta) HasGeometry() bool {
	return d.X != nil || d.Y != nil || d.Width != nil || d.Height != nil || d.Rotation != nil
}

// ApplyTo writes the delta into f and reports whether anything changed.
func (d ContentDelta) ApplyTo(f *ItemFields) bool {
	changed := false
	setS := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setF := func(dst *float64, src *float64) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setS(&f.Title, d.Title)
	setS(&f.Body, d.Body)
	setF(&f.X, d.X)
	setF(&f.Y, d.Y)
	setF(&f.Width, d.Width)
	setF(&f.Height, d.Height)
	setF(&f.Rotation, d.Rotation)
	setS(&f.Color, d.Color)
	return changed
}

// TextDelta carries the complete title and body.
func TextDelta(f ItemFields) ContentDelta {
	return ContentDelta{Title: String(f.Title), Body: String(f.Body)}
}

// GeometryDelta carries position, size and rotation.
func GeometryDelta(f ItemFields) ContentDelta {
	return ContentDelta{
		X:        Float(f.X),
		Y:        Float(f.Y),
		Width:    Float(f.Width),
		Height:   Float(f.Height),
		Rotation: Float(f.Rotation),
	}
}

// Diff returns the fields of next that differ from prev.
func Diff(prev, next ItemFields) ContentDelta {
	var d ContentDelta
	if prev.Title != next.Title {
		d.Title = String(next.Title)
	}
	if prev.Body != next.Body {
		d.Body = String(next.Body)
	}
	if prev.X != next.X {
		d.X = Float(next.X)
	}
	if prev.Y != next.Y {
		d.Y = Float(next.Y)
	}
	if prev.Width != next.Width {
		d.Width = Float(next.Width)
	}
	if prev.Height != next.Height {
		d.Height = Float(next.Height)
	}
	if prev.Rotation != next.Rotation {
		d.Rotation = Float(next.Rotation)
	}
	if prev.Color != next.Color {
		d.Color = String(next.Color)
	}
	return d
}
