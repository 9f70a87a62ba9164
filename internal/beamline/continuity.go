package beamline

import "math"

// Cursor walks a beamline checking that every element starts where the
// previous one ended.
type Cursor struct {
	s       float64
	started bool
}

// NewCursor returns a cursor expecting the first element at s.
func NewCursor(s float64) *Cursor {
	return &Cursor{s: s, started: true}
}

// Advance checks e against the expected position and moves past it. A
// cursor created with the zero value accepts the first element wherever it
// starts.
func (c *Cursor) Advance(e Element) error {
	if !c.started {
		c.s = e.Position
		c.started = true
	}
	if math.Abs(c.s-e.Position) > ContinuityTolerance {
		return &ContinuityError{Element: e.Name, Index: e.Index, Expected: c.s, Got: e.Position}
	}
	c.s += e.Length
	return nil
}

// S is the expected position of the next element.
func (c *Cursor) S() float64 { return c.s }

// CheckContinuity validates a whole view. Ring views restart the expected
// position at the lattice origin where they wrap.
func CheckContinuity(b Beamline) error {
	var c Cursor
	for _, e := range b.elements {
		if err := c.Advance(e); err != nil {
			return err
		}
	}
	if len(b.wrapped) > 0 {
		c = Cursor{s: 0, started: true}
		for _, e := range b.wrapped {
			if err := c.Advance(e); err != nil {
				return err
			}
		}
	}
	return nil
}
