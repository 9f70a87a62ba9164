package beamline

import (
	"fmt"
	"math"
	"path"

	"github.com/banshee-data/lossmap/internal/aperture"
)

// Model is the accelerator model. It is built once and read-only afterwards,
// apart from aperture assignment during run setup.
type Model struct {
	elements []Element
	byName   map[string]int
}

// Builder appends elements and assigns cumulative positions.
type Builder struct {
	elements []Element
	s        float64
}

// NewBuilder returns an empty builder starting at s = 0.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends an element. Index and Position are assigned by the builder.
func (b *Builder) Add(e Element) *Builder {
	e.Index = len(b.elements)
	e.Position = b.s
	b.s += e.Length
	b.elements = append(b.elements, e)
	return b
}

// Build validates and freezes the element list.
func (b *Builder) Build() (*Model, error) {
	return NewModel(b.elements)
}

// NewModel wraps an already positioned element list. Indices are rewritten
// to match slice order; positions are taken as given and are checked by
// consumers that need continuity.
func NewModel(elements []Element) (*Model, error) {
	m := &Model{
		elements: make([]Element, len(elements)),
		byName:   make(map[string]int, len(elements)),
	}
	prev := math.Inf(-1)
	for i, e := range elements {
		if e.Length < 0 {
			return nil, fmt.Errorf("element %s has negative length %g", e.Name, e.Length)
		}
		if e.Position < prev {
			return nil, &ContinuityError{Element: e.Name, Index: i, Expected: prev, Got: e.Position}
		}
		prev = e.Position
		e.Index = i
		m.elements[i] = e
		if _, dup := m.byName[e.Name]; !dup {
			m.byName[e.Name] = i
		}
	}
	return m, nil
}

// Len returns the number of elements.
func (m *Model) Len() int { return len(m.elements) }

// Element returns element i.
func (m *Model) Element(i int) Element { return m.elements[i] }

// Elements returns a copy of the element list.
func (m *Model) Elements() []Element {
	out := make([]Element, len(m.elements))
	copy(out, m.elements)
	return out
}

// Circumference is the exit position of the last element.
func (m *Model) Circumference() float64 {
	if len(m.elements) == 0 {
		return 0
	}
	return m.elements[len(m.elements)-1].End()
}

// FindElementLatticePosition returns the index of the first element called
// name.
func (m *Model) FindElementLatticePosition(name string) (int, error) {
	i, ok := m.byName[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrElementNotFound, name)
	}
	return i, nil
}

// ExtractTyped returns the elements whose names match a shell glob such as
// "TCP.*" or "ACS*".
func (m *Model) ExtractTyped(pattern string) ([]Element, error) {
	var out []Element
	for _, e := range m.elements {
		ok, err := path.Match(pattern, e.Name)
		if err != nil {
			return nil, fmt.Errorf("bad element pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetAperture assigns an aperture to every element called name and returns
// how many were changed.
func (m *Model) SetAperture(name string, ap aperture.Aperture) int {
	n := 0
	for i := range m.elements {
		if m.elements[i].Name == name {
			m.elements[i].Aperture = ap
			n++
		}
	}
	return n
}

// Beamline returns the whole machine in order.
func (m *Model) Beamline() Beamline {
	return Beamline{elements: m.elements}
}

// Segment returns elements from..to inclusive.
func (m *Model) Segment(from, to int) (Beamline, error) {
	if from < 0 || to >= len(m.elements) || from > to {
		return Beamline{}, fmt.Errorf("%w: %d..%d of %d", ErrBadRange, from, to, len(m.elements))
	}
	return Beamline{elements: m.elements[from : to+1]}, nil
}

// Ring returns one full turn starting at element start and wrapping round
// the end of the lattice.
func (m *Model) Ring(start int) (Beamline, error) {
	if start < 0 || start >= len(m.elements) {
		return Beamline{}, fmt.Errorf("%w: ring start %d of %d", ErrBadRange, start, len(m.elements))
	}
	if start == 0 {
		return m.Beamline(), nil
	}
	return Beamline{elements: m.elements[start:], wrapped: m.elements[:start]}, nil
}

// Beamline is an ordered read-only view of consecutive elements. A ring view
// continues from the end of the lattice back to its start.
type Beamline struct {
	elements []Element
	wrapped  []Element
}

// Len returns the number of elements in the view.
func (b Beamline) Len() int { return len(b.elements) + len(b.wrapped) }

// At returns the i-th element of the view.
func (b Beamline) At(i int) Element {
	if i < len(b.elements) {
		return b.elements[i]
	}
	return b.wrapped[i-len(b.elements)]
}

// Each calls fn for every element in order and stops at the first error.
func (b Beamline) Each(fn func(Element) error) error {
	for _, e := range b.elements {
		if err := fn(e); err != nil {
			return err
		}
	}
	for _, e := range b.wrapped {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// First returns the first element of the view.
func (b Beamline) First() (Element, bool) {
	if b.Len() == 0 {
		return Element{}, false
	}
	return b.At(0), true
}

// Last returns the last element of the view.
func (b Beamline) Last() (Element, bool) {
	if b.Len() == 0 {
		return Element{}, false
	}
	return b.At(b.Len() - 1), true
}

// Wraps reports whether the view crosses the end of the lattice.
func (b Beamline) Wraps() bool { return len(b.wrapped) > 0 }
