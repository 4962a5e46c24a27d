package geometry

import (
	"github.com/cockroachdb/errors"
)

const floatSize = 4

// Layout lists the float component count of each interleaved vertex attribute,
// in shader location order.
type Layout []int

var (
	PositionOnly          = Layout{3}
	PositionColorTexCoord = Layout{3, 3, 2}
)

// Floats is the number of float32 values in one vertex.
func (l Layout) Floats() int {
	total := 0
	for _, components := range l {
		total += components
	}
	return total
}

// Stride is the size of one vertex in bytes.
func (l Layout) Stride() int {
	return l.Floats() * floatSize
}

// Offsets returns the byte offset of each attribute within a vertex.
func (l Layout) Offsets() []int {
	offsets := make([]int, len(l))
	offset := 0
	for i, components := range l {
		offsets[i] = offset
		offset += components * floatSize
	}
	return offsets
}

func (l Layout) Validate() error {
	if len(l) == 0 {
		return errors.New("layout has no attributes")
	}
	for i, components := range l {
		if components < 1 || components > 4 {
			return errors.Errorf("attribute %d has %d components, want 1-4", i, components)
		}
	}
	return nil
}

type Mesh struct {
	Name     string
	Layout   Layout
	Vertices []float32
	Indices  []uint32
}

func (m *Mesh) VertexCount() int {
	floats := m.Layout.Floats()
	if floats == 0 {
		return 0
	}
	return len(m.Vertices) / floats
}

// DrawCount is the element count passed to the draw call: the index count for
// indexed meshes, the vertex count otherwise.
func (m *Mesh) DrawCount() int {
	if len(m.Indices) > 0 {
		return len(m.Indices)
	}
	return m.VertexCount()
}

func (m *Mesh) Indexed() bool {
	return len(m.Indices) > 0
}

// Validate checks that the vertex array matches the layout stride and that every
// index addresses an existing vertex.
func (m *Mesh) Validate() error {
	if err := m.Layout.Validate(); err != nil {
		return errors.Wrapf(err, "mesh %s", m.Name)
	}

	floats := m.Layout.Floats()
	if len(m.Vertices) == 0 {
		return errors.Errorf("mesh %s has no vertices", m.Name)
	}
	if len(m.Vertices)%floats != 0 {
		return errors.Errorf("mesh %s has %d floats, not a multiple of the %d-float stride", m.Name, len(m.Vertices), floats)
	}

	count := uint32(m.VertexCount())
	for i, index := range m.Indices {
		if index >= count {
			return errors.Errorf("mesh %s index %d is %d but there are only %d vertices", m.Name, i, index, count)
		}
	}
	return nil
}

// Scale returns a copy of the mesh with the position attribute (always the first
// one) multiplied by factor. A mesh without a layout is copied unchanged.
func Scale(m *Mesh, factor float32) *Mesh {
	scaled := &Mesh{
		Name:     m.Name,
		Layout:   append(Layout(nil), m.Layout...),
		Vertices: append([]float32(nil), m.Vertices...),
		Indices:  append([]uint32(nil), m.Indices...),
	}

	if len(m.Layout) == 0 {
		return scaled
	}

	floats := m.Layout.Floats()
	positions := m.Layout[0]
	for v := 0; v+floats <= len(scaled.Vertices); v += floats {
		for c := 0; c < positions; c++ {
			scaled.Vertices[v+c] *= factor
		}
	}
	return scaled
}
