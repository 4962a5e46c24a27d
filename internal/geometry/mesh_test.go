package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutStrideAndOffsets(t *testing.T) {
	assert.Equal(t, 3, PositionOnly.Floats())
	assert.Equal(t, 12, PositionOnly.Stride())
	assert.Equal(t, []int{0}, PositionOnly.Offsets())

	assert.Equal(t, 8, PositionColorTexCoord.Floats())
	assert.Equal(t, 32, PositionColorTexCoord.Stride())
	assert.Equal(t, []int{0, 12, 24}, PositionColorTexCoord.Offsets())
}

func TestLayoutValidate(t *testing.T) {
	assert.Error(t, Layout{}.Validate())
	assert.Error(t, Layout{3, 5}.Validate())
	assert.Error(t, Layout{0}.Validate())
	assert.NoError(t, Layout{4, 1}.Validate())
}

func TestShapesAreValid(t *testing.T) {
	shapes := []*Mesh{
		Triangle(0.25),
		AcrossTriangles(),
		Square(),
		LeftTriangle(),
		RightTriangle(),
		CustomTriangle(),
		TexturedTriangle(),
		TexturedQuad(),
	}

	for _, shape := range shapes {
		t.Run(shape.Name, func(t *testing.T) {
			require.NoError(t, shape.Validate())
			assert.Zero(t, len(shape.Vertices)%shape.Layout.Floats())
			assert.Zero(t, shape.DrawCount()%3, "triangle lists need multiples of three")
		})
	}
}

func TestAcrossTrianglesAreScaled(t *testing.T) {
	m := AcrossTriangles()
	require.Len(t, m.Vertices, 18)
	assert.Equal(t, 6, m.VertexCount())
	assert.Equal(t, []float32{0, 0.5, 0}, m.Vertices[0:3])
	assert.Equal(t, []float32{-0.5, 0, 0}, m.Vertices[3:6])
	assert.Equal(t, []float32{0.5, 0, 0}, m.Vertices[15:18])
}

func TestScaleOnlyTouchesPositions(t *testing.T) {
	quad := TexturedQuad()
	scaled := Scale(quad, 2)

	assert.Equal(t, []float32{1, 1, 0}, scaled.Vertices[0:3])
	assert.Equal(t, quad.Vertices[3:8], scaled.Vertices[3:8])
	assert.Equal(t, quad.Indices, scaled.Indices)
	assert.Equal(t, float32(0.5), quad.Vertices[0], "source mesh must not be mutated")
}

func TestScaleWithoutLayout(t *testing.T) {
	bare := &Mesh{Name: "bare", Vertices: []float32{1, 2, 3}}

	var scaled *Mesh
	require.NotPanics(t, func() { scaled = Scale(bare, 2) })
	assert.Equal(t, bare.Vertices, scaled.Vertices)
}

func TestSquareIsIndexed(t *testing.T) {
	sq := Square()
	assert.True(t, sq.Indexed())
	assert.Equal(t, 4, sq.VertexCount())
	assert.Equal(t, 6, sq.DrawCount())
}

func TestValidateRejectsBadMeshes(t *testing.T) {
	short := &Mesh{Name: "short", Layout: PositionOnly, Vertices: []float32{0, 0, 0, 1}}
	assert.ErrorContains(t, short.Validate(), "not a multiple")

	empty := &Mesh{Name: "empty", Layout: PositionOnly}
	assert.ErrorContains(t, empty.Validate(), "no vertices")

	outOfRange := Square()
	outOfRange.Indices = append(outOfRange.Indices, 4)
	assert.ErrorContains(t, outOfRange.Validate(), "only 4 vertices")
}
