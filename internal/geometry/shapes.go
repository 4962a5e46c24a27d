package geometry

// Coordinates are in normalized device coordinates, with -1..1 on both axes and
// +Y pointing up.

// Triangle is an isosceles triangle centred on the origin with the given half-extent.
func Triangle(size float32) *Mesh {
	return &Mesh{
		Name:   "triangle",
		Layout: PositionOnly,
		Vertices: []float32{
			-size, -size, 0,
			size, -size, 0,
			0, size, 0,
		},
	}
}

// AcrossTriangles is two triangles meeting at the origin, drawn twice the size
// of the source coordinates.
func AcrossTriangles() *Mesh {
	base := &Mesh{
		Name:   "across",
		Layout: PositionOnly,
		Vertices: []float32{
			0, 0.25, 0,
			-0.25, 0, 0,
			0, 0, 0,
			0, 0, 0,
			0, -0.25, 0,
			0.25, 0, 0,
		},
	}
	return Scale(base, 2)
}

// Square is drawn through an element buffer: four corners, two triangles.
func Square() *Mesh {
	return &Mesh{
		Name:   "square",
		Layout: PositionOnly,
		Vertices: []float32{
			0.5, 0.5, 0, // top right
			0.5, -0.5, 0, // bottom right
			-0.5, -0.5, 0, // bottom left
			-0.5, 0.5, 0, // top left
		},
		Indices: []uint32{
			0, 1, 3,
			1, 2, 3,
		},
	}
}

func LeftTriangle() *Mesh {
	return &Mesh{
		Name:   "left",
		Layout: PositionOnly,
		Vertices: []float32{
			-0.25, 0.5, 0,
			-0.5, 0.25, 0,
			-0.25, 0.25, 0,
		},
	}
}

func RightTriangle() *Mesh {
	return &Mesh{
		Name:   "right",
		Layout: PositionOnly,
		Vertices: []float32{
			0.25, 0.5, 0,
			0.5, 0.25, 0,
			0.25, 0.25, 0,
		},
	}
}

func CustomTriangle() *Mesh {
	m := Triangle(0.33)
	m.Name = "custom"
	return m
}

// TexturedTriangle carries position, color and texture coordinates.
func TexturedTriangle() *Mesh {
	return &Mesh{
		Name:   "textured-triangle",
		Layout: PositionColorTexCoord,
		Vertices: []float32{
			// position       color          texcoord
			-0.5, -0.5, 0, 1, 0, 0, 0, 0,
			0.5, -0.5, 0, 0, 1, 0, 1, 0,
			0, 0.5, 0, 0, 0, 1, 0.5, 1,
		},
	}
}

func TexturedQuad() *Mesh {
	return &Mesh{
		Name:   "textured-quad",
		Layout: PositionColorTexCoord,
		Vertices: []float32{
			// position       color          texcoord
			0.5, 0.5, 0, 1, 0, 0, 1, 1, // top right
			0.5, -0.5, 0, 0, 1, 0, 1, 0, // bottom right
			-0.5, -0.5, 0, 0, 0, 1, 0, 0, // bottom left
			-0.5, 0.5, 0, 1, 1, 0, 0, 1, // top left
		},
		Indices: []uint32{
			0, 1, 3,
			1, 2, 3,
		},
	}
}
