package meshes

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"

	"github.com/eden-gfx/eden/internal/geometry"
)

type vertexKey struct {
	position int
	uv       int
}

// LoadOBJ reads a Wavefront OBJ file, and its material library if mtlPath is
// not empty, into an indexed mesh laid out as position, color, texcoord.
func LoadOBJ(objPath, mtlPath string) (*geometry.Mesh, error) {
	objFile, err := os.Open(objPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open mesh %s", objPath)
	}
	defer objFile.Close()

	var mtlReader io.Reader
	if mtlPath != "" {
		mtlFile, err := os.Open(mtlPath)
		if err != nil {
			return nil, errors.Wrapf(err, "open material library %s", mtlPath)
		}
		defer mtlFile.Close()
		mtlReader = mtlFile
	}

	mesh, err := DecodeOBJ(filepath.Base(objPath), objFile, mtlReader)
	if err != nil {
		return nil, errors.Wrapf(err, "load mesh %s", objPath)
	}
	return mesh, nil
}

// DecodeOBJ builds a mesh from OBJ text. A nil mtlReader decodes with the
// default material. Texture coordinates keep the OBJ convention of v=0 at
// the bottom of the image, which matches images loaded with FlipVertical.
func DecodeOBJ(name string, objReader, mtlReader io.Reader) (*geometry.Mesh, error) {
	if mtlReader == nil {
		mtlReader = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	b := &builder{
		decoder: decoder,
		mesh: &geometry.Mesh{
			Name:   name,
			Layout: geometry.PositionColorTexCoord,
		},
		unique: make(map[vertexKey]uint32),
	}

	for _, decodedObj := range decoder.Objects {
		for faceIdx, face := range decodedObj.Faces {
			// Fan-triangulate polygons.
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := b.addVertex(face, corner); err != nil {
						return nil, errors.Wrapf(err, "object %s face %d", decodedObj.Name, faceIdx+1)
					}
				}
			}
		}
	}

	if err := b.mesh.Validate(); err != nil {
		return nil, err
	}
	return b.mesh, nil
}

type builder struct {
	decoder *obj.Decoder
	mesh    *geometry.Mesh
	unique  map[vertexKey]uint32
}

func (b *builder) addVertex(face obj.Face, corner int) error {
	positions, uvs := b.decoder.Vertices, b.decoder.Uvs

	key := vertexKey{position: face.Vertices[corner], uv: -1}
	if key.position < 0 || key.position >= len(positions)/3 {
		return errors.Errorf("vertex index %d out of range, %d positions", key.position+1, len(positions)/3)
	}
	if corner < len(face.Uvs) && int64(face.Uvs[corner]) != math.MaxUint32 {
		key.uv = face.Uvs[corner]
		if key.uv < 0 || key.uv >= len(uvs)/2 {
			return errors.Errorf("texcoord index %d out of range, %d texcoords", key.uv+1, len(uvs)/2)
		}
	}

	index, exists := b.unique[key]
	if !exists {
		var u, v float32
		if key.uv >= 0 {
			u, v = uvs[key.uv*2], uvs[key.uv*2+1]
		}

		index = uint32(b.mesh.VertexCount())
		b.mesh.Vertices = append(b.mesh.Vertices,
			positions[key.position*3], positions[key.position*3+1], positions[key.position*3+2],
			1, 1, 1,
			u, v,
		)
		b.unique[key] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
	return nil
}
