package renderer

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/eden-gfx/eden/internal/scenes"
)

// clipCorrection maps OpenGL-style clip space, y up and z in [-1, 1], onto
// Vulkan's, y down and z in [0, 1].
var clipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// uniformBlock is the std140 image of the Globals struct in every program.
type uniformBlock struct {
	Transform [16]float32
	Tint      [4]float32
	Params    [4]float32
}

var uniformBlockSize = int(unsafe.Sizeof(uniformBlock{}))

func newUniformBlock(u scenes.Uniforms) uniformBlock {
	return uniformBlock{
		Transform: clipCorrection.Mul4(u.Transform),
		Tint:      u.Tint,
		Params:    u.Params,
	}
}
