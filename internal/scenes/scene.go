// Package scenes describes what each exercise draws: clear color, meshes,
// shader programs, fixed-function state and textures. It holds no graphics
// handles; the renderer turns a Scene into GPU resources.
package scenes

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/eden-gfx/eden/internal/geometry"
	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/shaders"
)

// MaxTextures is the number of texture slots a draw can fill.
const MaxTextures = 2

type PolygonMode int

const (
	PolygonFill PolygonMode = iota
	PolygonLine
)

type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAlpha
)

type PipelineDesc struct {
	Program   shaders.Program
	Polygon   PolygonMode
	Blend     BlendMode
	DepthTest bool
}

// Uniforms mirrors the Globals block shared by every shader program.
type Uniforms struct {
	Transform mgl32.Mat4
	Tint      mgl32.Vec4
	// Params.X weights the second texture, Params.Z the vertex color.
	Params mgl32.Vec4
}

func DefaultUniforms() Uniforms {
	return Uniforms{
		Transform: mgl32.Ident4(),
		Tint:      mgl32.Vec4{1, 1, 1, 1},
	}
}

// Frame is the per-frame input to animated draws.
type Frame struct {
	Elapsed time.Duration
	Aspect  float32
}

type Draw struct {
	Mesh     *geometry.Mesh
	Pipeline PipelineDesc
	Textures []*images.Image
	Uniforms Uniforms
	// Animate, when set, replaces Uniforms every frame.
	Animate func(Frame) Uniforms
}

func (d *Draw) UniformsAt(f Frame) Uniforms {
	if d.Animate != nil {
		return d.Animate(f)
	}
	return d.Uniforms
}

type Scene struct {
	Name       string
	ClearColor [4]float32
	Draws      []*Draw
}

func (s *Scene) Validate() error {
	if len(s.Draws) == 0 {
		return errors.Errorf("scene %s has nothing to draw", s.Name)
	}
	for i, draw := range s.Draws {
		if draw.Mesh == nil {
			return errors.Errorf("scene %s draw %d has no mesh", s.Name, i)
		}
		if err := draw.Mesh.Validate(); err != nil {
			return errors.Wrapf(err, "scene %s draw %d", s.Name, i)
		}
		if err := draw.Pipeline.Program.Validate(); err != nil {
			return errors.Wrapf(err, "scene %s draw %d", s.Name, i)
		}
		if len(draw.Textures) > MaxTextures {
			return errors.Errorf("scene %s draw %d binds %d textures, at most %d are supported", s.Name, i, len(draw.Textures), MaxTextures)
		}
		for slot, texture := range draw.Textures {
			if texture == nil || texture.Size() == 0 || len(texture.Pixels) != texture.Size() {
				return errors.Errorf("scene %s draw %d texture slot %d is empty", s.Name, i, slot)
			}
		}
	}
	return nil
}
