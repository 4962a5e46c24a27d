package scenes

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/eden-gfx/eden/internal/geometry"
	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/shaders"
)

var (
	lime       = [4]float32{0.5, 0.75, 0.1, 1}
	sage       = [4]float32{0.5, 0.75, 0.45, 1}
	leafGreen  = [4]float32{0.25, 0.5, 0.2, 1}
	orchid     = [4]float32{0.65, 0.2, 0.75, 1}
	blackClear = [4]float32{0, 0, 0, 1}
)

func solidDraw(mesh *geometry.Mesh, program shaders.Program, polygon PolygonMode) *Draw {
	return &Draw{
		Mesh: mesh,
		Pipeline: PipelineDesc{
			Program: program,
			Polygon: polygon,
		},
		Uniforms: DefaultUniforms(),
	}
}

// across: two touching triangles in wireframe.
func buildAcross(ctx context.Context, assets Assets) (*Scene, error) {
	return &Scene{
		Name:       "across",
		ClearColor: lime,
		Draws: []*Draw{
			solidDraw(geometry.AcrossTriangles(), shaders.Solid("across", leafGreen), PolygonLine),
		},
	}, nil
}

// square: four vertices drawn through an element buffer.
func buildSquare(ctx context.Context, assets Assets) (*Scene, error) {
	return &Scene{
		Name:       "square",
		ClearColor: lime,
		Draws: []*Draw{
			solidDraw(geometry.Square(), shaders.Solid("square", leafGreen), PolygonFill),
		},
	}, nil
}

// two: two triangles, each from its own vertex buffer, sharing one program.
func buildTwo(ctx context.Context, assets Assets) (*Scene, error) {
	program := shaders.Solid("two", orchid)
	return &Scene{
		Name:       "two",
		ClearColor: sage,
		Draws: []*Draw{
			solidDraw(geometry.LeftTriangle(), program, PolygonFill),
			solidDraw(geometry.RightTriangle(), program, PolygonFill),
		},
	}, nil
}

// custom: the fragment color comes from a uniform in a file-backed program.
func buildCustom(ctx context.Context, assets Assets) (*Scene, error) {
	program, err := assets.Program("custom")
	if err != nil {
		return nil, err
	}

	draw := solidDraw(geometry.CustomTriangle(), program, PolygonFill)
	draw.Uniforms.Tint = mgl32.Vec4(leafGreen)

	return &Scene{
		Name:       "custom",
		ClearColor: lime,
		Draws:      []*Draw{draw},
	}, nil
}

// textured-triangle: one texture modulated by vertex colors, blended over the
// clear color.
func buildTexturedTriangle(ctx context.Context, assets Assets) (*Scene, error) {
	program, err := assets.Program("textured")
	if err != nil {
		return nil, err
	}
	textures, err := assets.Textures(ctx)
	if err != nil {
		return nil, err
	}
	if len(textures) == 0 {
		return nil, errors.New("no textures configured")
	}

	uniforms := DefaultUniforms()
	uniforms.Tint = mgl32.Vec4{1, 1, 1, 0.75}
	uniforms.Params = mgl32.Vec4{0, 0, 1, 0}

	return &Scene{
		Name:       "textured-triangle",
		ClearColor: lime,
		Draws: []*Draw{
			{
				Mesh: geometry.TexturedTriangle(),
				Pipeline: PipelineDesc{
					Program: program,
					Blend:   BlendAlpha,
				},
				Textures: textures[:1],
				Uniforms: uniforms,
			},
		},
	}, nil
}

// textured-quad: both textures mixed 80/20, honoring the second one's alpha.
func buildTexturedQuad(ctx context.Context, assets Assets) (*Scene, error) {
	program, err := assets.Program("textured")
	if err != nil {
		return nil, err
	}
	textures, err := assets.Textures(ctx)
	if err != nil {
		return nil, err
	}
	if len(textures) == 0 {
		return nil, errors.New("no textures configured")
	}

	uniforms := DefaultUniforms()
	uniforms.Params = mgl32.Vec4{0.2, 0, 0, 0}

	return &Scene{
		Name:       "textured-quad",
		ClearColor: sage,
		Draws: []*Draw{
			{
				Mesh: geometry.TexturedQuad(),
				Pipeline: PipelineDesc{
					Program: program,
					Blend:   BlendAlpha,
				},
				Textures: textures[:min(len(textures), MaxTextures)],
				Uniforms: uniforms,
			},
		},
	}, nil
}

// mesh: a textured OBJ model spinning a quarter turn per second.
func buildMesh(ctx context.Context, assets Assets) (*Scene, error) {
	program, err := assets.Program("textured")
	if err != nil {
		return nil, err
	}
	mesh, texture, err := assets.Mesh(ctx)
	if err != nil {
		return nil, err
	}

	return &Scene{
		Name:       "mesh",
		ClearColor: blackClear,
		Draws: []*Draw{
			{
				Mesh: mesh,
				Pipeline: PipelineDesc{
					Program:   program,
					DepthTest: true,
				},
				Textures: []*images.Image{texture},
				Uniforms: DefaultUniforms(),
				Animate:  spinningCamera,
			},
		},
	}, nil
}

func spinningCamera(f Frame) Uniforms {
	period := math.Mod(f.Elapsed.Seconds(), 4.0)

	model := mgl32.HomogRotate3DZ(float32(period * math.Pi / 2.0))
	view := mgl32.LookAtV(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1})

	aspect := f.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)

	uniforms := DefaultUniforms()
	uniforms.Transform = proj.Mul4(view).Mul4(model)
	return uniforms
}
