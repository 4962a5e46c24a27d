package scenes

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eden-gfx/eden/internal/config"
	"github.com/eden-gfx/eden/internal/geometry"
	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/shaders"
)

type fakeAssets struct {
	shaders      *shaders.Library
	textureCalls int
	textureErr   error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{shaders: shaders.NewLibrary("")}
}

func (f *fakeAssets) Textures(ctx context.Context) ([]*images.Image, error) {
	f.textureCalls++
	if f.textureErr != nil {
		return nil, f.textureErr
	}
	return []*images.Image{
		images.Solid("container", color.RGBA{R: 200, G: 120, B: 40, A: 255}),
		images.Solid("face", color.RGBA{R: 255, G: 220, A: 128}),
	}, nil
}

func (f *fakeAssets) Program(name string) (shaders.Program, error) {
	return f.shaders.Program(name)
}

func (f *fakeAssets) Mesh(ctx context.Context) (*geometry.Mesh, *images.Image, error) {
	return geometry.TexturedQuad(), images.Solid("mesh", color.RGBA{A: 255}), nil
}

func TestDefaultRegistryOrder(t *testing.T) {
	names := Default().Names()
	assert.Equal(t, []string{"across", "square", "two", "custom", "textured-triangle", "textured-quad", "mesh"}, names)

	r := Default()
	name, ok := r.NameAt(3)
	assert.True(t, ok)
	assert.Equal(t, "custom", name)

	_, ok = r.NameAt(len(names))
	assert.False(t, ok)
	_, ok = r.NameAt(-1)
	assert.False(t, ok)
}

func TestEveryDefaultSceneBuilds(t *testing.T) {
	r := Default()
	assets := newFakeAssets()

	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			scene, err := r.Build(context.Background(), name, assets)
			require.NoError(t, err)
			assert.Equal(t, name, scene.Name)
			assert.NotEmpty(t, scene.Draws)
			assert.Equal(t, float32(1), scene.ClearColor[3])
		})
	}
}

func TestOriginalColors(t *testing.T) {
	r := Default()
	assets := newFakeAssets()
	ctx := context.Background()

	across, err := r.Build(ctx, "across", assets)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0.5, 0.75, 0.1, 1}, across.ClearColor)
	assert.Equal(t, PolygonLine, across.Draws[0].Pipeline.Polygon)
	assert.Contains(t, across.Draws[0].Pipeline.Program.Source, "0.2500, 0.5000, 0.2000, 1.0000")
	assert.Equal(t, 6, across.Draws[0].Mesh.VertexCount())

	two, err := r.Build(ctx, "two", assets)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0.5, 0.75, 0.45, 1}, two.ClearColor)
	require.Len(t, two.Draws, 2)
	assert.NotSame(t, two.Draws[0].Mesh, two.Draws[1].Mesh, "each triangle owns its vertex buffer")
	assert.Contains(t, two.Draws[0].Pipeline.Program.Source, "0.6500, 0.2000, 0.7500, 1.0000")

	custom, err := r.Build(ctx, "custom", assets)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec4{0.25, 0.5, 0.2, 1}, custom.Draws[0].Uniforms.Tint)
	assert.Equal(t, "custom", custom.Draws[0].Pipeline.Program.Name)
}

func TestTexturedScenesBindTextures(t *testing.T) {
	r := Default()
	assets := newFakeAssets()
	ctx := context.Background()

	triangle, err := r.Build(ctx, "textured-triangle", assets)
	require.NoError(t, err)
	assert.Len(t, triangle.Draws[0].Textures, 1)
	assert.Equal(t, BlendAlpha, triangle.Draws[0].Pipeline.Blend)

	quad, err := r.Build(ctx, "textured-quad", assets)
	require.NoError(t, err)
	assert.Len(t, quad.Draws[0].Textures, 2)
	assert.True(t, quad.Draws[0].Mesh.Indexed())
	assert.InDelta(t, 0.2, quad.Draws[0].Uniforms.Params.X(), 1e-6)
}

func TestBuildUnknownScene(t *testing.T) {
	_, err := Default().Build(context.Background(), "teapot", newFakeAssets())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teapot")
	assert.Contains(t, err.Error(), "textured-quad")
}

func TestBuildPropagatesAssetErrors(t *testing.T) {
	assets := newFakeAssets()
	assets.textureErr = errors.New("disk on fire")

	_, err := Default().Build(context.Background(), "textured-quad", assets)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build scene textured-quad")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestRegisterTwiceFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", buildAcross))
	assert.Error(t, r.Register("a", buildSquare))
}

func TestValidateRejectsBrokenScenes(t *testing.T) {
	empty := &Scene{Name: "empty"}
	assert.ErrorContains(t, empty.Validate(), "nothing to draw")

	noMesh := &Scene{Name: "nomesh", Draws: []*Draw{{}}}
	assert.ErrorContains(t, noMesh.Validate(), "no mesh")

	tooMany := &Scene{Name: "many", Draws: []*Draw{{
		Mesh:     geometry.TexturedQuad(),
		Pipeline: PipelineDesc{Program: shaders.Solid("s", [4]float32{1, 1, 1, 1})},
		Textures: []*images.Image{
			images.Solid("a", color.RGBA{}),
			images.Solid("b", color.RGBA{}),
			images.Solid("c", color.RGBA{}),
		},
	}}}
	assert.ErrorContains(t, tooMany.Validate(), "at most 2")
}

func TestSpinningCameraAnimates(t *testing.T) {
	start := spinningCamera(Frame{Elapsed: 0, Aspect: 800.0 / 600.0})
	later := spinningCamera(Frame{Elapsed: time.Second, Aspect: 800.0 / 600.0})
	wrapped := spinningCamera(Frame{Elapsed: 4 * time.Second, Aspect: 800.0 / 600.0})

	assert.False(t, start.Transform.ApproxEqual(later.Transform))
	assert.True(t, start.Transform.ApproxEqualThreshold(wrapped.Transform, 1e-4), "period is four seconds")

	assert.NotPanics(t, func() { spinningCamera(Frame{}) })
}

func resolveIn(dir string) func(string) string {
	cfg := config.Default()
	cfg.Assets.Dir = dir
	return cfg.AssetPath
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())
}

func TestDiskAssetsCachesTextures(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		img.Set(0, 0, color.RGBA{R: 255, A: 255})
		writePNG(t, filepath.Join(dir, name), img)
	}

	assets := &DiskAssets{
		Resolve:      resolveIn(dir),
		TextureNames: []string{"a.png", "b.png"},
		Shaders:      shaders.NewLibrary(""),
		ImageOptions: images.DefaultOptions(),
	}

	first, err := assets.Textures(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, filepath.Join(dir, "a.png"), first[0].Name)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.png")))
	second, err := assets.Textures(context.Background())
	require.NoError(t, err)
	assert.Same(t, first[0], second[0])
}

func TestDiskAssetsMissingTexture(t *testing.T) {
	assets := &DiskAssets{
		Resolve:      resolveIn(t.TempDir()),
		TextureNames: []string{"container.jpg"},
		Shaders:      shaders.NewLibrary(""),
	}

	_, err := Default().Build(context.Background(), "textured-quad", assets)
	assert.ErrorContains(t, err, "container.jpg")
}

// A 1x2 picture: red on top, blue below. vt 0.9 is near the top.
const topCornerOBJ = `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0.9
f 1/1 2/1 3/1
`

func meshAssets(t *testing.T, withMaterial bool) *DiskAssets {
	t.Helper()
	dir := t.TempDir()

	obj := topCornerOBJ
	if withMaterial {
		obj = "mtllib model.mtl\nusemtl paint\n" + obj
		require.NoError(t, os.WriteFile(filepath.Join(dir, "model.mtl"), []byte("newmtl paint\nKd 1 1 1\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.obj"), []byte(obj), 0o644))

	picture := image.NewRGBA(image.Rect(0, 0, 1, 2))
	picture.Set(0, 0, color.RGBA{R: 255, A: 255})
	picture.Set(0, 1, color.RGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(dir, "model.png"), picture)

	return &DiskAssets{
		Resolve:      resolveIn(dir),
		MeshName:     "model.obj",
		MeshTexture:  "model.png",
		Shaders:      shaders.NewLibrary(""),
		ImageOptions: images.DefaultOptions(),
	}
}

func TestDiskAssetsMesh(t *testing.T) {
	for _, withMaterial := range []bool{false, true} {
		name := "without material"
		if withMaterial {
			name = "with material"
		}
		t.Run(name, func(t *testing.T) {
			assets := meshAssets(t, withMaterial)

			mesh, texture, err := assets.Mesh(context.Background())
			require.NoError(t, err)
			require.NoError(t, mesh.Validate())
			assert.Equal(t, 3, mesh.VertexCount())

			// The sampler addresses row floor(v*height) of the uploaded pixels.
			v := mesh.Vertices[7]
			row := int(v * float32(texture.Height))
			texel := texture.Pixels[row*texture.Width*4 : row*texture.Width*4+4]
			assert.Equal(t, []byte{255, 0, 0, 255}, texel, "top of the picture samples red")

			again, _, err := assets.Mesh(context.Background())
			require.NoError(t, err)
			assert.Same(t, mesh, again)
		})
	}
}

func TestDiskAssetsMeshBadFace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.obj"), []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n"), 0o644))

	assets := &DiskAssets{Resolve: resolveIn(dir), MeshName: "model.obj", MeshTexture: "model.png"}
	_, _, err := assets.Mesh(context.Background())
	assert.ErrorContains(t, err, "vertex index 9")
}
