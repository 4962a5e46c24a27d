package scenes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/eden-gfx/eden/internal/geometry"
	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/meshes"
	"github.com/eden-gfx/eden/internal/shaders"
)

// Assets is what scene builders read from outside the binary.
type Assets interface {
	// Textures returns the configured texture pair, in configuration order.
	Textures(ctx context.Context) ([]*images.Image, error)
	Program(name string) (shaders.Program, error)
	Mesh(ctx context.Context) (*geometry.Mesh, *images.Image, error)
}

// DiskAssets loads files named by the configuration and keeps what it decoded,
// so switching back to a scene does not touch the disk again.
type DiskAssets struct {
	// Resolve turns a configured file name into a path, typically
	// config.Config.AssetPath.
	Resolve      func(name string) string
	TextureNames []string
	MeshName     string
	MeshTexture  string
	Shaders      *shaders.Library
	ImageOptions images.Options

	mu       sync.Mutex
	textures []*images.Image
	mesh     *geometry.Mesh
	meshTex  *images.Image
}

func (a *DiskAssets) Textures(ctx context.Context) ([]*images.Image, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.textures != nil {
		return a.textures, nil
	}

	paths := make([]string, len(a.TextureNames))
	for i, name := range a.TextureNames {
		paths[i] = a.Resolve(name)
	}

	loaded, err := images.LoadAll(ctx, paths, a.ImageOptions)
	if err != nil {
		return nil, err
	}
	a.textures = loaded
	return loaded, nil
}

func (a *DiskAssets) Program(name string) (shaders.Program, error) {
	return a.Shaders.Program(name)
}

func (a *DiskAssets) Mesh(ctx context.Context) (*geometry.Mesh, *images.Image, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mesh != nil {
		return a.mesh, a.meshTex, nil
	}

	meshPath := a.Resolve(a.MeshName)
	mtlPath := strings.TrimSuffix(meshPath, filepath.Ext(meshPath)) + ".mtl"
	if !fileExists(mtlPath) {
		// Default material.
		mtlPath = ""
	}

	mesh, err := meshes.LoadOBJ(meshPath, mtlPath)
	if err != nil {
		return nil, nil, err
	}

	loaded, err := images.LoadAll(ctx, []string{a.Resolve(a.MeshTexture)}, a.ImageOptions)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mesh texture")
	}

	a.mesh, a.meshTex = mesh, loaded[0]
	return a.mesh, a.meshTex, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
