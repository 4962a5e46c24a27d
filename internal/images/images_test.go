package images

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// writeStripes writes an image whose top row is red and the rest blue.
func writeStripes(t *testing.T, dir, name string, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y == 0 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	switch filepath.Ext(name) {
	case ".png":
		require.NoError(t, png.Encode(file, img))
	case ".jpg":
		require.NoError(t, jpeg.Encode(file, img, &jpeg.Options{Quality: 100}))
	default:
		t.Fatalf("unsupported extension %s", name)
	}
	return path
}

func TestLoadPNGKeepsRowOrderWithoutFlip(t *testing.T) {
	path := writeStripes(t, t.TempDir(), "stripes.png", 4, 3)

	img, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Len(t, img.Pixels, img.Size())
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[0:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[len(img.Pixels)-4:])
}

func TestLoadFlipsVertically(t *testing.T) {
	path := writeStripes(t, t.TempDir(), "stripes.png", 2, 2)

	img, err := Load(path, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[0:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[len(img.Pixels)-4:])
}

func TestLoadJPEG(t *testing.T) {
	path := writeStripes(t, t.TempDir(), "stripes.jpg", 16, 16)

	img, err := Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 16, img.Height)
	assert.Len(t, img.Pixels, 16*16*4)
}

func TestLoadDownscales(t *testing.T) {
	path := writeStripes(t, t.TempDir(), "wide.png", 64, 16)

	img, err := Load(path, Options{MaxDimension: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, img.Width)
	assert.Equal(t, 8, img.Height)
	assert.Len(t, img.Pixels, img.Size())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.png"), Options{})
	assert.ErrorContains(t, err, "missing.png")

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = Load(garbage, Options{})
	assert.ErrorContains(t, err, "decode texture")
}

func TestLoadAllKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	small := writeStripes(t, dir, "small.png", 2, 2)
	large := writeStripes(t, dir, "large.png", 8, 4)

	loaded, err := LoadAll(context.Background(), []string{large, small}, Options{})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, large, loaded[0].Name)
	assert.Equal(t, 8, loaded[0].Width)
	assert.Equal(t, small, loaded[1].Name)
	assert.Equal(t, 2, loaded[1].Width)
}

func TestLoadAllReportsFailingPath(t *testing.T) {
	dir := t.TempDir()
	good := writeStripes(t, dir, "good.png", 2, 2)

	_, err := LoadAll(context.Background(), []string{good, filepath.Join(dir, "nope.png")}, Options{})
	assert.ErrorContains(t, err, "nope.png")
}

func TestSolid(t *testing.T) {
	img := Solid("white", color.RGBA{R: 255, G: 255, B: 255, A: 255})
	assert.Equal(t, 1, img.Width)
	assert.Equal(t, 1, img.Height)
	assert.Equal(t, []byte{255, 255, 255, 255}, img.Pixels)
}
