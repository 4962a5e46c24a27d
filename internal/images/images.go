// Package images decodes texture files into tightly packed RGBA8 pixels ready
// for upload.
package images

import (
	"context"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is an RGBA8 pixel buffer, row 0 first.
type Image struct {
	Name   string
	Width  int
	Height int
	Pixels []byte
}

// Size is the pixel buffer length in bytes.
func (i *Image) Size() int {
	return i.Width * i.Height * 4
}

type Options struct {
	// FlipVertical stores the bottom row first so texture coordinate (0,0)
	// addresses the bottom-left corner of the picture.
	FlipVertical bool
	// MaxDimension downscales larger images, keeping the aspect ratio. Zero
	// disables scaling.
	MaxDimension int
}

func DefaultOptions() Options {
	return Options{FlipVertical: true}
}

func Load(path string, opts Options) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load texture %s", path)
	}
	defer file.Close()

	decoded, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decode texture %s", path)
	}

	img := FromImage(path, decoded, opts)
	if img.Width == 0 || img.Height == 0 {
		return nil, errors.Errorf("texture %s (%s) is empty", path, format)
	}
	return img, nil
}

// LoadAll decodes every path concurrently. Results keep the order of paths.
func LoadAll(ctx context.Context, paths []string, opts Options) ([]*Image, error) {
	loaded := make([]*Image, len(paths))

	group, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			img, err := Load(path, opts)
			if err != nil {
				return err
			}
			loaded[i] = img
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return loaded, nil
}

func FromImage(name string, src image.Image, opts Options) *Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	if opts.MaxDimension > 0 && (width > opts.MaxDimension || height > opts.MaxDimension) {
		width, height = fit(width, height, opts.MaxDimension)
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), rgba, rgba.Bounds(), draw.Src, nil)
		rgba = scaled
	}

	pixels := make([]byte, width*height*4)
	rowBytes := width * 4
	for y := 0; y < height; y++ {
		srcRow := y
		if opts.FlipVertical {
			srcRow = height - 1 - y
		}
		copy(pixels[y*rowBytes:(y+1)*rowBytes], rgba.Pix[srcRow*rgba.Stride:srcRow*rgba.Stride+rowBytes])
	}

	return &Image{
		Name:   name,
		Width:  width,
		Height: height,
		Pixels: pixels,
	}
}

// Solid is a 1x1 image of a single color.
func Solid(name string, c color.RGBA) *Image {
	return &Image{
		Name:   name,
		Width:  1,
		Height: 1,
		Pixels: []byte{c.R, c.G, c.B, c.A},
	}
}

func fit(width, height, limit int) (int, int) {
	if width >= height {
		return limit, max(1, height*limit/width)
	}
	return max(1, width*limit/height), limit
}
