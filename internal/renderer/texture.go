package renderer

import (
	"math"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/eden-gfx/eden/internal/images"
)

const textureFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

// maxSamplerLod leaves the mip chain length to each image view.
const maxSamplerLod = 1000

type gpuTexture struct {
	name string
	gpuImage
}

// layoutTransition is one image barrier in the upload path.
type layoutTransition struct {
	from, to             core1_0.ImageLayout
	srcAccess, dstAccess core1_0.AccessFlags
	srcStage, dstStage   core1_0.PipelineStageFlags
}

var (
	undefinedToTransferDst = layoutTransition{
		from:      core1_0.ImageLayoutUndefined,
		to:        core1_0.ImageLayoutTransferDstOptimal,
		dstAccess: core1_0.AccessTransferWrite,
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageTransfer,
	}
	transferDstToSrc = layoutTransition{
		from:      core1_0.ImageLayoutTransferDstOptimal,
		to:        core1_0.ImageLayoutTransferSrcOptimal,
		srcAccess: core1_0.AccessTransferWrite,
		dstAccess: core1_0.AccessTransferRead,
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageTransfer,
	}
	transferSrcToShaderRead = layoutTransition{
		from:      core1_0.ImageLayoutTransferSrcOptimal,
		to:        core1_0.ImageLayoutShaderReadOnlyOptimal,
		srcAccess: core1_0.AccessTransferRead,
		dstAccess: core1_0.AccessShaderRead,
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageFragmentShader,
	}
	transferDstToShaderRead = layoutTransition{
		from:      core1_0.ImageLayoutTransferDstOptimal,
		to:        core1_0.ImageLayoutShaderReadOnlyOptimal,
		srcAccess: core1_0.AccessTransferWrite,
		dstAccess: core1_0.AccessShaderRead,
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageFragmentShader,
	}
)

// mipLevelCount is the length of a full mip chain down to 1x1.
func mipLevelCount(width, height int) int {
	largest := max(width, height)
	if largest < 1 {
		return 1
	}
	return int(math.Floor(math.Log2(float64(largest)))) + 1
}

func colorLayers(mipLevel int) core1_0.ImageSubresourceLayers {
	return core1_0.ImageSubresourceLayers{
		AspectMask: core1_0.ImageAspectColor,
		MipLevel:   mipLevel,
		LayerCount: 1,
	}
}

// mipBlits halves each level into the next, never going below one texel.
func mipBlits(width, height, mipLevels int) []core1_0.ImageBlit {
	var blits []core1_0.ImageBlit
	for level := 1; level < mipLevels; level++ {
		nextWidth, nextHeight := max(width/2, 1), max(height/2, 1)
		blits = append(blits, core1_0.ImageBlit{
			SrcSubresource: colorLayers(level - 1),
			SrcOffsets:     [2]core1_0.Offset3D{{}, {X: width, Y: height, Z: 1}},
			DstSubresource: colorLayers(level),
			DstOffsets:     [2]core1_0.Offset3D{{}, {X: nextWidth, Y: nextHeight, Z: 1}},
		})
		width, height = nextWidth, nextHeight
	}
	return blits
}

// MaxTextureDimension is the largest texture edge the device accepts.
func (r *Renderer) MaxTextureDimension() int {
	return r.deviceProperties.Limits.MaxImageDimension2D
}

func (r *Renderer) linearBlitSupported() bool {
	properties := r.instanceDriver.GetPhysicalDeviceFormatProperties(r.physicalDevice, textureFormat)
	return (properties.OptimalTilingFeatures & core1_0.FormatFeatureSampledImageFilterLinear) != 0
}

// uploadTexture stages the pixels, then copies them and builds the mip chain
// in a single submission.
func (r *Renderer) uploadTexture(img *images.Image) (*gpuTexture, error) {
	mipLevels := 1
	if r.linearBlitSupported() {
		mipLevels = mipLevelCount(img.Width, img.Height)
	}

	staging, err := r.stage(img.Pixels)
	if err != nil {
		return nil, err
	}
	defer r.destroyBuffer(staging)

	texture := &gpuTexture{name: img.Name}
	texture.gpuImage, err = r.createImage(imageDesc{
		width:     img.Width,
		height:    img.Height,
		mipLevels: mipLevels,
		samples:   core1_0.Samples1,
		format:    textureFormat,
		usage:     core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		aspect:    core1_0.ImageAspectColor,
	})
	if err != nil {
		return nil, err
	}

	err = r.submitOnce(func(cb core1_0.CommandBuffer) error {
		return r.recordTextureUpload(cb, staging, texture.image, img.Width, img.Height, mipLevels)
	})
	if err != nil {
		r.destroyTexture(texture)
		return nil, err
	}

	r.logger.Debug("texture uploaded", "name", img.Name, "width", img.Width, "height", img.Height, "mips", mipLevels)
	return texture, nil
}

func (r *Renderer) destroyTexture(texture *gpuTexture) {
	r.destroyImage(&texture.gpuImage)
}

func (r *Renderer) cmdTransition(cb core1_0.CommandBuffer, image core1_0.Image, t layoutTransition, baseMip, levels int) error {
	return r.deviceDriver.CmdPipelineBarrier(cb, t.srcStage, t.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           t.from,
			NewLayout:           t.to,
			SrcAccessMask:       t.srcAccess,
			DstAccessMask:       t.dstAccess,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:   core1_0.ImageAspectColor,
				BaseMipLevel: baseMip,
				LevelCount:   levels,
				LayerCount:   1,
			},
		},
	})
}

// recordTextureUpload leaves every mip level in shader-read layout.
func (r *Renderer) recordTextureUpload(cb core1_0.CommandBuffer, staging gpuBuffer, image core1_0.Image, width, height, mipLevels int) error {
	err := r.cmdTransition(cb, image, undefinedToTransferDst, 0, mipLevels)
	if err != nil {
		return err
	}

	err = r.deviceDriver.CmdCopyBufferToImage(cb, staging.buffer, image, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageSubresource: colorLayers(0),
			ImageExtent:      core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		})
	if err != nil {
		return err
	}

	for i, blit := range mipBlits(width, height, mipLevels) {
		if err := r.cmdTransition(cb, image, transferDstToSrc, i, 1); err != nil {
			return err
		}
		err = r.deviceDriver.CmdBlitImage(cb,
			image, core1_0.ImageLayoutTransferSrcOptimal,
			image, core1_0.ImageLayoutTransferDstOptimal,
			[]core1_0.ImageBlit{blit}, core1_0.FilterLinear)
		if err != nil {
			return err
		}
		if err := r.cmdTransition(cb, image, transferSrcToShaderRead, i, 1); err != nil {
			return err
		}
	}

	// Last level was only ever written to.
	return r.cmdTransition(cb, image, transferDstToShaderRead, mipLevels-1, 1)
}

func (r *Renderer) createSampler() error {
	var maxAnisotropy float32 = 1
	if r.anisotropy {
		maxAnisotropy = r.deviceProperties.Limits.MaxSamplerAnisotropy
	}

	var err error
	r.sampler, _, err = r.deviceDriver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:        core1_0.FilterLinear,
		MinFilter:        core1_0.FilterLinear,
		MipmapMode:       core1_0.SamplerMipmapModeLinear,
		AddressModeU:     core1_0.SamplerAddressModeRepeat,
		AddressModeV:     core1_0.SamplerAddressModeRepeat,
		AddressModeW:     core1_0.SamplerAddressModeRepeat,
		AnisotropyEnable: r.anisotropy,
		MaxAnisotropy:    maxAnisotropy,
		BorderColor:      core1_0.BorderColorIntOpaqueBlack,
		MaxLod:           maxSamplerLod,
	})
	return err
}

func (r *Renderer) destroySampler() {
	if r.sampler.Initialized() {
		r.deviceDriver.DestroySampler(r.sampler, nil)
		r.sampler = core1_0.Sampler{}
	}
}
