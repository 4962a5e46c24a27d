package renderer

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const hostMemory = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// gpuBuffer is a buffer and the memory bound to it.
type gpuBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
}

// gpuImage is an image, its memory and a view over all of its mip levels.
type gpuImage struct {
	image     core1_0.Image
	memory    core1_0.DeviceMemory
	view      core1_0.ImageView
	mipLevels int
}

type imageDesc struct {
	width, height int
	mipLevels     int
	samples       core1_0.SampleCountFlags
	format        core1_0.Format
	usage         core1_0.ImageUsageFlags
	aspect        core1_0.ImageAspectFlags
}

// pickMemoryType returns the first memory type allowed by typeFilter that has
// every flag in want.
func pickMemoryType(properties *core1_0.PhysicalDeviceMemoryProperties, typeFilter uint32, want core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range properties.MemoryTypes {
		if typeFilter&(1<<i) == 0 {
			continue
		}
		if memoryType.PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errors.Errorf("no memory type in mask %#x has %v", typeFilter, want)
}

func (r *Renderer) allocate(requirements *core1_0.MemoryRequirements, want core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	typeIndex, err := pickMemoryType(r.memoryProperties, requirements.MemoryTypeBits, want)
	if err != nil {
		return core1_0.DeviceMemory{}, err
	}

	memory, _, err := r.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: typeIndex,
	})
	return memory, err
}

// createBuffer returns a bound buffer or nothing at all.
func (r *Renderer) createBuffer(size int, usage core1_0.BufferUsageFlags, want core1_0.MemoryPropertyFlags) (gpuBuffer, error) {
	b := gpuBuffer{size: size}

	var err error
	b.buffer, _, err = r.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return gpuBuffer{}, err
	}

	b.memory, err = r.allocate(r.deviceDriver.GetBufferMemoryRequirements(b.buffer), want)
	if err == nil {
		_, err = r.deviceDriver.BindBufferMemory(b.buffer, b.memory, 0)
	}
	if err != nil {
		r.destroyBuffer(b)
		return gpuBuffer{}, err
	}
	return b, nil
}

func (r *Renderer) destroyBuffer(b gpuBuffer) {
	if b.buffer.Initialized() {
		r.deviceDriver.DestroyBuffer(b.buffer, nil)
	}
	if b.memory.Initialized() {
		r.deviceDriver.FreeMemory(b.memory, nil)
	}
}

// stage copies raw into a new host-visible transfer source.
func (r *Renderer) stage(raw []byte) (gpuBuffer, error) {
	staging, err := r.createBuffer(len(raw), core1_0.BufferUsageTransferSrc, hostMemory)
	if err != nil {
		return gpuBuffer{}, errors.Wrap(err, "staging buffer")
	}

	err = writeBytes(r.deviceDriver, staging.memory, 0, raw)
	if err != nil {
		r.destroyBuffer(staging)
		return gpuBuffer{}, err
	}
	return staging, nil
}

// uploadBuffer copies fixed-size data into a new device-local buffer.
func (r *Renderer) uploadBuffer(data any, usage core1_0.BufferUsageFlags) (gpuBuffer, error) {
	raw, err := binary.Append(nil, common.ByteOrder, data)
	if err != nil {
		return gpuBuffer{}, errors.Wrapf(err, "encode %T", data)
	}
	if len(raw) == 0 {
		return gpuBuffer{}, errors.Errorf("cannot upload empty %T", data)
	}

	staging, err := r.stage(raw)
	if err != nil {
		return gpuBuffer{}, err
	}
	defer r.destroyBuffer(staging)

	result, err := r.createBuffer(len(raw), core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return gpuBuffer{}, err
	}

	err = r.submitOnce(func(cb core1_0.CommandBuffer) error {
		return r.deviceDriver.CmdCopyBuffer(cb, staging.buffer, result.buffer, core1_0.BufferCopy{Size: len(raw)})
	})
	if err != nil {
		r.destroyBuffer(result)
		return gpuBuffer{}, err
	}
	return result, nil
}

func (r *Renderer) createImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (core1_0.ImageView, error) {
	view, _, err := r.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: mipLevels,
			LayerCount: 1,
		},
	})
	return view, err
}

// createImage returns a device-local image with its view, or nothing at all.
func (r *Renderer) createImage(desc imageDesc) (gpuImage, error) {
	img := gpuImage{mipLevels: desc.mipLevels}

	var err error
	img.image, _, err = r.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Extent:        core1_0.Extent3D{Width: desc.width, Height: desc.height, Depth: 1},
		MipLevels:     desc.mipLevels,
		ArrayLayers:   1,
		Format:        desc.format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         desc.usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       desc.samples,
	})
	if err != nil {
		return gpuImage{}, err
	}

	img.memory, err = r.allocate(r.deviceDriver.GetImageMemoryRequirements(img.image), core1_0.MemoryPropertyDeviceLocal)
	if err == nil {
		_, err = r.deviceDriver.BindImageMemory(img.image, img.memory, 0)
	}
	if err == nil {
		img.view, err = r.createImageView(img.image, desc.format, desc.aspect, desc.mipLevels)
	}
	if err != nil {
		r.destroyImage(&img)
		return gpuImage{}, err
	}
	return img, nil
}

func (r *Renderer) destroyImage(img *gpuImage) {
	if img.view.Initialized() {
		r.deviceDriver.DestroyImageView(img.view, nil)
	}
	if img.image.Initialized() {
		r.deviceDriver.DestroyImage(img.image, nil)
	}
	if img.memory.Initialized() {
		r.deviceDriver.FreeMemory(img.memory, nil)
	}
	*img = gpuImage{}
}

// submitOnce records into a throwaway primary command buffer, runs it on the
// graphics queue and waits for the queue to drain. The command buffer is freed
// on every path.
func (r *Renderer) submitOnce(record func(core1_0.CommandBuffer) error) error {
	buffers, _, err := r.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return err
	}
	cb := buffers[0]
	defer r.deviceDriver.FreeCommandBuffers(cb)

	_, err = r.deviceDriver.BeginCommandBuffer(cb, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	if err := record(cb); err != nil {
		return err
	}

	if _, err := r.deviceDriver.EndCommandBuffer(cb); err != nil {
		return err
	}

	_, err = r.deviceDriver.QueueSubmit(r.graphicsQueue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{cb},
	})
	if err != nil {
		return err
	}

	_, err = r.deviceDriver.QueueWaitIdle(r.graphicsQueue)
	return err
}

// writeData encodes fixed-size data into host-visible memory at offset.
func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	raw, err := binary.Append(nil, common.ByteOrder, data)
	if err != nil {
		return errors.Wrapf(err, "encode %T", data)
	}
	return writeBytes(driver, memory, offset, raw)
}

func writeBytes(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, raw []byte) error {
	ptr, _, err := driver.MapMemory(memory, offset, len(raw), 0)
	if err != nil {
		return err
	}
	defer driver.UnmapMemory(memory)

	copy(unsafe.Slice((*byte)(ptr), len(raw)), raw)
	return nil
}
