package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/eden-gfx/eden/internal/geometry"
	"github.com/eden-gfx/eden/internal/scenes"
	"github.com/eden-gfx/eden/internal/shaders"
)

func TestChooseSwapPresentMode(t *testing.T) {
	all := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate, khr_surface.PresentModeMailbox}

	assert.Equal(t, khr_surface.PresentModeFIFO, chooseSwapPresentMode(all, true))
	assert.Equal(t, khr_surface.PresentModeMailbox, chooseSwapPresentMode(all, false))
	assert.Equal(t, khr_surface.PresentModeImmediate, chooseSwapPresentMode(all[:2], false))
	assert.Equal(t, khr_surface.PresentModeFIFO, chooseSwapPresentMode(all[:1], false))
}

func TestChooseSwapSurfaceFormat(t *testing.T) {
	srgb := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	unorm := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	assert.Equal(t, unorm, chooseSwapSurfaceFormat([]khr_surface.SurfaceFormat{srgb, unorm}))
	assert.Equal(t, srgb, chooseSwapSurfaceFormat([]khr_surface.SurfaceFormat{srgb}))
}

func TestChooseSwapExtent(t *testing.T) {
	capabilities := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 1024, Height: 768},
	}

	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseSwapExtent(capabilities, 800, 600))
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 1}, chooseSwapExtent(capabilities, 4000, 0))

	capabilities.CurrentExtent = core1_0.Extent2D{Width: 640, Height: 480}
	assert.Equal(t, capabilities.CurrentExtent, chooseSwapExtent(capabilities, 800, 600))
}

func TestMaxUsableSampleCount(t *testing.T) {
	assert.Equal(t, core1_0.Samples8, maxUsableSampleCount(core1_0.Samples1|core1_0.Samples4|core1_0.Samples8))
	assert.Equal(t, core1_0.Samples1, maxUsableSampleCount(core1_0.Samples1))
	assert.Equal(t, core1_0.Samples1, maxUsableSampleCount(0))
}

func TestMipLevelCount(t *testing.T) {
	assert.Equal(t, 1, mipLevelCount(1, 1))
	assert.Equal(t, 1, mipLevelCount(0, 0))
	assert.Equal(t, 10, mipLevelCount(512, 512))
	assert.Equal(t, 10, mipLevelCount(512, 300))
	assert.Equal(t, 11, mipLevelCount(1024, 1))
}

func TestDeviceScorePrefersDiscrete(t *testing.T) {
	integrated := &core1_0.PhysicalDeviceProperties{
		DriverType: core1_0.PhysicalDeviceTypeIntegratedGPU,
		Limits:     &core1_0.PhysicalDeviceLimits{MaxImageDimension2D: 16384},
	}
	discrete := &core1_0.PhysicalDeviceProperties{
		DriverType: core1_0.PhysicalDeviceTypeDiscreteGPU,
		Limits:     &core1_0.PhysicalDeviceLimits{MaxImageDimension2D: 16384},
	}
	assert.Greater(t, deviceScore(discrete), deviceScore(integrated))
	assert.Positive(t, deviceScore(integrated))
}

func TestVertexAttributeDescriptions(t *testing.T) {
	attributes, err := vertexAttributeDescriptions(geometry.PositionColorTexCoord)
	require.NoError(t, err)
	require.Len(t, attributes, 3)

	assert.Equal(t, core1_0.FormatR32G32B32SignedFloat, attributes[0].Format)
	assert.Equal(t, 0, attributes[0].Offset)
	assert.Equal(t, 1, attributes[1].Location)
	assert.Equal(t, 12, attributes[1].Offset)
	assert.Equal(t, core1_0.FormatR32G32SignedFloat, attributes[2].Format)
	assert.Equal(t, 24, attributes[2].Offset)

	bindings := vertexBindingDescriptions(geometry.PositionColorTexCoord)
	require.Len(t, bindings, 1)
	assert.Equal(t, 32, bindings[0].Stride)

	_, err = vertexAttributeDescriptions(geometry.Layout{5})
	assert.ErrorContains(t, err, "5 components")
}

func TestPipelineKeysShareEqualState(t *testing.T) {
	module := &shaders.Module{Name: "m"}
	desc := scenes.PipelineDesc{Blend: scenes.BlendAlpha}

	a := newPipelineKey(module, geometry.PositionOnly, desc)
	b := newPipelineKey(module, geometry.Layout{3}, desc)
	assert.Equal(t, a, b)

	desc.DepthTest = true
	assert.NotEqual(t, a, newPipelineKey(module, geometry.PositionOnly, desc))
	assert.NotEqual(t, a, newPipelineKey(module, geometry.PositionColorTexCoord, scenes.PipelineDesc{Blend: scenes.BlendAlpha}))
	assert.NotEqual(t, a, newPipelineKey(&shaders.Module{Name: "m"}, geometry.PositionOnly, scenes.PipelineDesc{Blend: scenes.BlendAlpha}))
}

func TestFixedFunctionMapping(t *testing.T) {
	assert.Equal(t, core1_0.PolygonModeLine, polygonMode(scenes.PolygonLine, true))
	assert.Equal(t, core1_0.PolygonModeFill, polygonMode(scenes.PolygonLine, false))
	assert.Equal(t, core1_0.PolygonModeFill, polygonMode(scenes.PolygonFill, true))

	assert.False(t, blendAttachment(scenes.BlendNone).BlendEnabled)
	alpha := blendAttachment(scenes.BlendAlpha)
	assert.True(t, alpha.BlendEnabled)
	assert.Equal(t, core1_0.BlendFactorSrcAlpha, alpha.SrcColorBlendFactor)
	assert.Equal(t, core1_0.BlendFactorOneMinusSrcAlpha, alpha.DstColorBlendFactor)
}

func TestUniformBlockLayout(t *testing.T) {
	assert.Equal(t, 96, uniformBlockSize)

	block := newUniformBlock(scenes.DefaultUniforms())
	transform := mgl32.Mat4(block.Transform)

	top := transform.Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	assert.InDelta(t, -1, top.Y(), 1e-6, "y points down in Vulkan clip space")

	near := transform.Mul4x1(mgl32.Vec4{0, 0, -1, 1})
	far := transform.Mul4x1(mgl32.Vec4{0, 0, 1, 1})
	assert.InDelta(t, 0, near.Z(), 1e-6)
	assert.InDelta(t, 1, far.Z(), 1e-6)

	assert.Equal(t, [4]float32{1, 1, 1, 1}, block.Tint)
}

func TestPickMemoryType(t *testing.T) {
	properties := &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible},
			{PropertyFlags: hostMemory},
			{PropertyFlags: hostMemory | core1_0.MemoryPropertyDeviceLocal},
		},
	}

	index, err := pickMemoryType(properties, 0b1111, hostMemory)
	require.NoError(t, err)
	assert.Equal(t, 2, index)

	index, err = pickMemoryType(properties, 0b1000, hostMemory)
	require.NoError(t, err)
	assert.Equal(t, 3, index, "filter excludes earlier matches")

	index, err = pickMemoryType(properties, 0b1111, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	assert.Equal(t, 0, index)

	_, err = pickMemoryType(properties, 0b0011, hostMemory)
	assert.ErrorContains(t, err, "0x3")
}

func TestRequiredInstanceExtensions(t *testing.T) {
	available := map[string]*core1_0.ExtensionProperties{
		khr_surface.ExtensionName: {},
		"VK_KHR_xlib_surface":     {},
	}
	windowing := []string{khr_surface.ExtensionName, "VK_KHR_xlib_surface"}

	names, portability, err := requiredInstanceExtensions(windowing, available, false)
	require.NoError(t, err)
	assert.Equal(t, windowing, names)
	assert.False(t, portability)

	available[khr_portability_enumeration.ExtensionName] = &core1_0.ExtensionProperties{}
	names, portability, err = requiredInstanceExtensions(windowing, available, true)
	require.NoError(t, err)
	assert.True(t, portability)
	assert.Contains(t, names, ext_debug_utils.ExtensionName)
	assert.Contains(t, names, khr_portability_enumeration.ExtensionName)

	_, _, err = requiredInstanceExtensions([]string{"VK_KHR_wayland_surface"}, available, false)
	assert.ErrorContains(t, err, "VK_KHR_wayland_surface")
}

func TestChooseDeviceExtensions(t *testing.T) {
	_, ok := chooseDeviceExtensions(map[string]*core1_0.ExtensionProperties{})
	assert.False(t, ok)

	available := map[string]*core1_0.ExtensionProperties{khr_swapchain.ExtensionName: {}}
	names, ok := chooseDeviceExtensions(available)
	require.True(t, ok)
	assert.Equal(t, []string{khr_swapchain.ExtensionName}, names)

	available[khr_portability_subset.ExtensionName] = &core1_0.ExtensionProperties{}
	names, ok = chooseDeviceExtensions(available)
	require.True(t, ok)
	assert.Equal(t, []string{khr_swapchain.ExtensionName, khr_portability_subset.ExtensionName}, names)
	assert.Equal(t, []string{khr_swapchain.ExtensionName}, deviceExtensions)
}

func TestChooseQueueFamilies(t *testing.T) {
	families := []*core1_0.QueueFamilyProperties{
		{QueueFlags: core1_0.QueueTransfer},
		{QueueFlags: core1_0.QueueGraphics | core1_0.QueueCompute},
		{QueueFlags: core1_0.QueueCompute},
		{QueueFlags: core1_0.QueueGraphics},
	}
	presentsOn := func(indices ...int) func(int) (bool, error) {
		return func(index int) (bool, error) {
			for _, i := range indices {
				if i == index {
					return true, nil
				}
			}
			return false, nil
		}
	}

	t.Run("shared family wins", func(t *testing.T) {
		chosen, ok, err := chooseQueueFamilies(families, presentsOn(2, 3))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, queueFamilies{graphics: 3, present: 3}, chosen)
		assert.Equal(t, []int{3}, chosen.unique())
	})

	t.Run("separate families", func(t *testing.T) {
		chosen, ok, err := chooseQueueFamilies(families, presentsOn(2))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, queueFamilies{graphics: 1, present: 2}, chosen)
		assert.Equal(t, []int{1, 2}, chosen.unique())
	})

	t.Run("no present", func(t *testing.T) {
		_, ok, err := chooseQueueFamilies(families, presentsOn())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("query fails", func(t *testing.T) {
		_, _, err := chooseQueueFamilies(families, func(int) (bool, error) { return false, errors.New("lost surface") })
		assert.ErrorContains(t, err, "lost surface")
	})
}

func TestSwapchainImageCount(t *testing.T) {
	assert.Equal(t, 3, swapchainImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, 3, swapchainImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, 2, swapchainImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestRenderPassLayout(t *testing.T) {
	color, depth := core1_0.FormatB8G8R8A8UnsignedNormalized, core1_0.FormatD32SignedFloat

	attachments, subpass := renderPassLayout(color, depth, core1_0.Samples1)
	require.Len(t, attachments, 2)
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, attachments[0].FinalLayout)
	assert.Equal(t, depth, attachments[1].Format)
	assert.Empty(t, subpass.ResolveAttachments)

	attachments, subpass = renderPassLayout(color, depth, core1_0.Samples4)
	require.Len(t, attachments, 3)
	assert.Equal(t, core1_0.Samples4, attachments[0].Samples)
	assert.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, attachments[0].FinalLayout)
	assert.Equal(t, core1_0.Samples1, attachments[2].Samples)
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, attachments[2].FinalLayout)
	require.Len(t, subpass.ResolveAttachments, 1)
	assert.Equal(t, 2, subpass.ResolveAttachments[0].Attachment)
}

func TestFirstOptimalFormat(t *testing.T) {
	supported := map[core1_0.Format]core1_0.FormatFeatureFlags{
		core1_0.FormatD32SignedFloatS8UnsignedInt: core1_0.FormatFeatureDepthStencilAttachment,
	}
	properties := func(format core1_0.Format) *core1_0.FormatProperties {
		return &core1_0.FormatProperties{OptimalTilingFeatures: supported[format]}
	}

	format, err := firstOptimalFormat(depthFormats, properties, core1_0.FormatFeatureDepthStencilAttachment)
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatD32SignedFloatS8UnsignedInt, format)

	_, err = firstOptimalFormat(depthFormats[:1], properties, core1_0.FormatFeatureDepthStencilAttachment)
	assert.Error(t, err)
}

func TestMipBlits(t *testing.T) {
	assert.Empty(t, mipBlits(4, 4, 1))

	blits := mipBlits(5, 3, 3)
	require.Len(t, blits, 2)

	assert.Equal(t, 0, blits[0].SrcSubresource.MipLevel)
	assert.Equal(t, 1, blits[0].DstSubresource.MipLevel)
	assert.Equal(t, core1_0.Offset3D{X: 5, Y: 3, Z: 1}, blits[0].SrcOffsets[1])
	assert.Equal(t, core1_0.Offset3D{X: 2, Y: 1, Z: 1}, blits[0].DstOffsets[1])

	assert.Equal(t, blits[0].DstOffsets[1], blits[1].SrcOffsets[1])
	assert.Equal(t, core1_0.Offset3D{X: 1, Y: 1, Z: 1}, blits[1].DstOffsets[1])
}

func TestUploadTransitionsChain(t *testing.T) {
	assert.Equal(t, undefinedToTransferDst.to, transferDstToSrc.from)
	assert.Equal(t, transferDstToSrc.to, transferSrcToShaderRead.from)
	assert.Equal(t, undefinedToTransferDst.to, transferDstToShaderRead.from)
	assert.Equal(t, transferSrcToShaderRead.to, transferDstToShaderRead.to)
}

func TestLifecycleStages(t *testing.T) {
	var log []string
	stage := func(name string, fail bool) lifecycleStage {
		return lifecycleStage{
			name: name,
			create: func() error {
				log = append(log, "create "+name)
				if fail {
					return errors.New("boom")
				}
				return nil
			},
			destroy: func() { log = append(log, "destroy "+name) },
		}
	}
	stages := []lifecycleStage{stage("a", false), stage("b", true), stage("c", false)}

	err := runStages(stages)
	assert.ErrorContains(t, err, "b: boom")
	unwindStages(stages)

	assert.Equal(t, []string{"create a", "create b", "destroy c", "destroy b", "destroy a"}, log)
}
