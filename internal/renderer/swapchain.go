package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// lifecycleStage pairs a constructor with the teardown that undoes it.
// Teardowns must tolerate a stage that never ran.
type lifecycleStage struct {
	name    string
	create  func() error
	destroy func()
}

func (r *Renderer) swapchainStages() []lifecycleStage {
	return []lifecycleStage{
		{"swapchain", r.createSwapchain, r.destroySwapchain},
		{"image views", r.createImageViews, r.destroyImageViews},
		{"render pass", r.createRenderPass, r.destroyRenderPass},
		{"color target", r.createColorResources, func() { r.destroyImage(&r.colorTarget) }},
		{"depth target", r.createDepthResources, func() { r.destroyImage(&r.depthTarget) }},
		{"framebuffers", r.createFramebuffers, r.destroyFramebuffers},
	}
}

// runStages creates each stage in order and stops at the first failure.
func runStages(stages []lifecycleStage) error {
	for _, stage := range stages {
		if err := stage.create(); err != nil {
			return errors.Wrap(err, stage.name)
		}
	}
	return nil
}

// unwindStages tears stages down in reverse order.
func unwindStages(stages []lifecycleStage) {
	for i := len(stages) - 1; i >= 0; i-- {
		stages[i].destroy()
	}
}

func (r *Renderer) createSwapchainResources() error {
	return runStages(r.swapchainStages())
}

func (r *Renderer) cleanupSwapChain() {
	if r.deviceDriver == nil {
		return
	}
	unwindStages(r.swapchainStages())
}

// Resize rebuilds the swapchain and everything sized by it. It is a no-op
// while the window is minimized.
func (r *Renderer) Resize() error {
	w, h := r.window.VulkanGetDrawableSize()
	if w == 0 || h == 0 {
		return nil
	}
	if (r.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return nil
	}

	_, err := r.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return err
	}

	if r.scene != nil {
		r.releaseFrameResources(r.scene)
	}
	r.cleanupSwapChain()

	err = r.createSwapchainResources()
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}

	err = r.createPerImageSync()
	if err != nil {
		return err
	}

	if r.scene != nil {
		err = r.buildFrameResources(r.scene)
		if err != nil {
			return errors.Wrapf(err, "rebuild scene %s", r.scene.source.Name)
		}
	}

	r.logger.Debug("swapchain recreated", "extent", extentString(r.swapchainExtent))
	return nil
}

// Extent is the current drawable size in pixels.
func (r *Renderer) Extent() (width, height int) {
	return r.swapchainExtent.Width, r.swapchainExtent.Height
}

// surfaceSupport is what the surface offers a physical device.
type surfaceSupport struct {
	capabilities *khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
}

func (s surfaceSupport) adequate() bool {
	return len(s.formats) > 0 && len(s.presentModes) > 0
}

func (r *Renderer) querySurfaceSupport(device core1_0.PhysicalDevice) (surfaceSupport, error) {
	var support surfaceSupport
	var err error

	support.capabilities, _, err = r.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(r.surface, device)
	if err != nil {
		return support, err
	}

	support.formats, _, err = r.surfaceExtension.GetPhysicalDeviceSurfaceFormats(r.surface, device)
	if err != nil {
		return support, err
	}

	support.presentModes, _, err = r.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(r.surface, device)
	return support, err
}

// swapchainImageCount asks for one image past the minimum. A zero maximum means
// unbounded.
func swapchainImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

func (r *Renderer) createSwapchain() error {
	r.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(r.deviceDriver)

	support, err := r.querySurfaceSupport(r.physicalDevice)
	if err != nil {
		return err
	}
	if !support.adequate() {
		return errors.New("surface offers no formats or present modes")
	}

	surfaceFormat := chooseSwapSurfaceFormat(support.formats)
	w, h := r.window.VulkanGetDrawableSize()
	extent := chooseSwapExtent(support.capabilities, int(w), int(h))

	info := khr_swapchain.SwapchainCreateInfo{
		Surface:          r.surface,
		MinImageCount:    swapchainImageCount(support.capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,
		ImageSharingMode: core1_0.SharingModeExclusive,
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   khr_surface.CompositeAlphaOpaque,
		PresentMode:      chooseSwapPresentMode(support.presentModes, r.opts.VSync),
		Clipped:          true,
	}
	if families := r.queueFamilies.unique(); len(families) > 1 {
		info.ImageSharingMode = core1_0.SharingModeConcurrent
		info.QueueFamilyIndices = families
	}

	r.swapchain, _, err = r.swapchainExtension.CreateSwapchain(nil, info)
	if err != nil {
		return err
	}
	r.swapchainExtent = extent
	r.swapchainImageFormat = surfaceFormat.Format
	return nil
}

func (r *Renderer) destroySwapchain() {
	if r.swapchain.Initialized() {
		r.swapchainExtension.DestroySwapchain(r.swapchain, nil)
		r.swapchain = khr_swapchain.Swapchain{}
	}
}

func (r *Renderer) createImageViews() error {
	var err error
	r.swapchainImages, _, err = r.swapchainExtension.GetSwapchainImages(r.swapchain)
	if err != nil {
		return err
	}

	for _, image := range r.swapchainImages {
		view, err := r.createImageView(image, r.swapchainImageFormat, core1_0.ImageAspectColor, 1)
		if err != nil {
			return err
		}
		r.swapchainImageViews = append(r.swapchainImageViews, view)
	}
	return nil
}

func (r *Renderer) destroyImageViews() {
	for _, view := range r.swapchainImageViews {
		r.deviceDriver.DestroyImageView(view, nil)
	}
	r.swapchainImageViews = nil
}

func (r *Renderer) multisampled() bool {
	return r.msaaSamples != core1_0.Samples1
}

// renderPassLayout describes a single subpass writing color and depth. With
// more than one sample the color target is resolved into a third attachment
// that is presented; otherwise the color attachment is presented directly.
func renderPassLayout(colorFormat, depthFormat core1_0.Format, samples core1_0.SampleCountFlags) ([]core1_0.AttachmentDescription, core1_0.SubpassDescription) {
	attachment := func(format core1_0.Format, samples core1_0.SampleCountFlags, load core1_0.AttachmentLoadOp, store core1_0.AttachmentStoreOp, final core1_0.ImageLayout) core1_0.AttachmentDescription {
		return core1_0.AttachmentDescription{
			Format:         format,
			Samples:        samples,
			LoadOp:         load,
			StoreOp:        store,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    final,
		}
	}

	resolve := samples != core1_0.Samples1
	colorFinal := khr_swapchain.ImageLayoutPresentSrc
	if resolve {
		colorFinal = core1_0.ImageLayoutColorAttachmentOptimal
	}

	attachments := []core1_0.AttachmentDescription{
		attachment(colorFormat, samples, core1_0.AttachmentLoadOpClear, core1_0.AttachmentStoreOpStore, colorFinal),
		attachment(depthFormat, samples, core1_0.AttachmentLoadOpClear, core1_0.AttachmentStoreOpDontCare, core1_0.ImageLayoutDepthStencilAttachmentOptimal),
	}
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
		},
		DepthStencilAttachment: &core1_0.AttachmentReference{
			Attachment: 1, Layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	if resolve {
		attachments = append(attachments, attachment(colorFormat, core1_0.Samples1, core1_0.AttachmentLoadOpDontCare, core1_0.AttachmentStoreOpStore, khr_swapchain.ImageLayoutPresentSrc))
		subpass.ResolveAttachments = []core1_0.AttachmentReference{
			{Attachment: 2, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
		}
	}
	return attachments, subpass
}

func (r *Renderer) createRenderPass() error {
	attachments, subpass := renderPassLayout(r.swapchainImageFormat, r.depthFormat, r.msaaSamples)
	attachmentStages := core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests

	var err error
	r.renderPass, _, err = r.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:    core1_0.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  attachmentStages,
				DstStageMask:  attachmentStages,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	return err
}

func (r *Renderer) destroyRenderPass() {
	if r.renderPass.Initialized() {
		r.deviceDriver.DestroyRenderPass(r.renderPass, nil)
		r.renderPass = core1_0.RenderPass{}
	}
}

func (r *Renderer) createColorResources() error {
	if !r.multisampled() {
		return nil
	}

	var err error
	r.colorTarget, err = r.createImage(imageDesc{
		width:     r.swapchainExtent.Width,
		height:    r.swapchainExtent.Height,
		mipLevels: 1,
		samples:   r.msaaSamples,
		format:    r.swapchainImageFormat,
		usage:     core1_0.ImageUsageTransientAttachment | core1_0.ImageUsageColorAttachment,
		aspect:    core1_0.ImageAspectColor,
	})
	return err
}

func (r *Renderer) createDepthResources() error {
	var err error
	r.depthTarget, err = r.createImage(imageDesc{
		width:     r.swapchainExtent.Width,
		height:    r.swapchainExtent.Height,
		mipLevels: 1,
		samples:   r.msaaSamples,
		format:    r.depthFormat,
		usage:     core1_0.ImageUsageDepthStencilAttachment,
		aspect:    core1_0.ImageAspectDepth,
	})
	return err
}

// framebufferAttachments orders views to match renderPassLayout.
func (r *Renderer) framebufferAttachments(swapchainView core1_0.ImageView) []core1_0.ImageView {
	if r.multisampled() {
		return []core1_0.ImageView{r.colorTarget.view, r.depthTarget.view, swapchainView}
	}
	return []core1_0.ImageView{swapchainView, r.depthTarget.view}
}

func (r *Renderer) createFramebuffers() error {
	for _, view := range r.swapchainImageViews {
		framebuffer, _, err := r.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  r.renderPass,
			Attachments: r.framebufferAttachments(view),
			Width:       r.swapchainExtent.Width,
			Height:      r.swapchainExtent.Height,
			Layers:      1,
		})
		if err != nil {
			return err
		}
		r.swapchainFramebuffers = append(r.swapchainFramebuffers, framebuffer)
	}
	return nil
}

func (r *Renderer) destroyFramebuffers() {
	for _, framebuffer := range r.swapchainFramebuffers {
		r.deviceDriver.DestroyFramebuffer(framebuffer, nil)
	}
	r.swapchainFramebuffers = nil
}

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

// firstOptimalFormat returns the first candidate whose optimal tiling has all
// of features.
func firstOptimalFormat(candidates []core1_0.Format, properties func(core1_0.Format) *core1_0.FormatProperties, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range candidates {
		if properties(format).OptimalTilingFeatures&features == features {
			return format, nil
		}
	}
	return 0, errors.Errorf("no format among %v supports %v", candidates, features)
}

func (r *Renderer) findDepthFormat() (core1_0.Format, error) {
	return firstOptimalFormat(depthFormats, func(format core1_0.Format) *core1_0.FormatProperties {
		return r.instanceDriver.GetPhysicalDeviceFormatProperties(r.physicalDevice, format)
	}, core1_0.FormatFeatureDepthStencilAttachment)
}

// chooseSwapSurfaceFormat prefers a UNORM target so clear colors and shader
// outputs reach the screen unconverted, as on a default GL framebuffer.
func chooseSwapSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, want := range []core1_0.Format{core1_0.FormatB8G8R8A8UnsignedNormalized, core1_0.FormatR8G8B8A8UnsignedNormalized} {
		for _, format := range availableFormats {
			if format.Format == want && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
				return format
			}
		}
	}

	return availableFormats[0]
}

// chooseSwapPresentMode always honors FIFO under vsync. Without vsync it takes
// mailbox, then immediate.
func chooseSwapPresentMode(availablePresentModes []khr_surface.PresentMode, vsync bool) khr_surface.PresentMode {
	if vsync {
		return khr_surface.PresentModeFIFO
	}

	preferred := []khr_surface.PresentMode{khr_surface.PresentModeMailbox, khr_surface.PresentModeImmediate}
	for _, want := range preferred {
		for _, presentMode := range availablePresentModes {
			if presentMode == want {
				return presentMode
			}
		}
	}

	return khr_surface.PresentModeFIFO
}

func chooseSwapExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

func maxUsableSampleCount(counts core1_0.SampleCountFlags) core1_0.SampleCountFlags {
	for _, samples := range []core1_0.SampleCountFlags{
		core1_0.Samples64,
		core1_0.Samples32,
		core1_0.Samples16,
		core1_0.Samples8,
		core1_0.Samples4,
		core1_0.Samples2,
	} {
		if (counts & samples) != 0 {
			return samples
		}
	}
	return core1_0.Samples1
}

func extentString(extent core1_0.Extent2D) string {
	return fmt.Sprintf("%dx%d", extent.Width, extent.Height)
}
