package renderer

import (
	"context"
	"image/color"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/pipecache"
	"github.com/eden-gfx/eden/internal/shaders"
)

const MaxFramesInFlight = 2

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	ApplicationName   string
	Validation        bool
	VSync             bool
	MSAA              bool
	PipelineCachePath string
}

// queueFamilies holds the family indices used for drawing and presenting.
// They are often the same family.
type queueFamilies struct {
	graphics int
	present  int
}

func (q queueFamilies) unique() []int {
	if q.graphics == q.present {
		return []int{q.graphics}
	}
	return []int{q.graphics, q.present}
}

// Renderer owns the Vulkan device, the swapchain and the GPU copy of the
// current scene. All methods must run on the thread that created the window.
type Renderer struct {
	window   *sdl.Window
	opts     Options
	logger   *slog.Logger
	compiler *shaders.Compiler

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice   core1_0.PhysicalDevice
	deviceProperties *core1_0.PhysicalDeviceProperties
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
	queueFamilies    queueFamilies
	fillModeNonSolid bool
	anisotropy       bool

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue

	swapchainExtension    khr_swapchain.ExtensionDriver
	swapchain             khr_swapchain.Swapchain
	swapchainImages       []core1_0.Image
	swapchainImageFormat  core1_0.Format
	swapchainExtent       core1_0.Extent2D
	swapchainImageViews   []core1_0.ImageView
	swapchainFramebuffers []core1_0.Framebuffer

	renderPass          core1_0.RenderPass
	descriptorSetLayout core1_0.DescriptorSetLayout
	pipelineLayout      core1_0.PipelineLayout
	pipelineCache       core1_0.PipelineCache

	commandPool core1_0.CommandPool

	msaaSamples core1_0.SampleCountFlags
	depthFormat core1_0.Format
	colorTarget gpuImage
	depthTarget gpuImage

	sampler  core1_0.Sampler
	fallback *gpuTexture

	imageAvailableSemaphore []core1_0.Semaphore
	renderFinishedSemaphore []core1_0.Semaphore
	inFlightFence           []core1_0.Fence
	imagesInFlight          []core1_0.Fence
	currentFrame            int

	scene *loadedScene
}

// New brings up Vulkan on window. The window must have been created with
// sdl.WINDOW_VULKAN.
func New(window *sdl.Window, opts Options, logger *slog.Logger) (*Renderer, error) {
	r := &Renderer{
		window:      window,
		opts:        opts,
		logger:      logger,
		compiler:    shaders.NewCompiler(),
		msaaSamples: core1_0.Samples1,
	}

	var err error
	r.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	if err := runStages(r.stages()); err != nil {
		r.Destroy()
		return nil, errors.Wrap(err, "create")
	}

	r.logger.Info("renderer ready",
		"device", r.deviceProperties.DriverName,
		"extent", extentString(r.swapchainExtent),
		"samples", r.msaaSamples,
		"wireframe", r.fillModeNonSolid)
	return r, nil
}

// stages lists everything the renderer owns outside of a loaded scene, in
// creation order.
func (r *Renderer) stages() []lifecycleStage {
	return []lifecycleStage{
		{"instance", r.createInstance, r.destroyInstance},
		{"debug messenger", r.setupDebugMessenger, r.destroyDebugMessenger},
		{"surface", r.createSurface, r.destroySurface},
		{"physical device", r.pickPhysicalDevice, func() {}},
		{"logical device", r.createLogicalDevice, r.destroyDevice},
		{"pipeline cache", r.createPipelineCache, r.destroyPipelineCache},
		{"command pool", r.createCommandPool, r.destroyCommandPool},
		{"descriptor set layout", r.createDescriptorSetLayout, r.destroyDescriptorSetLayout},
		{"sampler", r.createSampler, r.destroySampler},
		{"fallback texture", r.createFallbackTexture, r.destroyFallbackTexture},
		{"swapchain", r.createSwapchainResources, r.cleanupSwapChain},
		{"sync objects", r.createSyncObjects, r.destroySyncObjects},
	}
}

// Destroy releases every Vulkan object in reverse creation order. It is safe to
// call on a partially constructed renderer.
func (r *Renderer) Destroy() {
	if r.deviceDriver != nil {
		_, _ = r.deviceDriver.DeviceWaitIdle()
		r.Unload()
	}
	unwindStages(r.stages())
}

// requiredInstanceExtensions adds debug utils under validation and portability
// enumeration when the loader offers it. Every name in windowing must be
// available.
func requiredInstanceExtensions(windowing []string, available map[string]*core1_0.ExtensionProperties, validation bool) (names []string, portability bool, err error) {
	for _, ext := range windowing {
		if _, ok := available[ext]; !ok {
			return nil, false, errors.Errorf("missing instance extension %s", ext)
		}
		names = append(names, ext)
	}

	if validation {
		names = append(names, ext_debug_utils.ExtensionName)
	}

	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		names = append(names, khr_portability_enumeration.ExtensionName)
		portability = true
	}
	return names, portability, nil
}

func (r *Renderer) createInstance() error {
	available, _, err := r.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	extensions, portability, err := requiredInstanceExtensions(r.window.VulkanGetInstanceExtensions(), available, r.opts.Validation)
	if err != nil {
		return err
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:       r.opts.ApplicationName,
		ApplicationVersion:    common.CreateVersion(1, 0, 0),
		EngineName:            "Eden",
		EngineVersion:         common.CreateVersion(1, 0, 0),
		APIVersion:            common.Vulkan1_2,
		EnabledExtensionNames: extensions,
	}
	if portability {
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if r.opts.Validation {
		layers, _, err := r.globalDriver.AvailableLayers()
		if err != nil {
			return err
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return errors.Errorf("validation layer %s is not available, install the Vulkan SDK", layer)
			}
		}
		info.EnabledLayerNames = validationLayers
		info.Next = r.debugMessengerOptions()
	}

	instance, _, err := r.globalDriver.CreateInstance(nil, info)
	if err != nil {
		return err
	}

	r.instanceDriver, err = r.globalDriver.BuildInstanceDriver(instance)
	return err
}

func (r *Renderer) destroyInstance() {
	if r.instanceDriver != nil {
		r.instanceDriver.DestroyInstance(nil)
		r.instanceDriver = nil
	}
}

func (r *Renderer) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    r.logDebug,
	}
}

func (r *Renderer) setupDebugMessenger() error {
	if !r.opts.Validation {
		return nil
	}

	var err error
	r.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(r.instanceDriver)
	r.debugMessenger, _, err = r.debugDriver.CreateDebugUtilsMessenger(nil, r.debugMessengerOptions())
	return err
}

func (r *Renderer) destroyDebugMessenger() {
	if r.debugMessenger.Initialized() {
		r.debugDriver.DestroyDebugUtilsMessenger(r.debugMessenger, nil)
		r.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}
}

func (r *Renderer) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, data.Message, "source", "vulkan", "type", msgType.String())
	return false
}

func (r *Renderer) createSurface() error {
	r.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(r.instanceDriver)

	var err error
	r.surface, err = vkng_sdl2.CreateSurface(r.instanceDriver.Instance(), r.surfaceExtension, r.window)
	return err
}

func (r *Renderer) destroySurface() {
	if r.surface.Initialized() {
		r.surfaceExtension.DestroySurface(r.surface, nil)
		r.surface = khr_surface.Surface{}
	}
}

// deviceScore prefers discrete GPUs, then larger texture limits.
func deviceScore(properties *core1_0.PhysicalDeviceProperties) int {
	score := 1 + properties.Limits.MaxImageDimension2D
	if properties.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU {
		score += 1000
	}
	return score
}

// chooseQueueFamilies prefers one family that can both draw and present.
func chooseQueueFamilies(families []*core1_0.QueueFamilyProperties, presents func(index int) (bool, error)) (queueFamilies, bool, error) {
	chosen := queueFamilies{graphics: -1, present: -1}
	for index, family := range families {
		graphics := family.QueueFlags&core1_0.QueueGraphics != 0
		present, err := presents(index)
		if err != nil {
			return chosen, false, err
		}

		if graphics && present {
			return queueFamilies{graphics: index, present: index}, true, nil
		}
		if graphics && chosen.graphics < 0 {
			chosen.graphics = index
		}
		if present && chosen.present < 0 {
			chosen.present = index
		}
	}
	return chosen, chosen.graphics >= 0 && chosen.present >= 0, nil
}

// chooseDeviceExtensions returns the extensions to enable, or false when a
// required one is missing. MoltenVK also needs the portability subset.
func chooseDeviceExtensions(available map[string]*core1_0.ExtensionProperties) ([]string, bool) {
	names := append([]string(nil), deviceExtensions...)
	for _, name := range names {
		if _, ok := available[name]; !ok {
			return nil, false
		}
	}

	if _, ok := available[khr_portability_subset.ExtensionName]; ok {
		names = append(names, khr_portability_subset.ExtensionName)
	}
	return names, true
}

// candidate is a physical device able to render to the surface.
type candidate struct {
	device     core1_0.PhysicalDevice
	properties *core1_0.PhysicalDeviceProperties
	families   queueFamilies
	extensions []string
}

func (r *Renderer) examine(device core1_0.PhysicalDevice) (*candidate, error) {
	available, _, err := r.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return nil, err
	}
	extensions, ok := chooseDeviceExtensions(available)
	if !ok {
		return nil, nil
	}

	families, ok, err := chooseQueueFamilies(r.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device), func(index int) (bool, error) {
		supported, _, err := r.surfaceExtension.GetPhysicalDeviceSurfaceSupport(r.surface, device, index)
		return supported, err
	})
	if err != nil || !ok {
		return nil, err
	}

	support, err := r.querySurfaceSupport(device)
	if err != nil || !support.adequate() {
		return nil, err
	}

	properties, err := r.instanceDriver.GetPhysicalDeviceProperties(device)
	if err != nil {
		return nil, err
	}
	return &candidate{device: device, properties: properties, families: families, extensions: extensions}, nil
}

func (r *Renderer) pickPhysicalDevice() error {
	devices, _, err := r.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	var best *candidate
	for _, device := range devices {
		c, err := r.examine(device)
		if err != nil {
			return err
		}
		if c != nil && (best == nil || deviceScore(c.properties) > deviceScore(best.properties)) {
			best = c
		}
	}
	if best == nil {
		return errors.New("no GPU can present to this window")
	}

	r.physicalDevice = best.device
	r.deviceProperties = best.properties
	r.queueFamilies = best.families
	r.memoryProperties = r.instanceDriver.GetPhysicalDeviceMemoryProperties(best.device)

	features := r.instanceDriver.GetPhysicalDeviceFeatures(best.device)
	r.fillModeNonSolid = features.FillModeNonSolid
	r.anisotropy = features.SamplerAnisotropy

	if r.opts.MSAA {
		limits := best.properties.Limits
		r.msaaSamples = maxUsableSampleCount(limits.FramebufferColorSampleCounts & limits.FramebufferDepthSampleCounts)
	}

	r.depthFormat, err = r.findDepthFormat()
	return err
}

func (r *Renderer) createLogicalDevice() error {
	var queues []core1_0.DeviceQueueCreateInfo
	for _, family := range r.queueFamilies.unique() {
		queues = append(queues, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1},
		})
	}

	available, _, err := r.instanceDriver.EnumerateDeviceExtensionProperties(r.physicalDevice)
	if err != nil {
		return err
	}
	extensions, _ := chooseDeviceExtensions(available)

	device, _, err := r.instanceDriver.CreateDevice(r.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queues,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: r.anisotropy,
			FillModeNonSolid:  r.fillModeNonSolid,
		},
		EnabledExtensionNames: extensions,
	})
	if err != nil {
		return err
	}

	r.deviceDriver, err = r.instanceDriver.BuildDeviceDriver(device)
	if err != nil {
		return err
	}

	r.graphicsQueue = r.deviceDriver.GetQueue(r.queueFamilies.graphics, 0)
	r.presentQueue = r.deviceDriver.GetQueue(r.queueFamilies.present, 0)
	return nil
}

func (r *Renderer) destroyDevice() {
	if r.deviceDriver != nil {
		r.deviceDriver.DestroyDevice(nil)
		r.deviceDriver = nil
	}
}

func (r *Renderer) createPipelineCache() error {
	var initialData []byte
	if r.opts.PipelineCachePath != "" {
		initialData = pipecache.Load(r.opts.PipelineCachePath, pipecache.Device{
			VendorID: r.deviceProperties.VendorID,
			DeviceID: r.deviceProperties.DeviceID,
			CacheID:  r.deviceProperties.PipelineCacheUUID,
		}, r.logger)
	}

	var err error
	r.pipelineCache, _, err = r.deviceDriver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	return err
}

// destroyPipelineCache writes the cache back to disk before releasing it.
func (r *Renderer) destroyPipelineCache() {
	if !r.pipelineCache.Initialized() {
		return
	}
	r.savePipelineCache()
	r.deviceDriver.DestroyPipelineCache(r.pipelineCache, nil)
	r.pipelineCache = core1_0.PipelineCache{}
}

func (r *Renderer) savePipelineCache() {
	if r.opts.PipelineCachePath == "" {
		return
	}

	data, _, err := r.deviceDriver.GetPipelineCacheData(r.pipelineCache)
	if err == nil {
		err = pipecache.Save(r.opts.PipelineCachePath, data)
	}
	if err != nil {
		r.logger.Warn("pipeline cache not saved", "path", r.opts.PipelineCachePath, "error", err)
		return
	}
	r.logger.Debug("pipeline cache saved", "path", r.opts.PipelineCachePath, "bytes", len(data))
}

func (r *Renderer) createCommandPool() error {
	var err error
	r.commandPool, _, err = r.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: r.queueFamilies.graphics,
	})
	return err
}

func (r *Renderer) destroyCommandPool() {
	if r.commandPool.Initialized() {
		r.deviceDriver.DestroyCommandPool(r.commandPool, nil)
		r.commandPool = core1_0.CommandPool{}
	}
}

// createFallbackTexture binds plain white to texture slots a scene leaves empty.
func (r *Renderer) createFallbackTexture() error {
	var err error
	r.fallback, err = r.uploadTexture(images.Solid("fallback", color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	return err
}

func (r *Renderer) destroyFallbackTexture() {
	if r.fallback != nil {
		r.destroyTexture(r.fallback)
		r.fallback = nil
	}
}

// createSyncObjects makes the per-frame acquire semaphores and fences, then
// the per-image state.
func (r *Renderer) createSyncObjects() error {
	for range MaxFramesInFlight {
		semaphore, _, err := r.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return err
		}
		r.imageAvailableSemaphore = append(r.imageAvailableSemaphore, semaphore)

		fence, _, err := r.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return err
		}
		r.inFlightFence = append(r.inFlightFence, fence)
	}

	return r.createPerImageSync()
}

func (r *Renderer) destroySyncObjects() {
	r.destroyPerImageSync()
	for _, fence := range r.inFlightFence {
		r.deviceDriver.DestroyFence(fence, nil)
	}
	r.inFlightFence = nil

	for _, semaphore := range r.imageAvailableSemaphore {
		r.deviceDriver.DestroySemaphore(semaphore, nil)
	}
	r.imageAvailableSemaphore = nil
}

// createPerImageSync sizes the render-finished semaphores and fence slots to
// the swapchain.
func (r *Renderer) createPerImageSync() error {
	r.destroyPerImageSync()
	r.imagesInFlight = make([]core1_0.Fence, len(r.swapchainImages))

	for range r.swapchainImages {
		semaphore, _, err := r.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return err
		}
		r.renderFinishedSemaphore = append(r.renderFinishedSemaphore, semaphore)
	}
	return nil
}

func (r *Renderer) destroyPerImageSync() {
	for _, semaphore := range r.renderFinishedSemaphore {
		r.deviceDriver.DestroySemaphore(semaphore, nil)
	}
	r.renderFinishedSemaphore = nil
	r.imagesInFlight = nil
}

// FillModeNonSolid reports whether wireframe pipelines are supported.
func (r *Renderer) FillModeNonSolid() bool {
	return r.fillModeNonSolid
}
