package renderer

import (
	"time"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/eden-gfx/eden/internal/scenes"
)

// Aspect is width over height of the current swapchain.
func (r *Renderer) Aspect() float32 {
	if r.swapchainExtent.Height == 0 {
		return 1
	}
	return float32(r.swapchainExtent.Width) / float32(r.swapchainExtent.Height)
}

// DrawFrame renders the current scene at elapsed time since it was loaded and
// presents it. An out-of-date swapchain is rebuilt and the frame skipped.
func (r *Renderer) DrawFrame(elapsed time.Duration) error {
	if r.scene == nil || len(r.scene.commandBuffers) == 0 {
		return nil
	}

	fences := []core1_0.Fence{r.inFlightFence[r.currentFrame]}

	_, err := r.deviceDriver.WaitForFences(true, common.NoTimeout, fences...)
	if err != nil {
		return err
	}

	imageIndex, res, err := r.swapchainExtension.AcquireNextImage(r.swapchain, common.NoTimeout, &r.imageAvailableSemaphore[r.currentFrame], nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return r.Resize()
	} else if err != nil {
		return err
	}

	if r.imagesInFlight[imageIndex].Initialized() {
		_, err := r.deviceDriver.WaitForFences(true, common.NoTimeout, r.imagesInFlight[imageIndex])
		if err != nil {
			return err
		}
	}
	r.imagesInFlight[imageIndex] = r.inFlightFence[r.currentFrame]

	_, err = r.deviceDriver.ResetFences(fences...)
	if err != nil {
		return err
	}

	err = r.updateUniformBuffers(imageIndex, scenes.Frame{Elapsed: elapsed, Aspect: r.Aspect()})
	if err != nil {
		return err
	}

	_, err = r.deviceDriver.QueueSubmit(r.graphicsQueue, &r.inFlightFence[r.currentFrame],
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{r.imageAvailableSemaphore[r.currentFrame]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{r.scene.commandBuffers[imageIndex]},
			SignalSemaphores: []core1_0.Semaphore{r.renderFinishedSemaphore[imageIndex]},
		},
	)
	if err != nil {
		return err
	}

	r.currentFrame = (r.currentFrame + 1) % MaxFramesInFlight

	res, err = r.swapchainExtension.QueuePresent(r.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{r.renderFinishedSemaphore[imageIndex]},
		Swapchains:     []khr_swapchain.Swapchain{r.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return r.Resize()
	}
	return err
}

func (r *Renderer) updateUniformBuffers(imageIndex int, frame scenes.Frame) error {
	for drawIdx, draw := range r.scene.draws {
		block := newUniformBlock(draw.source.UniformsAt(frame))
		err := writeData(r.deviceDriver, r.scene.uniforms[imageIndex][drawIdx].memory, 0, &block)
		if err != nil {
			return err
		}
	}
	return nil
}

// WaitIdle blocks until the GPU has finished all submitted work.
func (r *Renderer) WaitIdle() error {
	_, err := r.deviceDriver.DeviceWaitIdle()
	return err
}
