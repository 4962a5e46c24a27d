package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/scenes"
	"github.com/eden-gfx/eden/internal/shaders"
)

type gpuDraw struct {
	source   *scenes.Draw
	vertices gpuBuffer
	indices  gpuBuffer
	module   *shaders.Module
	textures [scenes.MaxTextures]*gpuTexture
	key      pipelineKey
}

// loadedScene is the GPU copy of a scene. Buffers, textures and shader
// modules live as long as the scene. Pipelines, uniform buffers, descriptor
// sets and command buffers are rebuilt with the swapchain.
type loadedScene struct {
	source   *scenes.Scene
	draws    []*gpuDraw
	textures map[*images.Image]*gpuTexture
	modules  map[*shaders.Module]core1_0.ShaderModule

	pipelines      map[pipelineKey]core1_0.Pipeline
	uniforms       [][]gpuBuffer
	descriptorPool core1_0.DescriptorPool
	descriptorSets [][]core1_0.DescriptorSet
	commandBuffers []core1_0.CommandBuffer
}

// Load uploads scene and makes it current. On failure the previous scene
// stays loaded.
func (r *Renderer) Load(scene *scenes.Scene) error {
	if err := scene.Validate(); err != nil {
		return err
	}

	loaded := &loadedScene{
		source:   scene,
		textures: make(map[*images.Image]*gpuTexture),
		modules:  make(map[*shaders.Module]core1_0.ShaderModule),
	}

	err := r.uploadScene(loaded)
	if err == nil {
		err = r.buildFrameResources(loaded)
	}
	if err != nil {
		r.releaseScene(loaded)
		return errors.Wrapf(err, "load scene %s", scene.Name)
	}

	r.Unload()
	r.scene = loaded
	r.logger.Info("scene loaded",
		"scene", scene.Name,
		"draws", len(loaded.draws),
		"pipelines", len(loaded.pipelines),
		"textures", len(loaded.textures),
		"compiled", r.compiler.Len())
	return nil
}

// Unload waits for the device and frees the current scene, if any.
func (r *Renderer) Unload() {
	if r.scene == nil {
		return
	}
	_, _ = r.deviceDriver.DeviceWaitIdle()
	r.releaseScene(r.scene)
	r.scene = nil
}

// Scene is the name of the current scene, or "" before the first Load.
func (r *Renderer) Scene() string {
	if r.scene == nil {
		return ""
	}
	return r.scene.source.Name
}

func (r *Renderer) uploadScene(loaded *loadedScene) error {
	for i, draw := range loaded.source.Draws {
		module, err := r.compiler.Compile(draw.Pipeline.Program)
		if err != nil {
			return err
		}

		if _, ok := loaded.modules[module]; !ok {
			shaderModule, err := r.createShaderModule(module)
			if err != nil {
				return err
			}
			loaded.modules[module] = shaderModule
		}

		gd := &gpuDraw{
			source: draw,
			module: module,
			key:    newPipelineKey(module, draw.Mesh.Layout, draw.Pipeline),
		}
		loaded.draws = append(loaded.draws, gd)

		gd.vertices, err = r.uploadBuffer(draw.Mesh.Vertices, core1_0.BufferUsageVertexBuffer)
		if err != nil {
			return errors.Wrapf(err, "draw %d vertices", i)
		}

		if draw.Mesh.Indexed() {
			gd.indices, err = r.uploadBuffer(draw.Mesh.Indices, core1_0.BufferUsageIndexBuffer)
			if err != nil {
				return errors.Wrapf(err, "draw %d indices", i)
			}
		}

		for slot := range gd.textures {
			gd.textures[slot] = r.fallback
			if slot >= len(draw.Textures) {
				continue
			}

			img := draw.Textures[slot]
			texture, ok := loaded.textures[img]
			if !ok {
				texture, err = r.uploadTexture(img)
				if err != nil {
					return errors.Wrapf(err, "texture %s", img.Name)
				}
				loaded.textures[img] = texture
			}
			gd.textures[slot] = texture
		}
	}
	return nil
}

func (r *Renderer) releaseScene(loaded *loadedScene) {
	r.releaseFrameResources(loaded)

	for _, draw := range loaded.draws {
		r.destroyBuffer(draw.vertices)
		r.destroyBuffer(draw.indices)
	}
	loaded.draws = nil

	for _, texture := range loaded.textures {
		r.destroyTexture(texture)
	}
	loaded.textures = nil

	for _, shaderModule := range loaded.modules {
		r.deviceDriver.DestroyShaderModule(shaderModule, nil)
	}
	loaded.modules = nil
}

func (r *Renderer) buildFrameResources(loaded *loadedScene) error {
	steps := []func(*loadedScene) error{
		r.createPipelines,
		r.createUniformBuffers,
		r.createDescriptorPool,
		r.createDescriptorSets,
		r.createCommandBuffers,
	}
	for _, step := range steps {
		if err := step(loaded); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) releaseFrameResources(loaded *loadedScene) {
	if len(loaded.commandBuffers) > 0 {
		r.deviceDriver.FreeCommandBuffers(loaded.commandBuffers...)
		loaded.commandBuffers = nil
	}

	if loaded.descriptorPool.Initialized() {
		r.deviceDriver.DestroyDescriptorPool(loaded.descriptorPool, nil)
		loaded.descriptorPool = core1_0.DescriptorPool{}
	}
	loaded.descriptorSets = nil

	for _, perImage := range loaded.uniforms {
		for _, buffer := range perImage {
			r.destroyBuffer(buffer)
		}
	}
	loaded.uniforms = nil

	for _, pipeline := range loaded.pipelines {
		r.deviceDriver.DestroyPipeline(pipeline, nil)
	}
	loaded.pipelines = nil
}

func (r *Renderer) createPipelines(loaded *loadedScene) error {
	loaded.pipelines = make(map[pipelineKey]core1_0.Pipeline)
	for _, draw := range loaded.draws {
		if _, ok := loaded.pipelines[draw.key]; ok {
			continue
		}

		pipeline, err := r.createGraphicsPipeline(loaded.modules[draw.module], draw.module, draw.source.Mesh.Layout, draw.source.Pipeline)
		if err != nil {
			return err
		}
		loaded.pipelines[draw.key] = pipeline
	}
	return nil
}

func (r *Renderer) createUniformBuffers(loaded *loadedScene) error {
	loaded.uniforms = make([][]gpuBuffer, len(r.swapchainImages))
	for i := range r.swapchainImages {
		for range loaded.draws {
			buffer, err := r.createBuffer(uniformBlockSize, core1_0.BufferUsageUniformBuffer, hostMemory)
			if err != nil {
				return err
			}
			loaded.uniforms[i] = append(loaded.uniforms[i], buffer)
		}
	}
	return nil
}

func (r *Renderer) createDescriptorPool(loaded *loadedScene) error {
	sets := len(r.swapchainImages) * len(loaded.draws)

	var err error
	loaded.descriptorPool, _, err = r.deviceDriver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: sets,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: sets,
			},
			{
				Type:            core1_0.DescriptorTypeSampledImage,
				DescriptorCount: sets * scenes.MaxTextures,
			},
			{
				Type:            core1_0.DescriptorTypeSampler,
				DescriptorCount: sets,
			},
		},
	})
	return err
}

func (r *Renderer) createDescriptorSets(loaded *loadedScene) error {
	var allocLayouts []core1_0.DescriptorSetLayout
	for range loaded.draws {
		allocLayouts = append(allocLayouts, r.descriptorSetLayout)
	}

	loaded.descriptorSets = make([][]core1_0.DescriptorSet, len(r.swapchainImages))
	for i := range r.swapchainImages {
		sets, _, err := r.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
			DescriptorPool: loaded.descriptorPool,
			SetLayouts:     allocLayouts,
		})
		if err != nil {
			return err
		}
		loaded.descriptorSets[i] = sets

		for drawIdx, draw := range loaded.draws {
			err = r.deviceDriver.UpdateDescriptorSets(descriptorWrites(sets[drawIdx], loaded.uniforms[i][drawIdx].buffer, draw.textures, r.sampler), nil)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func descriptorWrites(set core1_0.DescriptorSet, uniforms core1_0.Buffer, textures [scenes.MaxTextures]*gpuTexture, sampler core1_0.Sampler) []core1_0.WriteDescriptorSet {
	textureWrite := func(binding int, texture *gpuTexture) core1_0.WriteDescriptorSet {
		return core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeSampledImage,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   texture.view,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		}
	}

	return []core1_0.WriteDescriptorSet{
		{
			DstSet:          set,
			DstBinding:      bindingGlobals,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: uniforms,
					Offset: 0,
					Range:  uniformBlockSize,
				},
			},
		},
		textureWrite(bindingTexture0, textures[0]),
		textureWrite(bindingTexture1, textures[1]),
		{
			DstSet:          set,
			DstBinding:      bindingSampler,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					Sampler: sampler,
				},
			},
		},
	}
}

func (r *Renderer) createCommandBuffers(loaded *loadedScene) error {
	buffers, _, err := r.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(r.swapchainImages),
	})
	if err != nil {
		return err
	}
	loaded.commandBuffers = buffers

	for bufferIdx, buffer := range buffers {
		err = r.recordCommandBuffer(loaded, buffer, bufferIdx)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Renderer) recordCommandBuffer(loaded *loadedScene, buffer core1_0.CommandBuffer, imageIdx int) error {
	_, err := r.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	err = r.deviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.renderPass,
			Framebuffer: r.swapchainFramebuffers[imageIdx],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: r.swapchainExtent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(loaded.source.ClearColor),
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return err
	}

	var bound *pipelineKey
	for drawIdx, draw := range loaded.draws {
		if bound == nil || *bound != draw.key {
			r.deviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, loaded.pipelines[draw.key])
			bound = &draw.key
		}

		r.deviceDriver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{draw.vertices.buffer}, []int{0})
		r.deviceDriver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, r.pipelineLayout, 0, []core1_0.DescriptorSet{
			loaded.descriptorSets[imageIdx][drawIdx],
		}, nil)

		mesh := draw.source.Mesh
		if mesh.Indexed() {
			r.deviceDriver.CmdBindIndexBuffer(buffer, draw.indices.buffer, 0, core1_0.IndexTypeUInt32)
			r.deviceDriver.CmdDrawIndexed(buffer, mesh.DrawCount(), 1, 0, 0, 0)
		} else {
			r.deviceDriver.CmdDraw(buffer, mesh.DrawCount(), 1, 0, 0)
		}
	}

	r.deviceDriver.CmdEndRenderPass(buffer)

	_, err = r.deviceDriver.EndCommandBuffer(buffer)
	return err
}
