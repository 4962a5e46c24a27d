package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/eden-gfx/eden/internal/geometry"
	"github.com/eden-gfx/eden/internal/scenes"
	"github.com/eden-gfx/eden/internal/shaders"
)

// Descriptor bindings shared by every program.
const (
	bindingGlobals  = 0
	bindingTexture0 = 1
	bindingTexture1 = 2
	bindingSampler  = 3
)

const colorWriteAll = core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha

// pipelineKey identifies one pipeline object. Draws with equal keys share it.
type pipelineKey struct {
	module    *shaders.Module
	layout    string
	polygon   scenes.PolygonMode
	blend     scenes.BlendMode
	depthTest bool
}

func newPipelineKey(module *shaders.Module, layout geometry.Layout, desc scenes.PipelineDesc) pipelineKey {
	key := pipelineKey{
		module:    module,
		polygon:   desc.Polygon,
		blend:     desc.Blend,
		depthTest: desc.DepthTest,
	}
	for _, components := range layout {
		key.layout += string(rune('0' + components))
	}
	return key
}

func (r *Renderer) createDescriptorSetLayout() error {
	var err error
	r.descriptorSetLayout, _, err = r.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         bindingGlobals,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex | core1_0.StageFragment,
			},
			{
				Binding:         bindingTexture0,
				DescriptorType:  core1_0.DescriptorTypeSampledImage,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
			{
				Binding:         bindingTexture1,
				DescriptorType:  core1_0.DescriptorTypeSampledImage,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
			{
				Binding:         bindingSampler,
				DescriptorType:  core1_0.DescriptorTypeSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return err
	}

	r.pipelineLayout, _, err = r.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			r.descriptorSetLayout,
		},
	})
	return err
}

func (r *Renderer) destroyDescriptorSetLayout() {
	if r.pipelineLayout.Initialized() {
		r.deviceDriver.DestroyPipelineLayout(r.pipelineLayout, nil)
		r.pipelineLayout = core1_0.PipelineLayout{}
	}
	if r.descriptorSetLayout.Initialized() {
		r.deviceDriver.DestroyDescriptorSetLayout(r.descriptorSetLayout, nil)
		r.descriptorSetLayout = core1_0.DescriptorSetLayout{}
	}
}

func vertexBindingDescriptions(layout geometry.Layout) []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    layout.Stride(),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions(layout geometry.Layout) ([]core1_0.VertexInputAttributeDescription, error) {
	offsets := layout.Offsets()
	attributes := make([]core1_0.VertexInputAttributeDescription, 0, len(layout))
	for location, components := range layout {
		format, err := attributeFormat(components)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %d", location)
		}
		attributes = append(attributes, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: location,
			Format:   format,
			Offset:   offsets[location],
		})
	}
	return attributes, nil
}

func attributeFormat(components int) (core1_0.Format, error) {
	switch components {
	case 1:
		return core1_0.FormatR32SignedFloat, nil
	case 2:
		return core1_0.FormatR32G32SignedFloat, nil
	case 3:
		return core1_0.FormatR32G32B32SignedFloat, nil
	case 4:
		return core1_0.FormatR32G32B32A32SignedFloat, nil
	}
	return 0, errors.Errorf("no vertex format with %d components", components)
}

func polygonMode(p scenes.PolygonMode, nonSolidSupported bool) core1_0.PolygonMode {
	if p == scenes.PolygonLine && nonSolidSupported {
		return core1_0.PolygonModeLine
	}
	return core1_0.PolygonModeFill
}

func blendAttachment(mode scenes.BlendMode) core1_0.PipelineColorBlendAttachmentState {
	if mode != scenes.BlendAlpha {
		return core1_0.PipelineColorBlendAttachmentState{
			BlendEnabled:   false,
			ColorWriteMask: colorWriteAll,
		}
	}

	return core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:        true,
		SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
		DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        core1_0.BlendOpAdd,
		SrcAlphaBlendFactor: core1_0.BlendFactorOne,
		DstAlphaBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        core1_0.BlendOpAdd,
		ColorWriteMask:      colorWriteAll,
	}
}

func (r *Renderer) createShaderModule(module *shaders.Module) (core1_0.ShaderModule, error) {
	shaderModule, _, err := r.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: module.Code,
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "create shader module %s", module.Name)
	}
	return shaderModule, nil
}

func (r *Renderer) createGraphicsPipeline(shaderModule core1_0.ShaderModule, module *shaders.Module, layout geometry.Layout, desc scenes.PipelineDesc) (core1_0.Pipeline, error) {
	attributes, err := vertexAttributeDescriptions(layout)
	if err != nil {
		return core1_0.Pipeline{}, err
	}

	if desc.Polygon == scenes.PolygonLine && !r.fillModeNonSolid {
		r.logger.Warn("device cannot draw wireframe, filling instead", "program", module.Name)
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   vertexBindingDescriptions(layout),
		VertexAttributeDescriptions: attributes,
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: shaderModule,
		Name:   module.VertexEntry,
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: shaderModule,
		Name:   module.FragmentEntry,
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(r.swapchainExtent.Width),
				Height:   float32(r.swapchainExtent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: r.swapchainExtent,
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: polygonMode(desc.Polygon, r.fillModeNonSolid),
		CullMode:    core1_0.CullModeFlags(0),
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: r.msaaSamples,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  desc.DepthTest,
		DepthWriteEnable: desc.DepthTest,
		DepthCompareOp:   core1_0.CompareOpLessOrEqual,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			blendAttachment(desc.Blend),
		},
	}

	pipelines, _, err := r.deviceDriver.CreateGraphicsPipelines(&r.pipelineCache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             r.pipelineLayout,
			RenderPass:         r.renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return core1_0.Pipeline{}, errors.Wrapf(err, "create pipeline for %s", module.Name)
	}
	return pipelines[0], nil
}
