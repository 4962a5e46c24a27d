package shaders

import (
	"crypto/sha256"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

const spirvMagic = 0x07230203

// Module is a compiled program ready to become a Vulkan shader module.
type Module struct {
	Name          string
	Code          []uint32
	VertexEntry   string
	FragmentEntry string
}

// Compiler turns WGSL into SPIR-V and remembers the result per source text, so a
// program used by several draws or rebuilt after a resize is compiled once.
type Compiler struct {
	mu      sync.Mutex
	modules map[[sha256.Size]byte]*Module
}

func NewCompiler() *Compiler {
	return &Compiler{modules: make(map[[sha256.Size]byte]*Module)}
}

func (c *Compiler) Compile(p Program) (*Module, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := sha256.Sum256([]byte(p.Source))

	c.mu.Lock()
	defer c.mu.Unlock()

	if module, ok := c.modules[key]; ok {
		return module, nil
	}

	spirvBytes, err := naga.Compile(p.Source)
	if err != nil {
		return nil, errors.Wrapf(err, "compile shader program %s", p.Name)
	}

	code, err := BytesToWords(spirvBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "compile shader program %s", p.Name)
	}

	module := &Module{
		Name:          p.Name,
		Code:          code,
		VertexEntry:   p.VertexEntry,
		FragmentEntry: p.FragmentEntry,
	}
	c.modules[key] = module
	return module, nil
}

// Len reports how many distinct sources have been compiled.
func (c *Compiler) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// BytesToWords converts little-endian SPIR-V bytes into the word slice Vulkan
// expects.
func BytesToWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Errorf("spir-v length %d is not a positive multiple of 4", len(b))
	}

	words := make([]uint32, len(b)/4)
	for i := range words {
		byteIndex := i * 4
		words[i] = uint32(b[byteIndex]) |
			uint32(b[byteIndex+1])<<8 |
			uint32(b[byteIndex+2])<<16 |
			uint32(b[byteIndex+3])<<24
	}

	if words[0] != spirvMagic {
		return nil, errors.Errorf("bad spir-v magic number 0x%08x", words[0])
	}
	return words, nil
}
