package scenes

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

type Builder func(ctx context.Context, assets Assets) (*Scene, error)

// Registry keeps scene builders in registration order, which is also the order
// of the number-key shortcuts.
type Registry struct {
	names    []string
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

func (r *Registry) Register(name string, builder Builder) error {
	if _, exists := r.builders[name]; exists {
		return errors.Errorf("scene %s registered twice", name)
	}
	r.names = append(r.names, name)
	r.builders[name] = builder
	return nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// NameAt maps a zero-based shortcut index to a scene name.
func (r *Registry) NameAt(index int) (string, bool) {
	if index < 0 || index >= len(r.names) {
		return "", false
	}
	return r.names[index], true
}

func (r *Registry) Build(ctx context.Context, name string, assets Assets) (*Scene, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, errors.Errorf("unknown scene %q, choose one of: %s", name, strings.Join(r.names, ", "))
	}

	scene, err := builder(ctx, assets)
	if err != nil {
		return nil, errors.Wrapf(err, "build scene %s", name)
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	return scene, nil
}

// Default registers every built-in exercise.
func Default() *Registry {
	r := NewRegistry()
	for _, entry := range []struct {
		name    string
		builder Builder
	}{
		{"across", buildAcross},
		{"square", buildSquare},
		{"two", buildTwo},
		{"custom", buildCustom},
		{"textured-triangle", buildTexturedTriangle},
		{"textured-quad", buildTexturedQuad},
		{"mesh", buildMesh},
	} {
		r.mustRegister(entry.name, entry.builder)
	}
	return r
}

func (r *Registry) mustRegister(name string, builder Builder) {
	if err := r.Register(name, builder); err != nil {
		panic(err)
	}
}
