package shaders

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"

	fileExtension = ".wgsl"
)

//go:embed wgsl/*.wgsl
var builtin embed.FS

// Program is a WGSL source holding both the vertex and the fragment stage.
type Program struct {
	Name          string
	Source        string
	VertexEntry   string
	FragmentEntry string
}

// Validate checks that both entry points are declared before the source is handed
// to the compiler, so the error names the missing stage.
func (p Program) Validate() error {
	if strings.TrimSpace(p.Source) == "" {
		return errors.Errorf("shader program %s has no source", p.Name)
	}
	if !strings.Contains(p.Source, "fn "+p.VertexEntry) {
		return errors.Errorf("shader program %s has no vertex entry point %s", p.Name, p.VertexEntry)
	}
	if !strings.Contains(p.Source, "fn "+p.FragmentEntry) {
		return errors.Errorf("shader program %s has no fragment entry point %s", p.Name, p.FragmentEntry)
	}
	return nil
}

const solidTemplate = `struct Globals {
    transform: mat4x4<f32>,
    tint: vec4<f32>,
    params: vec4<f32>,
};

@group(0) @binding(0) var<uniform> globals: Globals;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return globals.transform * vec4<f32>(position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(%.4f, %.4f, %.4f, %.4f);
}
`

// Solid is an inline program that paints every fragment with a fixed color.
func Solid(name string, color [4]float32) Program {
	return Program{
		Name:          name,
		Source:        fmt.Sprintf(solidTemplate, color[0], color[1], color[2], color[3]),
		VertexEntry:   VertexEntry,
		FragmentEntry: FragmentEntry,
	}
}

// Library resolves file-backed programs. Files in the overlay directory take
// precedence over the embedded copies.
type Library struct {
	overlay fs.FS
}

func NewLibrary(overlayDir string) *Library {
	lib := &Library{}
	if overlayDir != "" {
		lib.overlay = os.DirFS(overlayDir)
	}
	return lib
}

func (l *Library) Program(name string) (Program, error) {
	fileName := name + fileExtension

	if l.overlay != nil {
		source, err := fs.ReadFile(l.overlay, fileName)
		if err == nil {
			return newFileProgram(name, source), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Program{}, errors.Wrapf(err, "read shader %s", fileName)
		}
	}

	source, err := builtin.ReadFile(path.Join("wgsl", fileName))
	if err != nil {
		return Program{}, errors.Wrapf(err, "unknown shader program %s", name)
	}
	return newFileProgram(name, source), nil
}

// Builtin lists the names of the embedded programs.
func Builtin() []string {
	entries, err := builtin.ReadDir("wgsl")
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), fileExtension))
	}
	sort.Strings(names)
	return names
}

func newFileProgram(name string, source []byte) Program {
	return Program{
		Name:          name,
		Source:        string(source),
		VertexEntry:   VertexEntry,
		FragmentEntry: FragmentEntry,
	}
}
