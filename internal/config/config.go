package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTitle  = "Eden"
	DefaultWidth  = 800
	DefaultHeight = 600
	DefaultScene  = "custom"
)

type Config struct {
	Window   WindowConfig   `yaml:"window"`
	Scene    string         `yaml:"scene"`
	Assets   AssetConfig    `yaml:"assets"`
	Renderer RendererConfig `yaml:"renderer"`
	Log      LogConfig      `yaml:"log"`

	// ListScenes prints the scene names and exits. Flag only.
	ListScenes bool `yaml:"-"`
}

type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type AssetConfig struct {
	Dir         string   `yaml:"dir"`
	Textures    []string `yaml:"textures,omitempty"`
	ShaderDir   string   `yaml:"shaderDir,omitempty"`
	Mesh        string   `yaml:"mesh,omitempty"`
	MeshTexture string   `yaml:"meshTexture,omitempty"`
}

type RendererConfig struct {
	Validation    bool   `yaml:"validation"`
	VSync         bool   `yaml:"vsync"`
	MSAA          bool   `yaml:"msaa"`
	PipelineCache string `yaml:"pipelineCache,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	cfg := Config{
		Renderer: RendererConfig{VSync: true, MSAA: true},
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.Window.Title == "" {
		c.Window.Title = DefaultTitle
	}
	if c.Window.Width == 0 {
		c.Window.Width = DefaultWidth
	}
	if c.Window.Height == 0 {
		c.Window.Height = DefaultHeight
	}
	if c.Scene == "" {
		c.Scene = DefaultScene
	}
	if c.Assets.Dir == "" {
		c.Assets.Dir = "."
	}
	if len(c.Assets.Textures) == 0 {
		c.Assets.Textures = []string{"container.jpg", "awesomeface.png"}
	}
	if c.Assets.Mesh == "" {
		c.Assets.Mesh = "viking_room.obj"
	}
	if c.Assets.MeshTexture == "" {
		c.Assets.MeshTexture = "viking_room.png"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Window.Title) == "" {
		return errors.New("window title is empty")
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// AssetPath resolves a file name against the asset directory. Absolute paths
// are returned unchanged.
func (c *Config) AssetPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Assets.Dir, name)
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// ParseFlags builds the configuration from command-line arguments. When -config
// names a file it is loaded first, and flags given explicitly override it.
func ParseFlags(name string, args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	defaults := Default()
	configPath := fs.String("config", "", "YAML config file")
	scene := fs.String("scene", defaults.Scene, "scene to render")
	assets := fs.String("assets", defaults.Assets.Dir, "directory holding textures and meshes")
	shaderDir := fs.String("shaders", "", "directory whose .wgsl files override the built-in shaders")
	title := fs.String("title", defaults.Window.Title, "window title")
	width := fs.Int("width", defaults.Window.Width, "window width")
	height := fs.Int("height", defaults.Window.Height, "window height")
	validation := fs.Bool("validation", defaults.Renderer.Validation, "enable Vulkan validation layers")
	vsync := fs.Bool("vsync", defaults.Renderer.VSync, "wait for vertical blank when presenting")
	msaa := fs.Bool("msaa", defaults.Renderer.MSAA, "use the highest supported multisample count")
	pipelineCache := fs.String("pipeline-cache", "", "file to persist the Vulkan pipeline cache in")
	logLevel := fs.String("log-level", defaults.Log.Level, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", defaults.Log.Format, "log format: text or json")
	mesh := fs.String("mesh", defaults.Assets.Mesh, "OBJ file for the mesh scene")
	meshTexture := fs.String("mesh-texture", defaults.Assets.MeshTexture, "texture for the mesh scene")
	list := fs.Bool("list", false, "list scenes and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags]\n", name)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, errors.Errorf("unrecognized argument %q", fs.Arg(0))
	}

	cfg := defaults
	if *configPath != "" {
		var err error
		cfg, err = Load(*configPath)
		if err != nil {
			return Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scene":
			cfg.Scene = *scene
		case "assets":
			cfg.Assets.Dir = *assets
		case "shaders":
			cfg.Assets.ShaderDir = *shaderDir
		case "title":
			cfg.Window.Title = *title
		case "width":
			cfg.Window.Width = *width
		case "height":
			cfg.Window.Height = *height
		case "validation":
			cfg.Renderer.Validation = *validation
		case "vsync":
			cfg.Renderer.VSync = *vsync
		case "msaa":
			cfg.Renderer.MSAA = *msaa
		case "pipeline-cache":
			cfg.Renderer.PipelineCache = *pipelineCache
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "mesh":
			cfg.Assets.Mesh = *mesh
		case "mesh-texture":
			cfg.Assets.MeshTexture = *meshTexture
		}
	})
	cfg.ListScenes = *list

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
