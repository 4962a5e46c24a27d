package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/eden-gfx/eden/internal/scenes"
)

func TestSceneKeysFollowRegistryOrder(t *testing.T) {
	registry := scenes.Default()

	index, ok := sceneKey(sdl.K_1)
	assert.True(t, ok)
	name, ok := registry.NameAt(index)
	assert.True(t, ok)
	assert.Equal(t, "across", name)

	index, ok = sceneKey(sdl.K_7)
	assert.True(t, ok)
	name, ok = registry.NameAt(index)
	assert.True(t, ok)
	assert.Equal(t, "mesh", name)

	index, ok = sceneKey(sdl.K_9)
	assert.True(t, ok)
	_, ok = registry.NameAt(index)
	assert.False(t, ok, "no scene behind key 9")

	_, ok = sceneKey(sdl.K_0)
	assert.False(t, ok)
	_, ok = sceneKey(sdl.K_ESCAPE)
	assert.False(t, ok)
}

func TestFrameStatsReportsOncePerSecond(t *testing.T) {
	var stats frameStats
	stats.reset(0)

	for i := 1; i < 60; i++ {
		_, ok := stats.tick(time.Duration(i) * time.Second / 60)
		assert.False(t, ok)
	}

	fps, ok := stats.tick(time.Second)
	assert.True(t, ok)
	assert.InDelta(t, 60, fps, 1e-9)

	_, ok = stats.tick(time.Second + time.Millisecond)
	assert.False(t, ok, "a new window starts after each report")
}
