package pixelheal

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipestore"
)

// writeMaskPNG writes a white mask with black dead pixels.
func writeMaskPNG(t *testing.T, w, h int, dead ...[2]int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	for _, d := range dead {
		img.Set(d[0], d[1], color.Black)
	}

	path := filepath.Join(t.TempDir(), "mask.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

type mapCache struct {
	mu     sync.Mutex
	sets   map[string]*RecipeSet
	gets   int
	puts   int
	getErr error
}

func (c *mapCache) Get(key string) (*RecipeSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	s, ok := c.sets[key]
	return s, ok, nil
}

func (c *mapCache) Put(key string, set *RecipeSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.sets == nil {
		c.sets = make(map[string]*RecipeSet)
	}
	c.sets[key] = set
	return nil
}

func TestOpen(t *testing.T) {
	path := writeMaskPNG(t, 8, 6, [2]int{3, 1}, [2]int{0, 5})
	info := VideoInfo{Width: 8, Height: 6, Format: FormatBGR24}

	e, err := Open(path, info)
	require.NoError(t, err)
	require.Equal(t, 2, e.Recipes().Len())
	assert.Equal(t, [2]int{3, 1}, [2]int{e.Recipes().Recipes[0].X, e.Recipes().Recipes[0].Y})
	assert.Equal(t, info, e.Info())

	// Bottom-up: row 1 becomes row 4, row 5 becomes row 0.
	flipped, err := Open(path, info, WithFlipVertical(true))
	require.NoError(t, err)
	require.Equal(t, 2, flipped.Recipes().Len())
	r0, r1 := flipped.Recipes().Recipes[0], flipped.Recipes().Recipes[1]
	assert.Equal(t, [2]int{0, 0}, [2]int{r0.X, r0.Y})
	assert.Equal(t, [2]int{3, 4}, [2]int{r1.X, r1.Y})
}

func TestOpen_Errors(t *testing.T) {
	info := VideoInfo{Width: 8, Height: 6, Format: FormatBGR24}

	_, err := Open(filepath.Join(t.TempDir(), "nope.bmp"), info)
	assert.Error(t, err)

	path := writeMaskPNG(t, 8, 6)
	_, err = Open(path, VideoInfo{Width: 8, Height: 7, Format: FormatBGR24})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Open(path, VideoInfo{Width: 8, Height: 6, Format: FormatBGR48})
	assert.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}

func TestEngine_Process(t *testing.T) {
	info := VideoInfo{Width: 7, Height: 7, Format: FormatBGRA32}
	e, err := New(newMask(7, 7, [2]int{3, 3}), info)
	require.NoError(t, err)

	f := fillFrame(info, func(x, y int) [3]byte {
		if x == 3 && y == 3 {
			return [3]byte{255, 255, 255}
		}
		return [3]byte{50, 50, 50}
	})
	require.NoError(t, e.Process(f))
	assert.Equal(t, [3]byte{49, 49, 49}, at(f, 3, 3))
	assert.Equal(t, byte(0x80), f.Data[f.Offset(3, 3)+3], "alpha untouched")

	stats := e.Stats()
	assert.Equal(t, 1, stats.DeadPixels)
	assert.Equal(t, 0, stats.Degenerate)
	assert.Equal(t, uint64(1), stats.FramesHealed)
	assert.False(t, stats.CacheHit)
}

func TestEngine_ProcessRejectsGeometry(t *testing.T) {
	info := VideoInfo{Width: 4, Height: 4, Format: FormatBGR24}
	e, err := New(newMask(4, 4, [2]int{0, 0}), info)
	require.NoError(t, err)

	tests := []struct {
		name string
		f    *Frame
	}{
		{"wrong size", fillFrame(VideoInfo{Width: 5, Height: 4, Format: FormatBGR24}, func(x, y int) [3]byte { return [3]byte{} })},
		{"wrong format", fillFrame(VideoInfo{Width: 4, Height: 4, Format: FormatBGRA32}, func(x, y int) [3]byte { return [3]byte{} })},
		{"short data", &Frame{Width: 4, Height: 4, Stride: 12, Format: FormatBGR24, Data: make([]byte, 20)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]byte(nil), tt.f.Data...)
			err := e.Process(tt.f)
			assert.True(t, errors.Is(err, ErrFrameGeometry), "got %v", err)
			assert.Equal(t, before, tt.f.Data)
		})
	}
	assert.Zero(t, e.Stats().FramesHealed)
}

func TestEngine_DegenerateRecipesLeaveTargets(t *testing.T) {
	// Only the last row is alive; rows 0 and 1 are beyond reach at
	// distance 2.
	var dead [][2]int
	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			dead = append(dead, [2]int{x, y})
		}
	}
	info := VideoInfo{Width: 3, Height: 5, Format: FormatBGR24}
	e, err := New(newMask(3, 5, dead...), info, WithMaxDistance(2))
	require.NoError(t, err)

	assert.Equal(t, 12, e.Stats().DeadPixels)
	assert.Equal(t, 6, e.Stats().Degenerate)

	f := fillFrame(info, func(x, y int) [3]byte { return [3]byte{byte(y), 7, 9} })
	require.NoError(t, e.Process(f))
	for x := 0; x < 3; x++ {
		assert.Equal(t, [3]byte{0, 7, 9}, at(f, x, 0))
		assert.Equal(t, [3]byte{1, 7, 9}, at(f, x, 1))
	}
}

func TestEngine_RecipeCache(t *testing.T) {
	info := VideoInfo{Width: 6, Height: 6, Format: FormatBGR24}
	mask := newMask(6, 6, [2]int{1, 1}, [2]int{4, 4})
	cache := &mapCache{}

	first, err := New(mask, info, WithRecipeCache(cache))
	require.NoError(t, err)
	assert.False(t, first.Stats().CacheHit)
	assert.Equal(t, 1, cache.puts)

	second, err := New(mask, info, WithRecipeCache(cache))
	require.NoError(t, err)
	assert.True(t, second.Stats().CacheHit)
	assert.Equal(t, 1, cache.puts)
	assert.Equal(t, first.Recipes(), second.Recipes())

	// Different search params miss.
	third, err := New(mask, info, WithRecipeCache(cache), WithMaxDistance(3))
	require.NoError(t, err)
	assert.False(t, third.Stats().CacheHit)
	assert.Equal(t, 2, cache.puts)

	// A failing cache degrades to a rebuild.
	broken := &mapCache{getErr: errors.New("disk on fire")}
	e, err := New(mask, info, WithRecipeCache(broken))
	require.NoError(t, err)
	assert.Equal(t, first.Recipes(), e.Recipes())
}

// outOfFrameSet has one recipe whose donor lies left of the frame.
func outOfFrameSet(w, h int) *RecipeSet {
	set := &RecipeSet{Width: w, Height: h, Recipes: []HealRecipe{{X: 0, Y: 0, Count: 1}}}
	set.Recipes[0].Samples[0] = ReplacementSample{OffsetX: -1, OffsetY: 0, Weight: WeightScale}
	return set
}

func TestEngine_InvalidCachedRecipesRebuild(t *testing.T) {
	info := VideoInfo{Width: 3, Height: 3, Format: FormatBGR24}
	mask := newMask(3, 3, [2]int{1, 1})

	t.Run("store", func(t *testing.T) {
		store, err := recipestore.Open(filepath.Join(t.TempDir(), "recipes.db"))
		require.NoError(t, err)
		defer store.Close()

		first, err := New(mask, info, WithRecipeCache(store))
		require.NoError(t, err)

		entries, err := store.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NoError(t, store.Put(entries[0].Key, outOfFrameSet(3, 3)))

		e, err := New(mask, info, WithRecipeCache(store))
		require.NoError(t, err)
		assert.False(t, e.Stats().CacheHit)
		assert.Equal(t, first.Recipes(), e.Recipes())

		f := fillFrame(info, func(x, y int) [3]byte { return [3]byte{50, 60, 70} })
		require.NoError(t, e.Process(f))
		got := at(f, 1, 1)
		for c, want := range [3]byte{50, 60, 70} {
			assert.InDelta(t, float64(want), float64(got[c]), 1, "channel %d", c)
		}
	})

	t.Run("cache bypassing decode", func(t *testing.T) {
		cache := &mapCache{}
		first, err := New(mask, info, WithRecipeCache(cache))
		require.NoError(t, err)
		for k := range cache.sets {
			cache.sets[k] = outOfFrameSet(3, 3)
		}

		e, err := New(mask, info, WithRecipeCache(cache))
		require.NoError(t, err)
		assert.False(t, e.Stats().CacheHit)
		assert.Equal(t, first.Recipes(), e.Recipes())
		assert.Equal(t, 2, cache.puts)
	})
}

func TestEngine_ConcurrentProcess(t *testing.T) {
	info := VideoInfo{Width: 16, Height: 16, Format: FormatBGR24}
	e, err := New(newMask(16, 16, [2]int{5, 5}, [2]int{6, 5}, [2]int{10, 12}), info)
	require.NoError(t, err)

	want := fillFrame(info, func(x, y int) [3]byte { return [3]byte{byte(x * 10), byte(y * 10), 77} })
	require.NoError(t, e.Process(want))

	var wg sync.WaitGroup
	results := make([]*Frame, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := fillFrame(info, func(x, y int) [3]byte { return [3]byte{byte(x * 10), byte(y * 10), 77} })
			assert.NoError(t, e.Process(f))
			results[i] = f
		}(i)
	}
	wg.Wait()

	for _, f := range results {
		assert.Equal(t, want.Data, f.Data)
	}
	assert.Equal(t, uint64(9), e.Stats().FramesHealed)
}
