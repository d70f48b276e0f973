package recipe

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boolGrid is a Grid over a flat alive slice.
type boolGrid struct {
	w, h  int
	alive []bool
}

func newBoolGrid(w, h int) *boolGrid {
	g := &boolGrid{w: w, h: h, alive: make([]bool, w*h)}
	for i := range g.alive {
		g.alive[i] = true
	}
	return g
}

func (g *boolGrid) Width() int  { return g.w }
func (g *boolGrid) Height() int { return g.h }
func (g *boolGrid) Alive(x, y int) bool {
	if x < 0 || x >= g.w || y < 0 || y >= g.h {
		return false
	}
	return g.alive[y*g.w+x]
}
func (g *boolGrid) kill(x, y int) { g.alive[y*g.w+x] = false }

func randomGrid(rng *rand.Rand, w, h int, deadRatio float64) *boolGrid {
	g := newBoolGrid(w, h)
	for i := range g.alive {
		g.alive[i] = rng.Float64() >= deadRatio
	}
	return g
}

func offsets(r *Recipe) [][2]int {
	out := make([][2]int, 0, r.Count)
	for _, s := range r.Donors() {
		out = append(out, [2]int{int(s.OffsetX), int(s.OffsetY)})
	}
	return out
}

func TestRingOffset_Order(t *testing.T) {
	var ring1, ring2 [][2]int
	for i := 0; i < 4; i++ {
		dx, dy := ringOffset(1, i)
		ring1 = append(ring1, [2]int{dx, dy})
	}
	for i := 0; i < 8; i++ {
		dx, dy := ringOffset(2, i)
		ring2 = append(ring2, [2]int{dx, dy})
	}

	wantRing1 := [][2]int{{0, -1}, {0, -1}, {0, 1}, {0, 1}}
	wantRing2 := [][2]int{
		{0, -2}, {0, -2}, {0, 2}, {0, 2},
		{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
	}

	if diff := cmp.Diff(wantRing1, ring1); diff != "" {
		t.Errorf("ring 1 order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRing2, ring2); diff != "" {
		t.Errorf("ring 2 order mismatch (-want +got):\n%s", diff)
	}
}

// TestBuild_CenterDefect covers a 5x5 all-alive mask with the center dead.
func TestBuild_CenterDefect(t *testing.T) {
	g := newBoolGrid(5, 5)
	g.kill(2, 2)

	set := Build(g, DefaultParams())
	require.Equal(t, 1, set.Len())

	r := &set.Recipes[0]
	assert.Equal(t, 2, r.X)
	assert.Equal(t, 2, r.Y)
	require.Equal(t, uint8(MaxReplacementPixels), r.Count)

	wantOffsets := [][2]int{
		{0, -1}, {0, -1}, {0, 1}, {0, 1},
		{0, -2}, {0, -2}, {0, 2}, {0, 2},
		{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
		{-1, -2}, {1, -2}, {-1, 2}, {1, 2},
		{-2, -1}, {2, -1}, {-2, 1}, {2, 1},
		{-2, -2}, {2, -2}, {-2, 2}, {2, 2},
	}
	if diff := cmp.Diff(wantOffsets, offsets(r)); diff != "" {
		t.Fatalf("donor order mismatch (-want +got):\n%s", diff)
	}

	wantWeights := []uint16{
		5913, 5913, 5913, 5913,
		2175, 2175, 2175, 2175,
		3908, 3908, 3908, 3908,
		1718, 1718, 1718, 1718,
		1718, 1718, 1718, 1718,
		950, 950, 950, 950,
	}
	gotWeights := make([]uint16, 0, r.Count)
	for _, s := range r.Donors() {
		gotWeights = append(gotWeights, s.Weight)
	}
	if diff := cmp.Diff(wantWeights, gotWeights); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 65528, r.WeightSum())

	// Ring 1 donors come first and outweigh every diagonal donor.
	for _, s := range r.Donors()[:4] {
		assert.Equal(t, 1, abs(int(s.OffsetX))+abs(int(s.OffsetY)))
		for _, o := range r.Donors()[8:12] {
			assert.Greater(t, s.Weight, o.Weight)
		}
	}
}

func TestBuild_OneRecipePerDeadPixel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, ratio := range []float64{0, 0.01, 0.2, 0.6, 1} {
		g := randomGrid(rng, 23, 17, ratio)
		set := Build(g, DefaultParams())

		dead := 0
		seen := make(map[[2]int]bool)
		for y := 0; y < g.h; y++ {
			for x := 0; x < g.w; x++ {
				if !g.Alive(x, y) {
					dead++
				}
			}
		}
		require.Equal(t, dead, set.Len(), "ratio %.2f", ratio)

		prev := -1
		for i := range set.Recipes {
			r := &set.Recipes[i]
			assert.False(t, g.Alive(r.X, r.Y), "recipe anchored at alive pixel (%d,%d)", r.X, r.Y)
			assert.False(t, seen[[2]int{r.X, r.Y}], "duplicate recipe at (%d,%d)", r.X, r.Y)
			seen[[2]int{r.X, r.Y}] = true

			// Row-major discovery order.
			idx := r.Y*g.w + r.X
			assert.Greater(t, idx, prev)
			prev = idx
		}
	}
}

func TestBuild_RecipeInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		g := randomGrid(rng, 31, 19, rng.Float64()*0.7)
		set := Build(g, DefaultParams())

		for i := range set.Recipes {
			r := &set.Recipes[i]
			k := int(r.Count)

			if k == 0 {
				assert.Equal(t, 0, r.WeightSum())
			} else {
				sum := r.WeightSum()
				assert.LessOrEqual(t, sum, WeightScale)
				assert.Greater(t, sum, WeightScale-k, "recipe (%d,%d) k=%d sum=%d", r.X, r.Y, k, sum)
			}

			for _, s := range r.Donors() {
				x, y := r.X+int(s.OffsetX), r.Y+int(s.OffsetY)
				assert.True(t, x >= 0 && x < g.w && y >= 0 && y < g.h,
					"donor (%d,%d) outside frame", x, y)
				assert.True(t, g.Alive(x, y), "donor (%d,%d) is dead", x, y)
				assert.LessOrEqual(t, abs(int(s.OffsetX))+abs(int(s.OffsetY)), MaxReplacementDistance)
			}

			// Unused slots stay zero.
			for _, s := range r.Samples[r.Count:] {
				assert.Equal(t, Sample{}, s)
			}

			// Closer donors never weigh less.
			donors := r.Donors()
			for a := range donors {
				for b := range donors {
					if dist(donors[a]) < dist(donors[b]) {
						assert.GreaterOrEqual(t, donors[a].Weight, donors[b].Weight)
					}
				}
			}
		}
	}
}

func TestBuild_Degenerate(t *testing.T) {
	t.Run("all dead", func(t *testing.T) {
		g := newBoolGrid(3, 3)
		for i := range g.alive {
			g.alive[i] = false
		}

		set := Build(g, DefaultParams())
		require.Equal(t, 9, set.Len())
		assert.Equal(t, 9, set.Degenerate())
		for i := range set.Recipes {
			assert.Equal(t, [MaxReplacementPixels]Sample{}, set.Recipes[i].Samples)
		}
	})

	t.Run("donor beyond search radius", func(t *testing.T) {
		g := newBoolGrid(1, 13)
		for y := 0; y < 12; y++ {
			g.kill(0, y)
		}

		set := Build(g, DefaultParams())
		require.Equal(t, 12, set.Len())
		// (0,0) is 12 rows away from the only live pixel; (0,2) is 10.
		assert.True(t, set.Recipes[0].Degenerate())
		assert.True(t, set.Recipes[1].Degenerate())
		assert.False(t, set.Recipes[2].Degenerate())
		assert.Equal(t, 2, set.Degenerate())
	})
}

func TestBuild_Params(t *testing.T) {
	g := newBoolGrid(5, 5)
	g.kill(2, 2)

	set := Build(g, Params{MaxDistance: 1, MaxPixels: MaxReplacementPixels})
	require.Equal(t, 1, set.Len())
	assert.Equal(t, uint8(4), set.Recipes[0].Count)
	// Four equal donors share the full scale.
	for _, s := range set.Recipes[0].Donors() {
		assert.Equal(t, uint16(WeightScale/4), s.Weight)
	}

	set = Build(g, Params{MaxDistance: MaxReplacementDistance, MaxPixels: 6})
	assert.Equal(t, uint8(6), set.Recipes[0].Count)

	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{MaxDistance: 0, MaxPixels: 4}.Validate())
	assert.Error(t, Params{MaxDistance: 11, MaxPixels: 4}.Validate())
	assert.Error(t, Params{MaxDistance: 3, MaxPixels: 25}.Validate())
}

func TestSet_DonorHistogram(t *testing.T) {
	g := newBoolGrid(5, 5)
	g.kill(2, 2)
	g.kill(0, 0)

	set := Build(g, DefaultParams())
	hist := set.DonorHistogram()

	total := 0
	for _, n := range hist {
		total += n
	}
	assert.Equal(t, set.Len(), total)
	// Both defects see each other: the corner runs out of frame at 23 donors
	// and the center loses its (-2,-2) candidate.
	assert.Equal(t, uint8(23), set.Recipes[0].Count)
	assert.Equal(t, uint8(23), set.Recipes[1].Count)
	assert.Equal(t, 2, hist[23])
	assert.Equal(t, 0, hist[MaxReplacementPixels])
}

func dist(s Sample) float64 {
	return math.Hypot(float64(s.OffsetX), float64(s.OffsetY))
}

func TestSet_Validate(t *testing.T) {
	g := newBoolGrid(5, 4)
	g.kill(0, 0)
	g.kill(2, 2)
	require.NoError(t, Build(g, DefaultParams()).Validate())
	require.NoError(t, (&Set{Width: 3, Height: 3}).Validate())

	one := func(x, y int, samples ...Sample) *Set {
		r := Recipe{X: x, Y: y, Count: uint8(len(samples))}
		copy(r.Samples[:], samples)
		return &Set{Width: 3, Height: 3, Recipes: []Recipe{r}}
	}

	tests := map[string]*Set{
		"size":            {Width: 0, Height: 3},
		"target outside":  one(3, 0),
		"donor outside":   one(0, 0, Sample{OffsetX: -1, OffsetY: 0, Weight: WeightScale}),
		"donor on target": one(1, 1, Sample{Weight: WeightScale}),
		"donor too far":   {Width: 40, Height: 40, Recipes: one(0, 0, Sample{OffsetX: 6, OffsetY: 6, Weight: 1}).Recipes},
		"weights": one(1, 1,
			Sample{OffsetX: 0, OffsetY: -1, Weight: WeightScale},
			Sample{OffsetX: 0, OffsetY: 1, Weight: 1},
		),
	}

	for name, set := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, set.Validate())
		})
	}
}
