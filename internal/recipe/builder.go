package recipe

import "math"

// Grid answers whether a pixel is alive. Out-of-range coordinates must be
// reported dead.
type Grid interface {
	Width() int
	Height() int
	Alive(x, y int) bool
}

// Build scans g in row-major order and returns one recipe per dead pixel.
// p must be valid (see Params.Validate).
func Build(g Grid, p Params) *Set {
	set := &Set{
		Width:  g.Width(),
		Height: g.Height(),
	}

	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if g.Alive(x, y) {
				continue
			}
			r := Recipe{X: x, Y: y}
			findDonors(g, &r, p)
			assignWeights(&r)
			set.Recipes = append(set.Recipes, r)
		}
	}

	return set
}

// ringOffset returns candidate i of ring d.
//
// offset = i/4 walks 0..d-1 while bits 0 and 1 of i pick the x and y signs.
// At small rings this revisits offsets (ring 1 yields (0,-1) and (0,1) twice
// each and never (±1,0)); the order is part of the recipe contents and is
// kept exactly.
func ringOffset(d, i int) (dx, dy int) {
	offset := i / 4
	xs, ys := -1, -1
	if i&1 != 0 {
		xs = 1
	}
	if i&2 != 0 {
		ys = 1
	}
	return xs * offset, ys * (d - offset)
}

// findDonors appends alive candidates in ring order until MaxPixels donors
// are found or the rings run out.
func findDonors(g Grid, r *Recipe, p Params) {
	for d := 1; d <= p.MaxDistance; d++ {
		for i := 0; i < 4*d; i++ {
			dx, dy := ringOffset(d, i)
			if !g.Alive(r.X+dx, r.Y+dy) {
				continue
			}
			r.Samples[r.Count] = Sample{OffsetX: int8(dx), OffsetY: int8(dy)}
			r.Count++
			if int(r.Count) >= p.MaxPixels {
				return
			}
		}
	}
}

// assignWeights gives each donor WeightScale/e^distance, normalized so the
// weights add up to WeightScale (less truncation). Degenerate recipes keep
// all-zero weights.
func assignWeights(r *Recipe) {
	var raw [MaxReplacementPixels]uint32
	var sum uint64

	donors := r.Donors()
	for i, s := range donors {
		dx, dy := float64(s.OffsetX), float64(s.OffsetY)
		dist := math.Sqrt(dx*dx + dy*dy)
		raw[i] = uint32(math.Round(WeightScale / math.Exp(dist)))
		sum += uint64(raw[i])
	}

	if sum == 0 {
		return
	}

	for i := range donors {
		donors[i].Weight = uint16(WeightScale * uint64(raw[i]) / sum)
	}
}
