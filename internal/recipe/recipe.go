// Package recipe builds heal recipes: for every dead pixel, the weighted
// set of healthy neighbours whose colours replace it.
//
// All floating-point work of the healer happens here, once, at build time.
// The resulting Set is plain integers and is applied by package heal.
package recipe

import "fmt"

const (
	// MaxReplacementPixels is the number of donor slots in one recipe.
	MaxReplacementPixels = 24

	// MaxReplacementDistance is the largest ring (Manhattan distance) searched.
	MaxReplacementDistance = 10

	// WeightScale is the fixed-point value of a 100% contribution.
	WeightScale = 65535
)

// Sample is one donor pixel, relative to the recipe target.
type Sample struct {
	OffsetX int8
	OffsetY int8
	Weight  uint16
}

// Recipe describes how to repair one dead pixel.
//
// Samples[:Count] hold the donors in discovery order; the remaining slots are
// zero. A recipe with Count == 0 is degenerate and leaves its target alone.
type Recipe struct {
	X       int
	Y       int
	Samples [MaxReplacementPixels]Sample
	Count   uint8
}

// Donors returns the accepted samples.
func (r *Recipe) Donors() []Sample {
	return r.Samples[:r.Count]
}

// Degenerate reports whether no donor was found within the search radius.
func (r *Recipe) Degenerate() bool {
	return r.Count == 0
}

// WeightSum is the total of all donor weights (WeightScale minus truncation
// loss, or 0 for a degenerate recipe).
func (r *Recipe) WeightSum() int {
	sum := 0
	for _, s := range r.Donors() {
		sum += int(s.Weight)
	}
	return sum
}

// Set is the ordered collection of recipes for one mask, in row-major
// discovery order. A Set is never modified after Build returns it.
type Set struct {
	Width   int
	Height  int
	Recipes []Recipe
}

// Len is the number of recipes (equal to the number of dead pixels).
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Recipes)
}

// Degenerate counts recipes without donors.
func (s *Set) Degenerate() int {
	if s == nil {
		return 0
	}
	n := 0
	for i := range s.Recipes {
		if s.Recipes[i].Degenerate() {
			n++
		}
	}
	return n
}

// DonorHistogram returns how many recipes have exactly k donors, indexed by k.
func (s *Set) DonorHistogram() [MaxReplacementPixels + 1]int {
	var hist [MaxReplacementPixels + 1]int
	if s == nil {
		return hist
	}
	for i := range s.Recipes {
		hist[s.Recipes[i].Count]++
	}
	return hist
}

// Validate checks that every recipe can be applied to a Width x Height
// frame without reading outside it. Donor weights may not exceed
// WeightScale in total.
func (s *Set) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("bad size %dx%d", s.Width, s.Height)
	}
	for i := range s.Recipes {
		if err := s.Recipes[i].validate(s.Width, s.Height); err != nil {
			return fmt.Errorf("recipe %d: %w", i, err)
		}
	}
	return nil
}

func (r *Recipe) validate(w, h int) error {
	if r.X < 0 || r.Y < 0 || r.X >= w || r.Y >= h {
		return fmt.Errorf("target (%d,%d) outside %dx%d", r.X, r.Y, w, h)
	}
	if int(r.Count) > MaxReplacementPixels {
		return fmt.Errorf("%d donors", r.Count)
	}

	sum := 0
	for _, s := range r.Donors() {
		dx, dy := int(s.OffsetX), int(s.OffsetY)
		if d := abs(dx) + abs(dy); d < 1 || d > MaxReplacementDistance {
			return fmt.Errorf("donor (%d,%d) on ring %d", dx, dy, d)
		}
		x, y := r.X+dx, r.Y+dy
		if x < 0 || y < 0 || x >= w || y >= h {
			return fmt.Errorf("donor (%d,%d) outside %dx%d", x, y, w, h)
		}
		sum += int(s.Weight)
	}
	if sum > WeightScale {
		return fmt.Errorf("weights add up to %d", sum)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Params bounds the neighbour search.
type Params struct {
	// MaxDistance is the last ring searched (1..MaxReplacementDistance).
	MaxDistance int
	// MaxPixels is the donor cap per recipe (1..MaxReplacementPixels).
	MaxPixels int
}

// DefaultParams returns the full search radius and donor capacity.
func DefaultParams() Params {
	return Params{
		MaxDistance: MaxReplacementDistance,
		MaxPixels:   MaxReplacementPixels,
	}
}

// Validate checks the params against the fixed recipe shape.
func (p Params) Validate() error {
	if p.MaxDistance < 1 || p.MaxDistance > MaxReplacementDistance {
		return fmt.Errorf("max distance %d out of range (1-%d)", p.MaxDistance, MaxReplacementDistance)
	}
	if p.MaxPixels < 1 || p.MaxPixels > MaxReplacementPixels {
		return fmt.Errorf("max pixels %d out of range (1-%d)", p.MaxPixels, MaxReplacementPixels)
	}
	return nil
}
