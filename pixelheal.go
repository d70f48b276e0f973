package pixelheal

import (
	"fmt"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/heal"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/liveness"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipe"
)

// Types re-exported from the internal packages.
type (
	// Mask is a decoded defect map with 8-bit colour channels.
	Mask = liveness.Mask
	// Polarity selects which mask colour marks a healthy pixel.
	Polarity = liveness.Polarity

	// RecipeSet is the immutable, ordered set of recipes for one mask.
	RecipeSet = recipe.Set
	// HealRecipe repairs one dead pixel.
	HealRecipe = recipe.Recipe
	// ReplacementSample is one weighted donor of a HealRecipe.
	ReplacementSample = recipe.Sample

	// Frame is one mutable video frame.
	Frame = frame.Frame
	// PixelFormat describes the memory layout of a frame.
	PixelFormat = frame.PixelFormat
	// VideoInfo is the geometry shared by every frame of a clip.
	VideoInfo = frame.VideoInfo
	// FrameSource is the pull interface of clips and filters.
	FrameSource = frame.Source
)

const (
	PolarityBrightAlive = liveness.PolarityBrightAlive
	PolarityBrightDead  = liveness.PolarityBrightDead

	FormatUnknown = frame.FormatUnknown
	FormatBGR24   = frame.FormatBGR24
	FormatBGRA32  = frame.FormatBGRA32
	FormatRGB24   = frame.FormatRGB24
	FormatBGR48   = frame.FormatBGR48
	FormatGray8   = frame.FormatGray8
	FormatNV12    = frame.FormatNV12

	// WeightScale is the fixed-point value of a 100% donor contribution.
	WeightScale = recipe.WeightScale
	// MaxReplacementPixels is the donor capacity of one recipe.
	MaxReplacementPixels = recipe.MaxReplacementPixels
	// MaxReplacementDistance is the largest ring searched for donors.
	MaxReplacementDistance = recipe.MaxReplacementDistance
)

// ParsePixelFormat parses "bgr24", "bgra32" and the other format names.
func ParsePixelFormat(s string) (PixelFormat, error) {
	return frame.ParsePixelFormat(s)
}

// ParsePolarity parses "bright-alive" or "bright-dead".
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bright-alive":
		return PolarityBrightAlive, nil
	case "bright-dead":
		return PolarityBrightDead, nil
	default:
		return PolarityBrightAlive, fmt.Errorf("pixelheal: unknown mask polarity %q", s)
	}
}

// RecipeCache stores built recipe sets by key. Implementations must be
// safe to call from one goroutine at a time; a miss is (nil, false, nil).
type RecipeCache interface {
	Get(key string) (*RecipeSet, bool, error)
	Put(key string, set *RecipeSet) error
}

type options struct {
	polarity Polarity
	params   recipe.Params
	flip     bool
	cache    RecipeCache
}

func defaultOptions() options {
	return options{
		polarity: PolarityBrightAlive,
		params:   recipe.DefaultParams(),
	}
}

// Option configures BuildRecipes, New and Open.
type Option func(*options)

// WithPolarity sets the mask convention (default PolarityBrightAlive).
func WithPolarity(p Polarity) Option {
	return func(o *options) { o.polarity = p }
}

// WithMaxDistance limits the ring search to d (1..MaxReplacementDistance).
func WithMaxDistance(d int) Option {
	return func(o *options) { o.params.MaxDistance = d }
}

// WithMaxPixels caps the donors per recipe (1..MaxReplacementPixels).
func WithMaxPixels(n int) Option {
	return func(o *options) { o.params.MaxPixels = n }
}

// WithFlipVertical reads the mask file bottom-up. Only Open uses it.
func WithFlipVertical(flip bool) Option {
	return func(o *options) { o.flip = flip }
}

// WithRecipeCache reuses recipe sets across runs. Cache failures are
// logged and fall back to building.
func WithRecipeCache(c RecipeCache) Option {
	return func(o *options) { o.cache = c }
}

func resolveOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.params.Validate(); err != nil {
		return o, fmt.Errorf("pixelheal: %w", err)
	}
	return o, nil
}

// validateInfo checks the frame format and the mask geometry against info.
func validateInfo(mask Mask, info VideoInfo) error {
	if !info.Format.IsInterleavedBGR() {
		return fmt.Errorf("%w: %s (want bgr24 or bgra32)", ErrUnsupportedPixelFormat, info.Format)
	}
	if mask.Width() != info.Width || mask.Height() != info.Height {
		return fmt.Errorf("%w: mask %dx%d, frame %dx%d",
			ErrDimensionMismatch, mask.Width(), mask.Height(), info.Width, info.Height)
	}
	return nil
}

// BuildRecipes classifies mask and builds one recipe per dead pixel for
// frames described by info.
//
// The format must be FormatBGR24 or FormatBGRA32 and the mask must have the
// frame's dimensions; otherwise no recipe is built.
func BuildRecipes(mask Mask, info VideoInfo, opts ...Option) (*RecipeSet, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := validateInfo(mask, info); err != nil {
		return nil, err
	}

	return recipe.Build(liveness.NewGrid(mask, o.polarity), o.params), nil
}

// ApplyRecipes heals f in place. f must have the geometry set was built
// for and an interleaved BGR(A) format; Engine.Process checks this.
func ApplyRecipes(f *Frame, set *RecipeSet) {
	heal.Apply(f.Data, f.Stride, f.Format.BytesPerPixel(), set.Recipes)
}
