package pixelheal

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/liveness"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/maskimage"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipe"
)

// EngineStats is a snapshot of engine counters.
type EngineStats struct {
	DeadPixels   int    // recipes in the set
	Degenerate   int    // recipes without donors (targets left unchanged)
	FramesHealed uint64 // successful Process calls
	CacheHit     bool   // the recipe set came from the RecipeCache
}

// Engine heals frames of one geometry against one fixed mask.
//
// Lifecycle: New/Open builds the RecipeSet (the only expensive step), then
// Process is called once per frame. Process is safe for concurrent use on
// distinct frames.
type Engine struct {
	info     VideoInfo
	set      *RecipeSet
	cacheHit bool

	framesHealed uint64
}

// LoadMask decodes the mask image at path (BMP, PNG, JPEG, GIF, TIFF,
// WebP). With flipVertical the first image row is the bottom mask row.
func LoadMask(path string, flipVertical bool) (Mask, error) {
	img, format, err := maskimage.Load(path)
	if err != nil {
		return nil, fmt.Errorf("pixelheal: %w", err)
	}
	slog.Debug("pixelheal: mask decoded",
		"path", path,
		"format", format,
		"size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()),
		"flip_vertical", flipVertical,
	)
	return maskimage.FromImage(img, flipVertical), nil
}

// Open decodes the mask image at path and builds an engine for it.
func Open(path string, info VideoInfo, opts ...Option) (*Engine, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	mask, err := LoadMask(path, o.flip)
	if err != nil {
		return nil, err
	}
	return newEngine(mask, info, o)
}

// New builds an engine for mask and frames described by info.
//
// Fails with ErrUnsupportedPixelFormat or ErrDimensionMismatch; no partial
// engine is ever returned.
func New(mask Mask, info VideoInfo, opts ...Option) (*Engine, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return newEngine(mask, info, o)
}

func newEngine(mask Mask, info VideoInfo, o options) (*Engine, error) {
	if err := validateInfo(mask, info); err != nil {
		return nil, err
	}

	start := time.Now()
	grid := liveness.NewGrid(mask, o.polarity)

	e := &Engine{info: info}

	var key string
	if o.cache != nil {
		key = cacheKey(grid, o.params)
		set, ok, err := o.cache.Get(key)
		switch {
		case err != nil:
			slog.Warn("pixelheal: recipe cache read failed, rebuilding", "key", key, "error", err)
		case !ok:
		case set.Width != info.Width || set.Height != info.Height:
			slog.Warn("pixelheal: cached recipes have another geometry, rebuilding",
				"key", key, "cached", fmt.Sprintf("%dx%d", set.Width, set.Height))
		default:
			if err := set.Validate(); err != nil {
				slog.Warn("pixelheal: cached recipes are invalid, rebuilding", "key", key, "error", err)
				break
			}
			e.set = set
			e.cacheHit = true
		}
	}

	if e.set == nil {
		e.set = recipe.Build(grid, o.params)
		if o.cache != nil {
			if err := o.cache.Put(key, e.set); err != nil {
				slog.Warn("pixelheal: recipe cache write failed", "key", key, "error", err)
			}
		}
	}

	slog.Info("pixelheal: recipes ready",
		"video", info.String(),
		"polarity", o.polarity.String(),
		"dead_pixels", e.set.Len(),
		"degenerate", e.set.Degenerate(),
		"cache_hit", e.cacheHit,
		"build_ms", time.Since(start).Milliseconds(),
	)
	if n := e.set.Degenerate(); n > 0 {
		slog.Warn("pixelheal: dead pixels without donors will be left unchanged",
			"degenerate", n,
			"max_distance", o.params.MaxDistance,
		)
	}

	return e, nil
}

// cacheKey identifies a recipe set by mask classification and search
// params.
func cacheKey(grid *liveness.Grid, p recipe.Params) string {
	digest := grid.Digest()
	return fmt.Sprintf("%s-d%d-n%d", hex.EncodeToString(digest[:]), p.MaxDistance, p.MaxPixels)
}

// Info returns the frame geometry the engine accepts.
func (e *Engine) Info() VideoInfo { return e.info }

// Recipes returns the engine's recipe set. It must not be modified.
func (e *Engine) Recipes() *RecipeSet { return e.set }

// Process heals f in place.
//
// The frame must match the engine's width, height and format and hold
// enough data for its stride; otherwise ErrFrameGeometry is returned and f
// is left untouched.
func (e *Engine) Process(f *Frame) error {
	if f.Width != e.info.Width || f.Height != e.info.Height || f.Format != e.info.Format {
		return fmt.Errorf("%w: got %s, want %s", ErrFrameGeometry, f.Info(), e.info)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameGeometry, err)
	}

	ApplyRecipes(f, e.set)
	atomic.AddUint64(&e.framesHealed, 1)
	return nil
}

// Stats returns current engine statistics.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		DeadPixels:   e.set.Len(),
		Degenerate:   e.set.Degenerate(),
		FramesHealed: atomic.LoadUint64(&e.framesHealed),
		CacheHit:     e.cacheHit,
	}
}
