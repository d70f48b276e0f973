package recipestore

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipe"
)

// payloadVersion is bumped whenever payload or record change shape.
const payloadVersion = 1

// ErrCorrupt is returned when a stored payload cannot be decoded.
var ErrCorrupt = errors.New("recipestore: corrupt recipe payload")

// payload is the msgpack form of a recipe set. Arrays instead of maps keep
// large masks compact.
type payload struct {
	_msgpack struct{} `msgpack:",as_array"`

	Version int
	Width   int
	Height  int
	Recipes []record
}

// record holds one recipe; DX[i], DY[i] and W[i] describe donor i.
type record struct {
	_msgpack struct{} `msgpack:",as_array"`

	X  int
	Y  int
	DX []int8
	DY []int8
	W  []uint16
}

// Encode serializes a recipe set with msgpack.
func Encode(set *recipe.Set) ([]byte, error) {
	p := payload{
		Version: payloadVersion,
		Width:   set.Width,
		Height:  set.Height,
		Recipes: make([]record, len(set.Recipes)),
	}

	for i := range set.Recipes {
		r := &set.Recipes[i]
		donors := r.Donors()
		rec := record{
			X:  r.X,
			Y:  r.Y,
			DX: make([]int8, len(donors)),
			DY: make([]int8, len(donors)),
			W:  make([]uint16, len(donors)),
		}
		for j, s := range donors {
			rec.DX[j], rec.DY[j], rec.W[j] = s.OffsetX, s.OffsetY, s.Weight
		}
		p.Recipes[i] = rec
	}

	data, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("recipestore: encode: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (*recipe.Set, error) {
	var p payload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, p.Version)
	}

	set := &recipe.Set{
		Width:   p.Width,
		Height:  p.Height,
		Recipes: make([]recipe.Recipe, len(p.Recipes)),
	}

	for i, rec := range p.Recipes {
		n := len(rec.W)
		if len(rec.DX) != n || len(rec.DY) != n {
			return nil, fmt.Errorf("%w: recipe %d has mismatched donor columns", ErrCorrupt, i)
		}
		if n > recipe.MaxReplacementPixels {
			return nil, fmt.Errorf("%w: recipe %d has %d donors", ErrCorrupt, i, n)
		}

		r := &set.Recipes[i]
		r.X, r.Y, r.Count = rec.X, rec.Y, uint8(n)
		for j := 0; j < n; j++ {
			r.Samples[j] = recipe.Sample{OffsetX: rec.DX[j], OffsetY: rec.DY[j], Weight: rec.W[j]}
		}
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return set, nil
}
