// Package heal applies precomputed recipes to a frame buffer.
//
// The per-frame path is integer-only: weights were fixed at build time, so
// the output is reproducible bit-for-bit on every platform.
package heal

import "github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipe"

// Apply repairs every recipe target in data, in recipe order.
//
// data is row-major with stride bytes per row and bpp (3 or 4) bytes per
// pixel in B, G, R[, A] order; alpha is left alone. Recipes are applied in
// place one after another, so a donor that is itself an earlier target
// contributes its healed value. Degenerate recipes leave their target
// unchanged.
//
// The caller guarantees that data covers the geometry the recipes were built
// for; Apply does not allocate and cannot fail.
func Apply(data []byte, stride, bpp int, recipes []recipe.Recipe) {
	for i := range recipes {
		r := &recipes[i]
		if r.Count == 0 {
			continue
		}

		var accB, accG, accR uint32
		for _, s := range r.Samples[:r.Count] {
			if s.Weight == 0 {
				continue
			}
			idx := (r.Y+int(s.OffsetY))*stride + (r.X+int(s.OffsetX))*bpp
			w := uint32(s.Weight)
			accB += w * uint32(data[idx])
			accG += w * uint32(data[idx+1])
			accR += w * uint32(data[idx+2])
		}

		idx := r.Y*stride + r.X*bpp
		data[idx] = byte(accB / recipe.WeightScale)
		data[idx+1] = byte(accG / recipe.WeightScale)
		data[idx+2] = byte(accR / recipe.WeightScale)
	}
}
