// Package pixelheal repairs known-dead sensor pixels in video frames.
//
// A defect map (the mask) is supplied once. Every dead pixel gets a heal
// recipe: up to 24 healthy neighbours found by a ring search of radius 10,
// weighted by exponential decay of their distance. Recipes are built once
// and applied to every frame with integer-only arithmetic.
//
// # Quick Start
//
//	info := pixelheal.VideoInfo{Width: 1920, Height: 1080, Format: pixelheal.FormatBGRA32}
//
//	engine, err := pixelheal.Open("sensor-mask.bmp", info)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for f := range frames {
//	    if err := engine.Process(f); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Clip Model
//
// Filters pull frames from a FrameSource and are FrameSources themselves,
// so they chain:
//
//	src, err := pixelheal.NewImageSequence(files, pixelheal.FormatBGR24)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	healed := pixelheal.NewHealFilter(src, engine)
//	warmed := pixelheal.NewKelvinFilter(healed, shift)
//	f, err := warmed.GetFrame(ctx, 0)
//
// Sources may hand out shared frames; filters call MakeWritable before
// mutating.
//
// # Mask Convention
//
// By default a mask pixel is alive when any of its R, G, B channels is at
// least 128 (PolarityBrightAlive). Defect maps painted white-on-black use
// PolarityBrightDead. Pixels outside the frame never count as donors.
//
// # Concurrency
//
// A RecipeSet is immutable once built. Engine.Process and ApplyRecipes may
// run concurrently on distinct frames.
package pixelheal
