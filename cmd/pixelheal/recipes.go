package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipestore"
)

type recipesFlags struct {
	mask        config.MaskConfig
	recipeCache string
	dump        bool
	listCache   bool
}

func newRecipesCmd() *cobra.Command {
	var f recipesFlags

	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Build the repair recipes of a mask and print a summary",
		Long: `Classifies every mask pixel, searches donors for each dead one and
prints how many pixels will be repaired, how many have no donor within
--max-distance, and how donor counts are distributed.

With --recipe-cache the built set is stored (or reused) exactly as heal
would; --list-cache prints the cached sets instead.`,
		Example: `  pixelheal recipes --mask cam1.png
  pixelheal recipes --mask cam1.bmp --flip-vertical --max-distance 4 --dump
  pixelheal recipes --recipe-cache recipes.db --list-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.listCache {
				return listCache(cmd.OutOrStdout(), f.recipeCache)
			}
			return runRecipes(cmd.OutOrStdout(), &f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.mask.Path, "mask", "", "Defect mask image")
	fs.StringVar(&f.mask.Polarity, "polarity", "bright-alive", "Mask convention: bright-alive or bright-dead")
	fs.BoolVar(&f.mask.FlipVertical, "flip-vertical", false, "Mask rows are stored bottom-up")
	fs.IntVar(&f.mask.MaxDistance, "max-distance", pixelheal.MaxReplacementDistance, "Donor search radius, 1-10")
	fs.IntVar(&f.mask.MaxPixels, "max-pixels", pixelheal.MaxReplacementPixels, "Donors per dead pixel, 1-24")
	fs.StringVar(&f.recipeCache, "recipe-cache", "", "SQLite file caching built recipes")
	fs.BoolVar(&f.dump, "dump", false, "Print every recipe")
	fs.BoolVar(&f.listCache, "list-cache", false, "List the sets stored in --recipe-cache")

	return cmd
}

func runRecipes(w io.Writer, f *recipesFlags) error {
	if f.mask.Path == "" {
		return fmt.Errorf("--mask is required")
	}

	opts, err := engineOptions(f.mask)
	if err != nil {
		return err
	}
	if f.recipeCache != "" {
		store, err := recipestore.Open(f.recipeCache)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pixelheal.WithRecipeCache(store))
	}

	mask, err := pixelheal.LoadMask(f.mask.Path, f.mask.FlipVertical)
	if err != nil {
		return err
	}
	// The recipe set depends on the mask only; any accepted format will do.
	info := pixelheal.VideoInfo{Width: mask.Width(), Height: mask.Height(), Format: pixelheal.FormatBGRA32}

	engine, err := pixelheal.New(mask, info, opts...)
	if err != nil {
		return err
	}

	printRecipeSummary(w, f.mask, engine)
	if f.dump {
		dumpRecipes(w, engine.Recipes())
	}
	return nil
}

func printRecipeSummary(w io.Writer, m config.MaskConfig, e *pixelheal.Engine) {
	set := e.Recipes()
	stats := e.Stats()

	total := set.Width * set.Height
	var pct float64
	if total > 0 {
		pct = 100 * float64(set.Len()) / float64(total)
	}

	fmt.Fprintf(w, "Mask:           %s (%dx%d, %s)\n", m.Path, set.Width, set.Height, m.Polarity)
	fmt.Fprintf(w, "Dead pixels:    %d (%.3f%%)\n", set.Len(), pct)
	fmt.Fprintf(w, "Without donors: %d\n", set.Degenerate())
	fmt.Fprintf(w, "Search:         radius %d, up to %d donors\n", m.MaxDistance, m.MaxPixels)
	fmt.Fprintf(w, "From cache:     %v\n", stats.CacheHit)

	if set.Len() == 0 {
		return
	}

	hist := set.DonorHistogram()
	peak := 0
	for _, n := range hist {
		peak = max(peak, n)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Donors per dead pixel:")
	for count, n := range hist {
		if n == 0 {
			continue
		}
		bar := strings.Repeat("█", (n*40+peak-1)/peak)
		fmt.Fprintf(w, "  %2d  %6d  %s\n", count, n, bar)
	}
}

func dumpRecipes(w io.Writer, set *pixelheal.RecipeSet) {
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "X\tY\tDONORS\tSAMPLES (dx,dy:weight)")

	for i := range set.Recipes {
		r := &set.Recipes[i]
		samples := make([]string, 0, r.Count)
		for _, s := range r.Donors() {
			samples = append(samples, fmt.Sprintf("%d,%d:%d", s.OffsetX, s.OffsetY, s.Weight))
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", r.X, r.Y, r.Count, strings.Join(samples, " "))
	}
	tw.Flush()
}

func listCache(w io.Writer, path string) error {
	if path == "" {
		return fmt.Errorf("--list-cache requires --recipe-cache")
	}

	store, err := recipestore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "Recipe cache is empty")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tRECIPES\tWITHOUT DONORS\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%dx%d\t%d\t%d\t%s\n",
			e.Key, e.Width, e.Height, e.RecipeCount, e.Degenerate, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
