package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/framebus"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/framesink"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipestore"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/runner"
)

type healFlags struct {
	configPath string

	mask        string
	polarity    string
	flip        bool
	maxDistance int
	maxPixels   int

	uri    string
	images string
	format string
	live   bool

	out         string
	outFormat   string
	jpegQuality int
	preview     bool

	kelvinFrom int
	kelvinTo   int

	workers       int
	maxFrames     int
	recipeCache   string
	statsInterval int

	mqttBroker string
	mqttTopic  string
}

func newHealCmd() *cobra.Command {
	var f healFlags

	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Heal every frame of a clip and write the results to disk",
		Long: `Reads frames from a GStreamer URI (--uri) or a glob of still images
(--images), repairs the pixels marked dead in --mask and writes numbered
images to --out.

Settings can come from a YAML file (--config); flags override it.`,
		Example: `  pixelheal heal --mask cam1.png --uri file:///data/clip.mp4 --out healed/
  pixelheal heal --mask cam1.bmp --flip-vertical --images 'raw/*.png' --out healed/ --workers 4
  pixelheal heal --config /etc/pixelheal/cam1.yaml --kelvin-from 3200 --kelvin-to 5600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := healConfig(cmd, &f)
			if err != nil {
				return err
			}
			return runHeal(cmd.Context(), cmd, cfg)
		},
	}
	bindHealFlags(cmd, &f)
	return cmd
}

func bindHealFlags(cmd *cobra.Command, f *healFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")

	fs.StringVar(&f.mask, "mask", "", "Defect mask image (BMP, PNG, JPEG, GIF, TIFF, WebP)")
	fs.StringVar(&f.polarity, "polarity", "", "Mask convention: bright-alive or bright-dead")
	fs.BoolVar(&f.flip, "flip-vertical", false, "Mask rows are stored bottom-up")
	fs.IntVar(&f.maxDistance, "max-distance", 0, "Donor search radius, 1-10")
	fs.IntVar(&f.maxPixels, "max-pixels", 0, "Donors per dead pixel, 1-24")

	fs.StringVar(&f.uri, "uri", "", "GStreamer source URI (file://, rtsp://)")
	fs.StringVar(&f.images, "images", "", "Glob of still images, read in lexical order")
	fs.StringVar(&f.format, "format", "", "Working pixel format: bgr24 or bgra32")
	fs.BoolVar(&f.live, "live", false, "Live source: drop frames instead of blocking")

	fs.StringVar(&f.out, "out", "", "Output directory")
	fs.StringVar(&f.outFormat, "out-format", "", "Output format: png, jpeg, bmp or tiff")
	fs.IntVar(&f.jpegQuality, "jpeg-quality", 0, "JPEG quality (1-100)")
	fs.BoolVar(&f.preview, "preview", false, "Keep <out>/latest.<ext> updated with the newest frame")

	fs.IntVar(&f.kelvinFrom, "kelvin-from", 0, "Shift colour temperature from this value (kelvin)")
	fs.IntVar(&f.kelvinTo, "kelvin-to", 0, "Shift colour temperature to this value (kelvin)")

	fs.IntVar(&f.workers, "workers", 0, "Frames healed concurrently (default: number of CPUs)")
	fs.IntVar(&f.maxFrames, "max-frames", 0, "Stop after this many frames (0 = whole clip)")
	fs.StringVar(&f.recipeCache, "recipe-cache", "", "SQLite file caching built recipes")
	fs.IntVar(&f.statsInterval, "stats-interval", 0, "Progress report interval (seconds)")

	fs.StringVar(&f.mqttBroker, "mqtt-broker", "", "Publish progress reports to this MQTT broker (host:port)")
	fs.StringVar(&f.mqttTopic, "mqtt-topic", "", "MQTT topic prefix (default: pixelheal/<client id>)")
}

// healConfig loads --config (if any), applies explicitly set flags on top
// and validates the result.
func healConfig(cmd *cobra.Command, f *healFlags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.configPath != "" {
		var err error
		if cfg, err = config.Read(f.configPath); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}

	set("mask", func() { cfg.Mask.Path = f.mask })
	set("polarity", func() { cfg.Mask.Polarity = f.polarity })
	set("flip-vertical", func() { cfg.Mask.FlipVertical = f.flip })
	set("max-distance", func() { cfg.Mask.MaxDistance = f.maxDistance })
	set("max-pixels", func() { cfg.Mask.MaxPixels = f.maxPixels })

	set("uri", func() { cfg.Source.URI, cfg.Source.Images = f.uri, "" })
	set("images", func() { cfg.Source.Images, cfg.Source.URI = f.images, "" })
	set("format", func() { cfg.Source.Format = f.format })
	set("live", func() { cfg.Source.Live = f.live })

	set("out", func() { cfg.Output.Dir = f.out })
	set("out-format", func() { cfg.Output.Format = f.outFormat })
	set("jpeg-quality", func() { cfg.Output.JPEGQuality = f.jpegQuality })
	set("preview", func() { cfg.Output.Preview = f.preview })

	set("kelvin-from", func() { cfg.Kelvin.From, cfg.Kelvin.Enabled = f.kelvinFrom, true })
	set("kelvin-to", func() { cfg.Kelvin.To, cfg.Kelvin.Enabled = f.kelvinTo, true })

	set("workers", func() { cfg.Workers = f.workers })
	set("max-frames", func() { cfg.MaxFrames = f.maxFrames })
	set("recipe-cache", func() { cfg.RecipeCache = f.recipeCache })
	set("stats-interval", func() { cfg.StatsIntervalS = f.statsInterval })
	set("mqtt-broker", func() { cfg.MQTT.Broker = f.mqttBroker })
	set("mqtt-topic", func() { cfg.MQTT.Topic = f.mqttTopic })

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// engineOptions maps the mask section onto engine options.
func engineOptions(m config.MaskConfig) ([]pixelheal.Option, error) {
	polarity, err := pixelheal.ParsePolarity(m.Polarity)
	if err != nil {
		return nil, err
	}
	return []pixelheal.Option{
		pixelheal.WithPolarity(polarity),
		pixelheal.WithFlipVertical(m.FlipVertical),
		pixelheal.WithMaxDistance(m.MaxDistance),
		pixelheal.WithMaxPixels(m.MaxPixels),
	}, nil
}

// openSource opens the configured frame source. stop releases it.
func openSource(ctx context.Context, cfg *config.Config, format pixelheal.PixelFormat) (src pixelheal.FrameSource, stream *capture.Stream, stop func(), err error) {
	if cfg.Source.Images != "" {
		files, err := filepath.Glob(cfg.Source.Images)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bad image glob %q: %w", cfg.Source.Images, err)
		}
		seq, err := pixelheal.NewImageSequence(files, format)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %w", cfg.Source.Images, err)
		}
		slog.Info("Image sequence opened", "pattern", cfg.Source.Images, "frames", seq.Len())
		return seq, nil, func() {}, nil
	}

	stream, err = capture.NewStream(capture.Config{
		URI:    cfg.Source.URI,
		Format: format,
		Live:   cfg.Source.Live,
		Buffer: cfg.Source.BufferFrames,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := stream.Start(ctx); err != nil {
		return nil, nil, nil, err
	}
	stop = func() {
		if err := stream.Stop(); err != nil {
			slog.Error("Failed to stop stream gracefully", "error", err)
		}
	}
	return stream, stream, stop, nil
}

func runHeal(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	format, err := pixelheal.ParsePixelFormat(cfg.Source.Format)
	if err != nil {
		return err
	}
	opts, err := engineOptions(cfg.Mask)
	if err != nil {
		return err
	}

	if cfg.RecipeCache != "" {
		store, err := recipestore.Open(cfg.RecipeCache)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pixelheal.WithRecipeCache(store))
	}

	src, stream, stop, err := openSource(ctx, cfg, format)
	if err != nil {
		return err
	}
	defer stop()

	// Geometry is only known once the first frame is decoded.
	info, src, err := pixelheal.Probe(ctx, src)
	if err != nil {
		return err
	}

	engine, err := pixelheal.Open(cfg.Mask.Path, info, opts...)
	if err != nil {
		return err
	}

	chain := pixelheal.Chain{engine}
	if cfg.Kelvin.Enabled {
		shift, err := pixelheal.NewColorShift(cfg.Kelvin.From, cfg.Kelvin.To)
		if err != nil {
			return err
		}
		chain = append(chain, shift)
	}

	saver, err := framesink.NewSaver(cfg.Output.Dir, cfg.Output.Format, cfg.Output.JPEGQuality)
	if err != nil {
		return fmt.Errorf("failed to create frame saver: %w", err)
	}

	bus := framebus.New()
	defer bus.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var previewCh chan *frame.Frame
	var previewWG sync.WaitGroup
	if cfg.Output.Preview {
		previewCh = make(chan *frame.Frame, 1)
		if err := bus.Subscribe("preview", previewCh); err != nil {
			return err
		}
		// Separate saver so snapshots do not count as saved frames.
		previewSaver, err := framesink.NewSaver(cfg.Output.Dir, cfg.Output.Format, cfg.Output.JPEGQuality)
		if err != nil {
			return err
		}
		preview := framesink.NewPreview(previewSaver, cfg.Output.Dir, cfg.Output.PreviewInterval())
		previewWG.Add(1)
		go func() {
			defer previewWG.Done()
			preview.Run(ctx, previewCh)
		}()
		slog.Info("Preview enabled", "path", preview.Path(), "interval", cfg.Output.PreviewInterval())
	}

	printBanner(cmd.OutOrStdout(), cfg, info)

	r := runner.New(src, chain, saver, runner.Config{
		Workers:   cfg.Workers,
		MaxFrames: cfg.MaxFrames,
		OnFrame:   bus.Publish,
	})

	rep := &reporter{runner: r, engine: engine, saver: saver, bus: bus, stream: stream}
	if cfg.MQTT.Broker != "" {
		em, err := emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}
		if err := em.Connect(ctx); err != nil {
			return err
		}
		defer em.Disconnect()
		rep.emitter, rep.instanceID = em, cfg.MQTT.ClientID
	}
	go rep.run(ctx, cfg.StatsInterval())

	err = r.Run(ctx)

	// No more publishes: let the preview writer drain its last frame.
	bus.Close()
	if previewCh != nil {
		close(previewCh)
	}
	previewWG.Wait()

	rep.printFinal(cmd.OutOrStdout())

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Heal finished", "frames", r.Processed(), "output_dir", cfg.Output.Dir)
	return err
}
