package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/config"
	"github.com/aliskhannn/thumbnailer/internal/dispatcher"
	"github.com/aliskhannn/thumbnailer/internal/filter"
	"github.com/aliskhannn/thumbnailer/internal/hook"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/notify"
	"github.com/aliskhannn/thumbnailer/internal/pathtmpl"
	"github.com/aliskhannn/thumbnailer/internal/processor"
	"github.com/aliskhannn/thumbnailer/internal/storage/file"
	"github.com/aliskhannn/thumbnailer/internal/storage/minio"
	"github.com/aliskhannn/thumbnailer/internal/watch"
)

const version = "20200409"

type fileStorage interface {
	Save(ctx context.Context, dst, contentType string, src io.Reader) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, o model.Outcome) error
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:     "thumbnailer <source_dir> <output_filename_template>",
		Short:   "automatic thumbnail generator",
		Long:    "Watches source_dir and writes a resized copy of every updated image to the path given by the template,\ne.g. '{directory}/thumb_{stem}{extension}'.",
		Version: version,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			v.Set("source", args[0])
			v.Set("template", args[1])

			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}
	cmd.SilenceErrors = true

	flags := cmd.Flags()
	flags.IntP("width", "x", 0, "pixel width of output")
	flags.IntP("height", "y", 0, "pixel height of output")
	flags.Float64P("scale", "s", 0.25, "scale used when neither width nor height is given")
	flags.StringP("exclude", "X", "", "excluded pattern of filename")
	flags.String("pre", "", "pre-processing hook (recipe file or Go plugin)")
	flags.String("post", "", "post-processing hook (recipe file or Go plugin)")
	flags.BoolP("verbose", "v", false, "make output verbosely")
	flags.Duration("batch-window", watch.DefaultWindow, "how long filesystem events are collected into one batch")
	flags.StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml)")

	return cmd
}

// run wires the pipeline and blocks until ctx is done. In-flight
// invocations are abandoned on exit.
func run(ctx context.Context, cfg config.Config) error {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	tmpl, err := pathtmpl.Compile(cfg.Template)
	if err != nil {
		return fmt.Errorf("failed to compile output template: %w", err)
	}

	exclusion, err := filter.New(cfg.Exclude)
	if err != nil {
		return err
	}

	pre, err := hook.Load(cfg.Hooks.Pre)
	if err != nil {
		return fmt.Errorf("failed to load pre hook: %w", err)
	}
	post, err := hook.Load(cfg.Hooks.Post)
	if err != nil {
		return fmt.Errorf("failed to load post hook: %w", err)
	}

	// Retry strategy for startup connectivity and outcome publishing.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	storage, err := newStorage(ctx, cfg.Storage, strategy)
	if err != nil {
		return err
	}

	var pub publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p := notify.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, strategy)
		defer func() {
			if err := p.Close(); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		pub = p
	}

	proc := processor.New(cfg.Resize, pre, post, storage, pub)
	d := dispatcher.New(tmpl, exclusion, proc)

	w, err := watch.New(cfg.Watch.BatchWindow)
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Subscribe(cfg.Source, func(err error, events []model.WatchEvent) {
		d.HandleBatch(ctx, err, events)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.Source, err)
	}

	zlog.Logger.Info().
		Str("source", cfg.Source).
		Str("template", tmpl.String()).
		Str("exclude", exclusion.String()).
		Str("storage", cfg.Storage.Backend).
		Msg("watching for changes")

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received, stopping watcher")

	return nil
}

func newStorage(ctx context.Context, cfg config.Storage, strategy retry.Strategy) (fileStorage, error) {
	if cfg.Backend != config.BackendMinio {
		return file.NewStorage(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := minio.NewStorage(connectCtx, minio.Options{
		Endpoint:   cfg.Endpoint,
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		BucketName: cfg.BucketName,
		UseSSL:     cfg.UseSSL,
	}, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	return s, nil
}
