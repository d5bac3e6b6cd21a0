package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zulandar/perfumery/internal/db"
	"github.com/zulandar/perfumery/internal/ingest"
	"github.com/zulandar/perfumery/internal/logging"
	"github.com/zulandar/perfumery/internal/progress"
)

type loadImagesOpts struct {
	configPath string
	root       string
	checkpoint string
	batchSize  int
	reset      bool
}

func newLoadImagesCmd() *cobra.Command {
	var opts loadImagesOpts

	cmd := &cobra.Command{
		Use:   "load-images",
		Short: "Load product images from disk into the database",
		Long: "Walks the image root (one directory per article), parses <article>_<n|z|s><index>.<ext> " +
			"file names and bulk-inserts image rows. Progress is checkpointed so an interrupted run " +
			"resumes where it stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadImages(cmd, opts)
		},
	}

	addConfigFlag(cmd, &opts.configPath)
	cmd.Flags().StringVar(&opts.root, "root", "", "image root directory (overrides images.root)")
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "checkpoint file (overrides loader.checkpoint)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "files per insert (overrides loader.batch_size)")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "discard an existing checkpoint and start over")
	return cmd
}

func runLoadImages(cmd *cobra.Command, opts loadImagesOpts) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if opts.root != "" {
		cfg.Images.Root = opts.root
	}
	if opts.checkpoint != "" {
		cfg.Loader.Checkpoint = opts.checkpoint
	}
	if opts.batchSize > 0 {
		cfg.Loader.BatchSize = opts.batchSize
	}
	log := newLogger(cmd, cfg, "loader")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := db.Ping(ctx, gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	checkpoints := ingest.NewFileStore(cfg.Loader.Checkpoint)
	if opts.reset {
		if err := checkpoints.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Discarded checkpoint %s\n", cfg.Loader.Checkpoint)
	}

	var barOut io.Writer
	if logging.IsTerminal(out) {
		barOut = out
	}
	bar := progress.New(barOut, "files")

	loader := ingest.NewLoader(ingest.Options{
		Root:      cfg.Images.Root,
		BasePath:  cfg.Images.BasePath,
		BatchSize: cfg.Loader.BatchSize,
	}, ingest.NewGormStore(gormDB), checkpoints, bar, log)

	fmt.Fprintf(out, "Loading images from %s (batch size %d)\n", cfg.Images.Root, cfg.Loader.BatchSize)
	sum, err := loader.Run(ctx)
	bar.Finish()
	printLoadSummary(out, sum)
	if err != nil {
		log.Error().Err(err).Str("checkpoint", cfg.Loader.Checkpoint).Msg("load stopped, rerun to resume")
		return err
	}
	if sum.Unresolved > 0 {
		fmt.Fprintf(out, "%d files had no matching product, rerun after adding them\n", sum.Unresolved)
	}
	fmt.Fprintln(out, "All images loaded")
	return nil
}

func printLoadSummary(w io.Writer, s ingest.Summary) {
	fmt.Fprintf(w, "Directories: %d done, %d skipped\n", s.Dirs, s.DirsSkipped)
	fmt.Fprintf(w, "Files: %d processed, %d already loaded, %d rejected, %d unresolved\n", s.Files, s.FilesSkipped, s.Rejected, s.Unresolved)
	fmt.Fprintf(w, "Rows: %d inserted, %d duplicates in %d batches\n", s.Inserted, s.Duplicates, s.Batches)
}
