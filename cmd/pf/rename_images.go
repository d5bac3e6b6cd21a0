package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zulandar/perfumery/internal/logging"
	"github.com/zulandar/perfumery/internal/progress"
	"github.com/zulandar/perfumery/internal/rename"
)

type renameImagesOpts struct {
	configPath  string
	oldRoot     string
	newRoot     string
	mapping     string
	concurrency int
}

func newRenameImagesCmd() *cobra.Command {
	var opts renameImagesOpts

	cmd := &cobra.Command{
		Use:   "rename-images",
		Short: "Copy image directories from old to new product IDs",
		Long: "Reads an oldId,newId mapping (comma or semicolon separated, optional header) and copies " +
			"<old-root>/<oldId>/ to <new-root>/<newId>/, replacing each file's numeric prefix. " +
			"Source files are never modified.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRenameImages(cmd, opts)
		},
	}

	addConfigFlag(cmd, &opts.configPath)
	cmd.Flags().StringVar(&opts.oldRoot, "old-root", "", "source root (overrides rename.old_root)")
	cmd.Flags().StringVar(&opts.newRoot, "new-root", "", "target root (overrides rename.new_root)")
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "mapping CSV (overrides rename.mapping)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "pairs copied in parallel (overrides rename.concurrency)")
	return cmd
}

func runRenameImages(cmd *cobra.Command, opts renameImagesOpts) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.oldRoot != "" {
		cfg.Rename.OldRoot = opts.oldRoot
	}
	if opts.newRoot != "" {
		cfg.Rename.NewRoot = opts.newRoot
	}
	if opts.mapping != "" {
		cfg.Rename.Mapping = opts.mapping
	}
	if opts.concurrency > 0 {
		cfg.Rename.Concurrency = opts.concurrency
	}
	if cfg.Rename.OldRoot == "" || cfg.Rename.NewRoot == "" {
		return fmt.Errorf("rename: old and new roots are required (rename.old_root, rename.new_root)")
	}
	log := newLogger(cmd, cfg, "rename")

	pairs, err := rename.LoadMapping(cfg.Rename.Mapping, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d pairs in %s\n", len(pairs), cfg.Rename.Mapping)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var barOut io.Writer
	if logging.IsTerminal(out) {
		barOut = out
	}
	bar := progress.New(barOut, "pairs")

	r := &rename.Renamer{
		OldRoot:     cfg.Rename.OldRoot,
		NewRoot:     cfg.Rename.NewRoot,
		Concurrency: cfg.Rename.Concurrency,
		Log:         log,
		Progress:    bar,
	}
	sum, err := r.Run(ctx, pairs)
	bar.Finish()
	fmt.Fprintf(out, "Pairs: %d, files copied: %d, skipped: %d, missing dirs: %d, empty dirs: %d, failures: %d\n",
		sum.Pairs, sum.Copied, sum.Skipped, sum.MissingDirs, sum.EmptyDirs, sum.Failed)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "All tasks finished")
	return nil
}
