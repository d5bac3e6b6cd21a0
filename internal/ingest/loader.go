package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zulandar/perfumery/internal/models"
)

// Progress receives the file counts of a run.
type Progress interface {
	SetTotal(total int64)
	Add(n int)
}

type noProgress struct{}

func (noProgress) SetTotal(int64) {}
func (noProgress) Add(int)        {}

// Options configures a Loader.
type Options struct {
	// Root holds one subdirectory per article.
	Root string
	// BasePath prefixes stored image URLs, e.g. "/images/".
	BasePath string
	// BatchSize is the number of files per bulk insert.
	BatchSize int
}

// Summary counts what a run did.
type Summary struct {
	Dirs         int
	DirsSkipped  int
	Files        int
	FilesSkipped int
	Inserted     int64
	Duplicates   int64
	Rejected     int
	Unresolved   int
	Batches      int
}

// Loader walks the image root and inserts image rows for every product
// file it can resolve.
type Loader struct {
	opts        Options
	store       ProductStore
	checkpoints CheckpointStore
	progress    Progress
	log         zerolog.Logger
}

// NewLoader returns a Loader. progress may be nil.
func NewLoader(opts Options, store ProductStore, checkpoints CheckpointStore, progress Progress, log zerolog.Logger) *Loader {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	if opts.BasePath == "" {
		opts.BasePath = "/images/"
	}
	if progress == nil {
		progress = noProgress{}
	}
	return &Loader{
		opts:        opts,
		store:       store,
		checkpoints: checkpoints,
		progress:    progress,
		log:         log,
	}
}

// Run processes every pending directory under the root. The checkpoint is
// cleared when the walk finishes without error; on error it is left in place
// so the next run resumes. Files whose product could not be resolved are never
// recorded, so a later fresh run retries them.
func (l *Loader) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	cp, err := l.checkpoints.Load(ctx)
	if err != nil {
		return sum, err
	}
	if !cp.Empty() {
		l.log.Info().Int("dirs_done", len(cp.Dirs())).Msg("resuming from checkpoint")
	}

	entries, err := os.ReadDir(l.opts.Root)
	if err != nil {
		return sum, fmt.Errorf("ingest: read image root: %w", err)
	}

	l.progress.SetTotal(l.countPending(entries, cp))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if !e.IsDir() {
			continue
		}
		dir := e.Name()
		if cp.DirDone(dir) {
			sum.DirsSkipped++
			continue
		}
		if err := l.processDir(ctx, cp, dir, &sum); err != nil {
			return sum, err
		}
	}

	if sum.Unresolved > 0 {
		l.log.Warn().Int("files", sum.Unresolved).Msg("files without a matching product were not loaded")
	}
	if err := l.checkpoints.Clear(ctx); err != nil {
		return sum, err
	}
	return sum, nil
}

// countPending returns the number of image files in directories not yet done.
func (l *Loader) countPending(entries []os.DirEntry, cp *Checkpoint) int64 {
	var total int64
	for _, e := range entries {
		if !e.IsDir() || cp.DirDone(e.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(l.opts.Root, e.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.IsDir() && IsImage(f.Name()) {
				total++
			}
		}
	}
	return total
}

// dirState tracks per-directory decisions across batches.
type dirState struct {
	name     string
	mainSeen bool
}

func (l *Loader) processDir(ctx context.Context, cp *Checkpoint, dir string, sum *Summary) error {
	log := l.log.With().Str("dir", dir).Logger()

	files, err := os.ReadDir(filepath.Join(l.opts.Root, dir))
	if err != nil {
		return fmt.Errorf("ingest: read directory %s: %w", dir, err)
	}

	st := &dirState{name: dir}
	for _, f := range cp.Files(dir) {
		if d, err := Parse(f); err == nil && d.IsMain() {
			st.mainSeen = true
		}
	}

	batch := make([]Descriptor, 0, l.opts.BatchSize)
	imageCount := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		d, err := Parse(name)
		if errors.Is(err, ErrNotImage) {
			continue
		}
		imageCount++
		if cp.FileDone(dir, name) {
			sum.FilesSkipped++
			l.progress.Add(1)
			continue
		}
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("skipping file")
			sum.Rejected++
			l.progress.Add(1)
			continue
		}
		if !belongsTo(dir, d) {
			log.Warn().Str("file", name).Int("article", d.Article).Msg("file article does not match its directory, skipping")
			sum.Rejected++
			l.progress.Add(1)
			continue
		}
		batch = append(batch, d)
		if len(batch) == l.opts.BatchSize {
			if err := l.flush(ctx, cp, st, batch, sum); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := l.flush(ctx, cp, st, batch, sum); err != nil {
			return err
		}
	}

	if imageCount == 0 {
		log.Warn().Msg("directory has no image files")
	} else if !st.mainSeen {
		log.Warn().Msg("directory has no main image (n1)")
	}

	cp.MarkDir(dir)
	if err := l.checkpoints.Save(ctx, cp); err != nil {
		return err
	}
	sum.Dirs++
	log.Debug().Int("images", imageCount).Msg("directory done")
	return nil
}

// flush resolves a batch concurrently, inserts the resolved rows in one
// statement and then records the inserted files in the checkpoint.
func (l *Loader) flush(ctx context.Context, cp *Checkpoint, st *dirState, batch []Descriptor, sum *Summary) error {
	perfumes := make([]*models.Perfume, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.BatchSize)
	for i, d := range batch {
		g.Go(func() error {
			p, err := l.store.FindPerfume(gctx, d.Article)
			switch {
			case errors.Is(err, ErrProductNotFound):
				l.log.Warn().Str("dir", st.name).Str("file", d.Filename).Int("article", d.Article).
					Msg("no perfume with this article")
			case err != nil:
				l.log.Warn().Str("dir", st.name).Str("file", d.Filename).Err(err).Msg("product lookup failed")
			default:
				perfumes[i] = p
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([]models.PerfumeImage, 0, len(batch))
	recorded := make([]string, 0, len(batch))
	for i, d := range batch {
		p := perfumes[i]
		if p == nil {
			sum.Unresolved++
			continue
		}
		isMain := false
		if d.IsMain() {
			if st.mainSeen {
				l.log.Warn().Str("dir", st.name).Str("file", d.Filename).
					Msg("main image already assigned, storing as secondary")
			} else {
				isMain = true
				st.mainSeen = true
			}
		}
		rows = append(rows, l.imageRow(p, st.name, d, isMain))
		recorded = append(recorded, d.Filename)
	}

	if len(rows) > 0 {
		n, err := l.store.InsertImages(ctx, rows)
		if err != nil {
			return err
		}
		sum.Inserted += n
		sum.Duplicates += int64(len(rows)) - n
		sum.Batches++
	}
	sum.Files += len(batch)
	l.progress.Add(len(batch))

	cp.MarkFiles(st.name, recorded...)
	return l.checkpoints.Save(ctx, cp)
}

func (l *Loader) imageRow(p *models.Perfume, dir string, d Descriptor, isMain bool) models.PerfumeImage {
	alt := fmt.Sprintf("%s, image %s", p.FullName, d.Label())
	return models.PerfumeImage{
		Article:   p.Article,
		URL:       ImageURL(l.opts.BasePath, dir, d.Filename),
		IsMain:    isMain,
		SortOrder: d.Index,
		AltText:   &alt,
	}
}

// ImageURL is the stored URL of a file: <basePath>/<dir>/<filename>, where
// dir is the directory under the image root that holds the file.
func ImageURL(basePath, dir, filename string) string {
	return path.Join(basePath, dir, filename)
}

// belongsTo reports whether a file may be loaded from dir. Numeric directory
// names must carry the same article as the file name; leading zeros are
// ignored on both sides.
func belongsTo(dir string, d Descriptor) bool {
	n, err := strconv.Atoi(dir)
	if err != nil {
		return true
	}
	return n == d.Article
}
