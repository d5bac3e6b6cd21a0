package rename

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Progress receives the number of pairs completed.
type Progress interface {
	SetTotal(total int64)
	Add(n int)
}

// Renamer copies <OldRoot>/<oldId>/ into <NewRoot>/<newId>/ for each pair.
// Source files are never modified.
type Renamer struct {
	OldRoot     string
	NewRoot     string
	Concurrency int
	Log         zerolog.Logger
	Progress    Progress

	// copyFunc defaults to copyFile.
	copyFunc func(src, dst string) error
}

// Summary counts what a run did.
type Summary struct {
	Pairs       int
	Copied      int
	Skipped     int
	MissingDirs int
	EmptyDirs   int
	Failed      int
}

func (s *Summary) add(o Summary) {
	s.Copied += o.Copied
	s.Skipped += o.Skipped
	s.MissingDirs += o.MissingDirs
	s.EmptyDirs += o.EmptyDirs
	s.Failed += o.Failed
}

// Run processes every pair with at most Concurrency pairs in flight. A
// failing pair is logged and does not affect the others.
func (r *Renamer) Run(ctx context.Context, pairs []Pair) (Summary, error) {
	sum := Summary{Pairs: len(pairs)}
	if r.Progress != nil {
		r.Progress.SetTotal(int64(len(pairs)))
	}

	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)
	for _, p := range pairs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.copyPair(ctx, p)
			mu.Lock()
			sum.add(res)
			mu.Unlock()
			if r.Progress != nil {
				r.Progress.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return sum, ctx.Err()
}

func (r *Renamer) copyPair(ctx context.Context, p Pair) Summary {
	var res Summary
	oldPrefix := strconv.Itoa(p.OldID)
	newPrefix := strconv.Itoa(p.NewID)
	oldDir := filepath.Join(r.OldRoot, oldPrefix)
	newDir := filepath.Join(r.NewRoot, newPrefix)
	log := r.Log.With().Int("old_id", p.OldID).Int("new_id", p.NewID).Logger()

	if ctx.Err() != nil {
		return res
	}

	entries, err := os.ReadDir(oldDir)
	if os.IsNotExist(err) {
		log.Warn().Str("dir", oldDir).Msg("source directory not found")
		res.MissingDirs++
		return res
	}
	if err != nil {
		log.Error().Err(err).Str("dir", oldDir).Msg("cannot read source directory")
		res.Failed++
		return res
	}
	if err := os.MkdirAll(newDir, 0755); err != nil {
		log.Error().Err(err).Str("dir", newDir).Msg("cannot create target directory")
		res.Failed++
		return res
	}
	if len(entries) == 0 {
		log.Info().Str("dir", oldDir).Msg("source directory is empty, nothing to copy")
		res.EmptyDirs++
		return res
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return res
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		newName, ok := RenameFile(name, oldPrefix, newPrefix)
		if !ok {
			log.Info().Str("file", name).Msg("skipping file without the old id prefix")
			res.Skipped++
			continue
		}
		if err := r.copyFn()(filepath.Join(oldDir, name), filepath.Join(newDir, newName)); err != nil {
			log.Error().Err(err).Str("file", name).Msg("copy failed")
			res.Failed++
			continue
		}
		log.Debug().Str("file", name).Str("to", newName).Msg("copied")
		res.Copied++
	}
	return res
}

func (r *Renamer) copyFn() func(src, dst string) error {
	if r.copyFunc != nil {
		return r.copyFunc
	}
	return copyFile
}

// RenameFile replaces the oldPrefix at the start of name's base with
// newPrefix. The prefix must not be followed by another digit, so "1000_n1"
// does not match prefix "100".
func RenameFile(name, oldPrefix, newPrefix string) (string, bool) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if !strings.HasPrefix(base, oldPrefix) {
		return "", false
	}
	suffix := base[len(oldPrefix):]
	if suffix != "" && suffix[0] >= '0' && suffix[0] <= '9' {
		return "", false
	}
	return newPrefix + suffix + ext, true
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
