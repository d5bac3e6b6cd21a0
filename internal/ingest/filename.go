// Package ingest loads product images from disk into the catalog database.
//
// The image root holds one directory per article; each file is named
// <article>_<tag><index>.<ext>. Files are parsed, resolved against the
// perfume table and bulk-inserted in fixed-size batches. Progress is
// checkpointed after every batch and every completed directory so an
// interrupted run resumes where it stopped.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Image type tags carried in filenames.
const (
	TagNormal = "n"
	TagZoom   = "z"
	TagSmall  = "s"
)

var (
	imageExtRe  = regexp.MustCompile(`(?i)\.(webp|jpg|jpeg|png)$`)
	imageNameRe = regexp.MustCompile(`(?i)^(\d+)_([nzs])(\d+)\.(webp|jpg|jpeg|png)$`)
)

// ErrNotImage is returned by Parse for files without an accepted image
// extension. Such files are ignored silently.
var ErrNotImage = errors.New("ingest: not an image file")

// RejectedError reports an image file whose name does not follow the
// <article>_<tag><index>.<ext> convention.
type RejectedError struct {
	Filename string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ingest: rejected %s: %s", e.Filename, e.Reason)
}

// Descriptor is the structured form of an image filename.
type Descriptor struct {
	Filename string
	// ArticleText keeps the digits exactly as written, leading zeros included;
	// it is the directory segment of the public URL.
	ArticleText string
	Article     int
	Tag         string
	Index       int
	Ext         string
}

// IsMain reports whether the file is the product's cover image (n1).
func (d Descriptor) IsMain() bool {
	return d.Tag == TagNormal && d.Index == 1
}

// Label is the tag and index as written in alt texts, e.g. "z3".
func (d Descriptor) Label() string {
	return d.Tag + strconv.Itoa(d.Index)
}

// IsImage reports whether name carries an accepted image extension
// (webp, jpg, jpeg, png; case-insensitive).
func IsImage(name string) bool {
	return imageExtRe.MatchString(name)
}

// Parse classifies a filename. It returns ErrNotImage for non-image files
// and a *RejectedError for image files that do not match the naming
// convention.
func Parse(name string) (Descriptor, error) {
	if !IsImage(name) {
		return Descriptor{}, ErrNotImage
	}
	m := imageNameRe.FindStringSubmatch(name)
	if m == nil {
		return Descriptor{}, &RejectedError{Filename: name, Reason: "name does not match <article>_<n|z|s><index>.<ext>"}
	}
	article, err := strconv.Atoi(m[1])
	if err != nil {
		return Descriptor{}, &RejectedError{Filename: name, Reason: "article number out of range"}
	}
	index, err := strconv.Atoi(m[3])
	if err != nil {
		return Descriptor{}, &RejectedError{Filename: name, Reason: "image index out of range"}
	}
	return Descriptor{
		Filename:    name,
		ArticleText: m[1],
		Article:     article,
		Tag:         strings.ToLower(m[2]),
		Index:       index,
		Ext:         strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")),
	}, nil
}
