// Package rename copies product image directories from an old numbering
// scheme to a new one, renaming each file's numeric prefix on the way.
package rename

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoPairs is returned when a mapping table yields no usable rows.
var ErrNoPairs = errors.New("rename: mapping has no usable rows")

// Pair maps an old product ID to its new one.
type Pair struct {
	OldID int
	NewID int
}

// LoadMapping reads and parses the mapping file at path. A missing file,
// blank content or a table without usable rows is an error.
func LoadMapping(path string, log zerolog.Logger) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rename: read mapping: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("rename: mapping %s is empty", path)
	}
	return ParseMapping(bytes.NewReader(data), log)
}

// ParseMapping reads "oldId,newId" rows. Either ',' or ';' separates the
// columns; the separator is taken from the first non-blank line, and a row
// that only splits on the other one is accepted as well. A first
// row that is not numeric is treated as a header. Later rows that are
// blank or not numeric are skipped with a warning.
func ParseMapping(r io.Reader, log zerolog.Logger) ([]Pair, error) {
	br := bufio.NewReader(r)
	delim, err := sniffDelimiter(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	other := ","
	if delim == ',' {
		other = ";"
	}

	var pairs []Pair
	first := true
	mixedLogged := false
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			log.Warn().Int("line", perr.Line).Err(perr.Err).Msg("skipping unreadable row")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rename: read mapping: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if first && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}
		if len(rec) == 1 && strings.Contains(rec[0], other) {
			rec = strings.Split(rec[0], other)
			if !mixedLogged {
				log.Warn().Int("line", line).Str("separator", other).Msg("mapping mixes ',' and ';' separators")
				mixedLogged = true
			}
		}

		oldRaw, newRaw := field(rec, 0), field(rec, 1)
		oldID, oldErr := strconv.Atoi(oldRaw)
		newID, newErr := strconv.Atoi(newRaw)
		switch {
		case oldErr == nil && newErr == nil:
			pairs = append(pairs, Pair{OldID: oldID, NewID: newID})
		case first:
			log.Warn().Strs("row", rec).Msg("skipping header row")
		case oldRaw == "" || newRaw == "":
			log.Warn().Int("line", line).Strs("row", rec).Msg("skipping row with empty values")
		default:
			log.Warn().Int("line", line).Strs("row", rec).Msg("skipping row with non-numeric values")
		}
		first = false
	}

	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	return pairs, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// sniffDelimiter peeks at the first non-blank line and returns ';' if it
// contains one, ',' otherwise.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	for n := 512; ; n *= 2 {
		buf, err := br.Peek(n)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return 0, fmt.Errorf("rename: read mapping: %w", err)
		}
		text := strings.TrimLeft(string(buf), " \t\r\n\ufeff")
		if i := strings.IndexByte(text, '\n'); i >= 0 || err != nil || n >= br.Size() {
			if i >= 0 {
				text = text[:i]
			}
			if strings.ContainsRune(text, ';') {
				return ';', nil
			}
			return ',', nil
		}
	}
}
