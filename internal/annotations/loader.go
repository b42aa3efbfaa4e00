package annotations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/banshee-data/agreement.report/internal/monitoring"
)

// Loader builds a Corpus from rating files on fsys laid out as
// round<R>/group<G>/<rater file>.
type Loader struct {
	FS     fs.FS
	Scheme Scheme
}

// NewLoader returns a loader reading from fsys.
func NewLoader(fsys fs.FS, s Scheme) *Loader {
	return &Loader{FS: fsys, Scheme: s}
}

// GroupDir is the directory holding one group's rater files for a round.
func GroupDir(round, group int) string {
	return fmt.Sprintf("round%d/group%d", round, group)
}

// Load reads every round and group of the scheme. Groups without rating files
// are skipped; any malformed file aborts the whole load.
func (l *Loader) Load(ctx context.Context) (*Corpus, error) {
	if err := l.Scheme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheme: %w", err)
	}
	corpus := NewCorpus(l.Scheme)
	for round := 1; round <= l.Scheme.Rounds; round++ {
		for group := 1; group <= l.Scheme.Groups; group++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			matrices, err := l.LoadGroup(round, group)
			if errors.Is(err, ErrNoRatingFiles) {
				monitoring.Debugf("round %d group %d: no rating files, skipping", round, group)
				monitoring.ObserveSkippedGroup()
				continue
			}
			if err != nil {
				return nil, err
			}
			for _, category := range l.Scheme.Categories {
				k := Key{Round: round, Group: group, Category: category}
				if err := corpus.Add(k, matrices[category]); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
				}
			}
		}
	}
	return corpus, nil
}

// LoadGroup reads one (round, group) and returns a matrix per category. It
// returns an error wrapping ErrNoRatingFiles when the directory is missing or
// empty, and a MalformedInputError when it holds files but none it can read.
//
// Each file is capped at Scheme.ItemsPerRater rows before anything else; raters
// whose columns still differ in length are then aligned to the shortest one.
func (l *Loader) LoadGroup(round, group int) (map[string]*RatingMatrix, error) {
	files, err := l.groupFiles(round, group)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("round %d group %d: %w", round, group, ErrNoRatingFiles)
	}

	tables := make([][][]string, len(files))
	for i, name := range files {
		rows, err := l.readTable(name)
		if err != nil {
			return nil, err
		}
		tables[i] = rows
	}

	out := make(map[string]*RatingMatrix, len(l.Scheme.Categories))
	for _, category := range l.Scheme.Categories {
		raters := make([]RaterSeries, len(files))
		for i, name := range files {
			ratings, err := extractColumn(tables[i], category, l.Scheme.ItemsPerRater, l.Scheme)
			if err != nil {
				var mie *MalformedInputError
				if errors.As(err, &mie) {
					mie.Path = name
				}
				return nil, err
			}
			raters[i] = RaterSeries{
				Rater:   RaterID{Group: group, Index: i},
				Source:  path.Base(name),
				Ratings: ratings,
			}
		}
		if err := alignRaters(raters); err != nil {
			return nil, &MalformedInputError{
				Path:     GroupDir(round, group),
				Category: category,
				Err:      err,
			}
		}
		m, err := NewRatingMatrix(raters)
		if err != nil {
			return nil, &MalformedInputError{Path: GroupDir(round, group), Category: category, Err: err}
		}
		out[category] = m
	}
	return out, nil
}

// alignRaters truncates every series to the shortest common length.
func alignRaters(raters []RaterSeries) error {
	common := len(raters[0].Ratings)
	lengths := make([]int, len(raters))
	for i, r := range raters {
		lengths[i] = len(r.Ratings)
		if lengths[i] < common {
			common = lengths[i]
		}
	}
	if common == 0 {
		return fmt.Errorf("no ratings to compare (lengths %v)", lengths)
	}
	for i := range raters {
		if len(raters[i].Ratings) != common {
			monitoring.Logf("group %d: aligning raters to %d common items (lengths %v)",
				raters[i].Rater.Group, common, lengths)
			break
		}
	}
	for i := range raters {
		raters[i].Ratings = raters[i].Ratings[:common]
	}
	return nil
}

// groupFiles lists readable rating files for a group in name order.
func (l *Loader) groupFiles(round, group int) ([]string, error) {
	dir := GroupDir(round, group)
	matches, err := doublestar.Glob(l.FS, dir+"/*")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files, unsupported []string
	for _, m := range matches {
		base := path.Base(m)
		// Office lock files and dotfiles sit next to the real workbooks.
		if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
			continue
		}
		info, err := fs.Stat(l.FS, m)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		if _, ok := readerFor(base); !ok {
			unsupported = append(unsupported, base)
			continue
		}
		files = append(files, m)
	}
	// A group of only unreadable files is bad data, not an absent group.
	if len(files) == 0 && len(unsupported) > 0 {
		return nil, &MalformedInputError{
			Path: dir,
			Err:  fmt.Errorf("no supported rating files %v (found %v)", SupportedExtensions(), unsupported),
		}
	}
	for _, name := range unsupported {
		monitoring.Debugf("ignoring %s/%s: unsupported extension", dir, name)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) readTable(name string) ([][]string, error) {
	read, _ := readerFor(name)
	f, err := l.FS.Open(name)
	if err != nil {
		return nil, &MalformedInputError{Path: name, Err: err}
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return nil, &MalformedInputError{Path: name, Err: err}
	}
	return rows, nil
}
