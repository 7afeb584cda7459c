package rating

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Set is a rating sequence together with the external identifiers of the
// objects and users its dense indices stand for.
type Set struct {
	Ratings []Rating `json:"ratings" yaml:"ratings"`
	Objects []string `json:"objects" yaml:"objects"`
	Users   []string `json:"users" yaml:"users"`
}

// indexer assigns dense indices to identifiers in first-seen order.
type indexer struct {
	ids   map[string]int
	names []string
}

func newIndexer() *indexer {
	return &indexer{ids: make(map[string]int)}
}

func (x *indexer) index(name string) int {
	if i, ok := x.ids[name]; ok {
		return i
	}
	i := len(x.names)
	x.ids[name] = i
	x.names = append(x.names, name)
	return i
}

// ReadCSV reads object,user,weight records. Blank lines and lines starting
// with # are skipped. Object and user identifiers are arbitrary strings.
func ReadCSV(r io.Reader) (*Set, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	objects := newIndexer()
	users := newIndexer()
	set := &Set{}

	count := 0
	fields, err := reader.Read()
	for ; err == nil; fields, err = reader.Read() {
		count++
		if len(fields) < 3 {
			return nil, errors.Errorf("rating CSV record #%d: expected object,user,weight, got %d fields", count, len(fields))
		}
		object := strings.TrimSpace(fields[0])
		user := strings.TrimSpace(fields[1])
		if object == "" || user == "" {
			return nil, errors.Errorf("rating CSV record #%d: empty object or user", count)
		}
		w, parseErr := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if parseErr != nil {
			return nil, errors.Wrapf(parseErr, "rating CSV record #%d: invalid weight %#v", count, fields[2])
		}
		set.Ratings = append(set.Ratings, Rating{
			Object: objects.index(object),
			User:   users.index(user),
			Weight: w,
		})
	}
	if err != io.EOF {
		return nil, errors.Wrapf(err, "cannot read rating CSV record #%d", count+1)
	}

	set.Objects = objects.names
	set.Users = users.names
	return set, nil
}

// WriteCSV writes the set in the format ReadCSV accepts.
func WriteCSV(w io.Writer, s *Set) error {
	if s == nil {
		return errors.New("rating set required")
	}
	if err := Validate(s.Ratings, len(s.Objects), len(s.Users)); err != nil {
		return errors.Wrap(err, "invalid rating set")
	}

	cw := csv.NewWriter(w)
	for _, r := range s.Ratings {
		rec := []string{
			s.Objects[r.Object],
			s.Users[r.User],
			strconv.FormatFloat(r.Weight, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "error writing rating record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "error flushing rating records")
}
