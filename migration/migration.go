package migration

import (
	"database/sql"
	"github.com/pkg/errors"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidMigrationName = errors.New("invalid migration name")
var ErrUnsupportedExtension = errors.New("unsupported migration file extension")
var ErrDuplicateLabel = errors.New("duplicate migration label")

// DefaultDatabase is the alias of the database that files placed directly
// in the migrations folder are applied to
const DefaultDatabase = "default"

const (
	SQLExtension    = ".sql"
	ScriptExtension = ".go"
)

type Kind string

const (
	KindSQL    Kind = "sql"
	KindScript Kind = "script"
)

var nameRegexp = regexp.MustCompile(`^(?P<sequence>\d+)(?P<suffix>.*)$`)

type (
	File struct {
		Sequence uint64
		Suffix   string
		Kind     Kind
		Database string
		Path     string
	}

	Record struct {
		ID          int64          `db:"id"`
		Label       string         `db:"migration_label"`
		DateCreated time.Time      `db:"date_created"`
		Content     string         `db:"content"`
		Revision    sql.NullString `db:"scm_version"`
	}
)

// Label is the base name of the migration file, it is the key
// under which the migration is recorded once applied
func (f File) Label() string {
	return filepath.Base(f.Path)
}

// NewFile - parses the file name at path and creates a migration file
// bound to the given database alias
func NewFile(database, path string) (File, error) {
	seq, suffix, kind, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return File{}, err
	}

	return File{
		Sequence: seq,
		Suffix:   suffix,
		Kind:     kind,
		Database: database,
		Path:     path,
	}, nil
}

// ParseFilename splits a migration file name into its sequence number,
// the free-form remainder and the kind derived from the extension
func ParseFilename(name string) (uint64, string, Kind, error) {
	ext := filepath.Ext(name)

	var kind Kind
	switch strings.ToLower(ext) {
	case SQLExtension:
		kind = KindSQL
	case ScriptExtension:
		kind = KindScript
	default:
		return 0, "", "", errors.Wrapf(ErrUnsupportedExtension, "[%s] in file [%s]", ext, name)
	}

	base := strings.TrimSuffix(name, ext)
	matches := nameRegexp.FindStringSubmatch(base)
	if len(matches) < 3 {
		return 0, "", "", errors.Wrapf(ErrInvalidMigrationName, "file [%s] must start with a number", name)
	}

	seq, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return 0, "", "", errors.Wrapf(ErrInvalidMigrationName, "file [%s] sequence number: %s", name, err.Error())
	}

	return seq, matches[2], kind, nil
}

type Files []File

func (fs Files) Labels() (result []string) {
	for i := range fs {
		result = append(result, fs[i].Label())
	}
	return result
}

func (fs Files) Len() int {
	return len(fs)
}

func (fs Files) Less(i, j int) bool {
	return fs[i].Label() < fs[j].Label()
}

func (fs Files) Swap(i, j int) {
	fs[i], fs[j] = fs[j], fs[i]
}

// Find - looks up a file by its label
func (fs Files) Find(label string) (File, bool) {
	for i := range fs {
		if fs[i].Label() == label {
			return fs[i], true
		}
	}

	return File{}, false
}

// Sorted returns a copy ordered by label
func (fs Files) Sorted() Files {
	result := make(Files, len(fs))
	copy(result, fs)
	sort.Sort(result)
	return result
}

type Records []Record

func (rs Records) Labels() (result []string) {
	for i := range rs {
		result = append(result, rs[i].Label)
	}
	return result
}
