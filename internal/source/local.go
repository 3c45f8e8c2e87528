package source

import (
	"context"
	"github.com/denismitr/upgradedb/internal/logger"
	"github.com/denismitr/upgradedb/migration"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultMigrationsFolder = "./migrations"

type LocalFileSource struct {
	folder string
	lg     logger.Logger
}

var _ Selector = (*LocalFileSource)(nil)

func NewLocalFSSource(folder string, lg logger.Logger) *LocalFileSource {
	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &LocalFileSource{folder: folder, lg: lg}
}

// Select scans the folder one level deep. Files in the folder itself belong to
// the default database, files of every direct subfolder belong to the database
// the subfolder is named after
func (lfs *LocalFileSource) Select(ctx context.Context, f Filter) (map[string]migration.Files, error) {
	root, err := filepath.Abs(lfs.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve migrations folder [%s]", lfs.folder)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		lfs.lg.Warnf("could not read migrations folder [%s]: %s", root, err.Error())
		return map[string]migration.Files{}, nil
	}

	result := make(map[string]migration.Files)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if isHidden(entry.Name()) {
			continue
		}

		path := filepath.Join(root, entry.Name())

		dir, err := isDir(path, entry)
		if err != nil {
			lfs.lg.Warnf("skipping [%s]: %s", path, err.Error())
			continue
		}

		if dir {
			database := entry.Name()
			if !f.allows(database) {
				continue
			}

			files, err := lfs.readDatabaseFolder(database, path)
			if err != nil {
				return nil, err
			}

			result[database] = append(result[database], files...)
			continue
		}

		if !f.allows(migration.DefaultDatabase) {
			continue
		}

		file, err := migration.NewFile(migration.DefaultDatabase, path)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning [%s]", root)
		}

		result[migration.DefaultDatabase] = append(result[migration.DefaultDatabase], file)
	}

	for database := range result {
		sort.Sort(result[database])
		if len(result[database]) == 0 {
			delete(result, database)
			continue
		}

		if err := checkUniqueLabels(database, result[database]); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (lfs *LocalFileSource) readDatabaseFolder(database, path string) (migration.Files, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		lfs.lg.Warnf("could not read migrations of database [%s] in [%s]: %s", database, path, err.Error())
		return nil, nil
	}

	var files migration.Files

	for _, entry := range entries {
		if isHidden(entry.Name()) {
			continue
		}

		filePath := filepath.Join(path, entry.Name())

		dir, err := isDir(filePath, entry)
		if err != nil {
			lfs.lg.Warnf("skipping [%s]: %s", filePath, err.Error())
			continue
		}

		if dir {
			continue
		}

		file, err := migration.NewFile(database, filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning [%s]", path)
		}

		files = append(files, file)
	}

	return files, nil
}

// FileList returns the absolute path of every migration file under folder
func FileList(ctx context.Context, folder string, lg logger.Logger) ([]string, error) {
	selected, err := NewLocalFSSource(folder, lg).Select(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	var result []string
	for _, files := range selected {
		for i := range files {
			result = append(result, files[i].Path)
		}
	}

	sort.Strings(result)

	return result, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isDir follows symbolic links, a dangling link is an error
func isDir(path string, entry os.DirEntry) (bool, error) {
	if entry.Type()&os.ModeSymlink == 0 {
		return entry.IsDir(), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrap(err, "could not resolve symbolic link")
	}

	return info.IsDir(), nil
}

// checkUniqueLabels expects files sorted by label. A root file and a file
// of the default folder sharing a name would otherwise shadow each other
func checkUniqueLabels(database string, files migration.Files) error {
	for i := 1; i < len(files); i++ {
		if files[i].Label() == files[i-1].Label() {
			return errors.Wrapf(
				migration.ErrDuplicateLabel,
				"database [%s] has [%s] at [%s] and [%s]",
				database, files[i].Label(), files[i-1].Path, files[i].Path,
			)
		}
	}

	return nil
}
