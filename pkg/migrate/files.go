package migrate

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const versionLayout = "20060102150405"

var (
	migrationNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)
	slugInvalidRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// migrationFile is one parsed entry of the migrations directory.
type migrationFile struct {
	Version int64
	Slug    string
	Name    string
}

func parseMigrationName(name string) (migrationFile, error) {
	m := migrationNameRe.FindStringSubmatch(name)
	if m == nil {
		return migrationFile{}, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}
	version, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return migrationFile{}, fmt.Errorf("migration %q: %w", name, err)
	}
	return migrationFile{Version: version, Slug: m[2], Name: name}, nil
}

// slugify lowercases name and collapses every run of other characters to one underscore.
func slugify(name string) string {
	slug := slugInvalidRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

// listMigrations returns the SQL migrations of dir in version order. Go migrations are
// rejected because the binary only embeds SQL files.
func listMigrations(dir string) ([]migrationFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	files := make([]migrationFile, 0, len(entries))
	byVersion := make(map[int64]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".go"):
			return nil, fmt.Errorf("go migration %q is not supported; write SQL instead", name)
		case !strings.HasSuffix(name, ".sql"):
			continue
		}
		file, err := parseMigrationName(name)
		if err != nil {
			return nil, err
		}
		if prev, ok := byVersion[file.Version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", file.Version, prev, name)
		}
		byVersion[file.Version] = name
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}
