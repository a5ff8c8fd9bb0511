package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every SQL migration in dir: filename, unique version and goose
// annotations.
func ValidateDir(dir string) error {
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := validateFile(filepath.Join(dir, file.Name)); err != nil {
			return fmt.Errorf("migration %q: %w", file.Name, err)
		}
	}
	return nil
}

// validateFile requires exactly one Up section followed by one Down section, with
// StatementBegin/StatementEnd pairs that open and close inside the same section.
func validateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var (
		section string
		ups     int
		downs   int
		open    bool
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, annotationUp):
			if open {
				return fmt.Errorf("up section starts inside an open statement")
			}
			if downs > 0 {
				return fmt.Errorf("up section must come before down")
			}
			ups++
			section = "up"
		case strings.HasPrefix(line, annotationDown):
			if open {
				return fmt.Errorf("down section starts inside an open statement")
			}
			downs++
			section = "down"
		case strings.HasPrefix(line, annotationBegin):
			if section == "" {
				return fmt.Errorf("StatementBegin outside Up/Down")
			}
			if open {
				return fmt.Errorf("nested StatementBegin")
			}
			open = true
		case strings.HasPrefix(line, annotationEnd):
			if !open {
				return fmt.Errorf("StatementEnd without StatementBegin")
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case ups != 1:
		return fmt.Errorf("expected one %q, found %d", annotationUp, ups)
	case downs != 1:
		return fmt.Errorf("expected one %q, found %d", annotationDown, downs)
	case open:
		return fmt.Errorf("unbalanced StatementBegin/StatementEnd")
	}
	return nil
}
