package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ai-fitness-planner/internal/fitness"
)

// ErrNotFound is returned when no version of a plan is stored.
var ErrNotFound = errors.New("plan export not found")

// VersionFormat is the layout of version stamps. It has a fixed width, so
// versions sort lexically.
const VersionFormat = "2006-01-02T15:04:05.000000000Z"

// fileVersionFormat is VersionFormat as it appears in file names.
var fileVersionFormat = sanitizeVersion(VersionFormat)

// PlanStore provides file-based storage for plans. Each user's plans are
// versions named <id>_<version>.json; rendered copies of a single plan sit
// next to them as <id>.<ext>.
type PlanStore struct {
	basePath string
	keep     int
}

// NewPlanStore creates a new PlanStore and ensures the base directory exists.
// Save keeps the newest keep versions of each id; zero keeps them all.
func NewPlanStore(basePath string, keep int) (*PlanStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &PlanStore{basePath: basePath, keep: keep}, nil
}

// Version formats t as a version stamp.
func Version(t time.Time) string {
	return t.UTC().Format(VersionFormat)
}

// sanitizeVersion makes the version safe for filenames.
func sanitizeVersion(v string) string {
	return strings.ReplaceAll(v, ":", "-")
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\*?[`) || id == "." || id == ".." {
		return fmt.Errorf("invalid plan id %q", id)
	}
	return nil
}

// getVersionedPath returns the full path for a given plan ID and version.
func (s *PlanStore) getVersionedPath(id, version string) string {
	filename := fmt.Sprintf("%s_%s.json", id, sanitizeVersion(version))
	return filepath.Join(s.basePath, filename)
}

// Save stores a plan as a new version, prunes older versions past the
// store's limit and returns the file path.
func (s *PlanStore) Save(id, version string, plan fitness.Plan) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	filePath := s.getVersionedPath(id, version)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write plan file: %w", err)
	}
	if s.keep > 0 {
		if _, err := s.RemoveStaleVersions(id, s.keep); err != nil {
			return filePath, err
		}
	}
	return filePath, nil
}

// Load retrieves a plan from a specific version file.
func (s *PlanStore) Load(id, version string) (*fitness.Plan, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.getVersionedPath(id, version))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan fitness.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return &plan, nil
}

// Versions lists the stored versions of a plan, oldest first.
func (s *PlanStore) Versions(id string) ([]string, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(s.basePath, id+"_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob plan versions: %w", err)
	}
	versions := make([]string, 0, len(matches))
	for _, m := range matches {
		v := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), id+"_"), ".json")
		// Skip the files of ids that merely start with id + "_".
		if _, err := time.Parse(fileVersionFormat, v); err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// Latest loads the newest stored version of a plan.
func (s *PlanStore) Latest(id string) (*fitness.Plan, error) {
	versions, err := s.Versions(id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(id, versions[len(versions)-1])
}

// RemoveStaleVersions keeps the newest keep versions of id and removes the
// rest. It returns how many files were removed.
func (s *PlanStore) RemoveStaleVersions(id string, keep int) (int, error) {
	versions, err := s.Versions(id)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keep {
		return 0, nil
	}
	stale := versions[:len(versions)-max(keep, 0)]
	for _, v := range stale {
		path := s.getVersionedPath(id, v)
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("failed to remove stale file %s: %w", path, err)
		}
	}
	return len(stale), nil
}

// WriteExport stores a rendered copy of a plan, replacing any previous one,
// and returns its path.
func (s *PlanStore) WriteExport(id, ext string, data []byte) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	filePath := filepath.Join(s.basePath, id+"."+strings.TrimPrefix(ext, "."))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s export: %w", ext, err)
	}
	return filePath, nil
}
