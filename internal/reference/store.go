// Package reference loads versioned reference packs from disk.
//
// A pack is a directory under the base path named by its version, holding
// ranges.json (keyed "{age_band}:{sex}:{metric}") and metadata.json. Packs
// are never modified in place, so parsed packs are memoised per version
// without invalidation.
package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/domain"
)

const (
	rangesFile   = "ranges.json"
	metadataFile = "metadata.json"

	// DefaultFallbackVersion is used when nothing is on disk.
	DefaultFallbackVersion = "1.0.0"
)

// Pack is one immutable reference-pack version.
type Pack struct {
	Version  string
	Ranges   map[string]domain.ReferenceRange
	Metadata map[string]any
}

// Config controls where packs are found and how many are kept parsed.
type Config struct {
	BasePath        string
	Version         string
	FallbackVersion string
	CacheSize       int
}

// Store resolves reference ranges by version.
type Store struct {
	basePath string
	pinned   string
	fallback string
	packs    *lru.Cache[string, *Pack]
	logger   *logrus.Logger
}

// NewStore creates a reference store rooted at cfg.BasePath.
func NewStore(cfg Config, logger *logrus.Logger) (*Store, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}
	if cfg.FallbackVersion == "" {
		cfg.FallbackVersion = DefaultFallbackVersion
	}

	packs, err := lru.New[string, *Pack](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference cache: %w", err)
	}

	return &Store{
		basePath: cfg.BasePath,
		pinned:   cfg.Version,
		fallback: cfg.FallbackVersion,
		packs:    packs,
		logger:   logger,
	}, nil
}

// Key builds the ranges.json key for a row.
func Key(ageBand string, sex domain.Sex, metric string) string {
	return fmt.Sprintf("%s:%s:%s", ageBand, sex, metric)
}

// Versions lists the pack directories under the base path in ascending order.
// A missing base path yields an empty list.
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.WithField("base_path", s.basePath).Warn("Reference base path does not exist")
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list reference versions: %w", err)
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// ActiveVersion resolves the version to use. An explicit request wins when
// present on disk, then the configured pin, then the lexicographically
// greatest directory, then the fallback identifier.
func (s *Store) ActiveVersion(requested string) string {
	versions, err := s.Versions()
	if err != nil {
		s.logger.WithError(err).Error("Failed to resolve reference version")
	}

	for _, candidate := range []string{requested, s.pinned} {
		if candidate != "" && contains(versions, candidate) {
			return candidate
		}
	}
	if len(versions) > 0 {
		return versions[len(versions)-1]
	}
	if s.pinned != "" {
		return s.pinned
	}
	return s.fallback
}

// Pack returns the parsed pack for a version. Missing files produce empty
// tables; a version that is not a plain directory name is rejected.
func (s *Store) Pack(version string) (*Pack, error) {
	if version == "" || strings.ContainsAny(version, `/\`) || version == "." || version == ".." {
		return nil, fmt.Errorf("invalid reference version %q", version)
	}

	if pack, ok := s.packs.Get(version); ok {
		return pack, nil
	}

	pack := &Pack{
		Version:  version,
		Ranges:   s.loadRanges(version),
		Metadata: s.loadMetadata(version),
	}
	s.packs.Add(version, pack)
	return pack, nil
}

// Ranges returns every row of a version. The map must not be modified.
func (s *Store) Ranges(version string) (map[string]domain.ReferenceRange, error) {
	pack, err := s.Pack(version)
	if err != nil {
		return nil, err
	}
	return pack.Ranges, nil
}

// Filter returns the rows of a version matching an age band and sex.
// Empty arguments match everything.
func (s *Store) Filter(version, ageBand string, sex domain.Sex) (map[string]domain.ReferenceRange, error) {
	ranges, err := s.Ranges(version)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.ReferenceRange)
	for key, r := range ranges {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if ageBand != "" && parts[0] != ageBand {
			continue
		}
		if sex != "" && parts[1] != string(sex) {
			continue
		}
		out[key] = r
	}
	return out, nil
}

// Metadata returns the provenance document of a version verbatim.
func (s *Store) Metadata(version string) (map[string]any, error) {
	pack, err := s.Pack(version)
	if err != nil {
		return nil, err
	}
	return pack.Metadata, nil
}

// Lookup returns a single row.
func (s *Store) Lookup(version, ageBand string, sex domain.Sex, metric string) (domain.ReferenceRange, bool) {
	pack, err := s.Pack(version)
	if err != nil {
		return domain.ReferenceRange{}, false
	}
	r, ok := pack.Ranges[Key(ageBand, sex, metric)]
	return r, ok
}

func (s *Store) loadRanges(version string) map[string]domain.ReferenceRange {
	path := filepath.Join(s.basePath, version, rangesFile)
	ranges := make(map[string]domain.ReferenceRange)

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"version": version,
			"path":    path,
		}).WithError(err).Error("Failed to read reference ranges")
		return ranges
	}
	if err := json.Unmarshal(data, &ranges); err != nil {
		s.logger.WithFields(logrus.Fields{
			"version": version,
			"path":    path,
		}).WithError(err).Error("Failed to parse reference ranges")
		return make(map[string]domain.ReferenceRange)
	}
	return ranges
}

func (s *Store) loadMetadata(version string) map[string]any {
	path := filepath.Join(s.basePath, version, metadataFile)
	meta := make(map[string]any)

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"version": version,
			"path":    path,
		}).Warn("Reference metadata not found")
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.WithFields(logrus.Fields{
			"version": version,
			"path":    path,
		}).WithError(err).Error("Failed to parse reference metadata")
		return make(map[string]any)
	}
	return meta
}

func contains(list []string, v string) bool {
	i := sort.SearchStrings(list, v)
	return i < len(list) && list[i] == v
}
