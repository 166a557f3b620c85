package filesystem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mediaforge/media-archiver/internal/domain"
	"github.com/mediaforge/media-archiver/internal/port"
)

const stagingDirName = ".staging"

// Bundle file suffixes. Every bundle file uses the item identifier as
// its filename stem.
const (
	PrimarySuffix  = ".mp4"
	CoverSuffix    = ".jpg"
	MetadataSuffix = ".json"
)

// Manager implements port.BundleFS on the local filesystem. Downloads
// are staged under <root>/.staging/<id>/ and promoted into <root>/<id>/
// only once the full bundle is present, so readers of the target tree
// never see a partial bundle.
type Manager struct {
	rootDir string
}

var _ port.BundleFS = (*Manager)(nil)

// NewManager creates a bundle filesystem rooted at rootDir.
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Join(rootDir, stagingDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Manager{rootDir: rootDir}, nil
}

// Root returns the storage root directory.
func (m *Manager) Root() string {
	return m.rootDir
}

// BundleDir returns the final directory for an item's bundle.
func (m *Manager) BundleDir(itemID string) string {
	return filepath.Join(m.rootDir, itemID)
}

func (m *Manager) stagingDir(itemID string) string {
	return filepath.Join(m.rootDir, stagingDirName, itemID)
}

// StagingPath returns the staging path for one of an item's files,
// creating the staging directory if needed.
func (m *Manager) StagingPath(itemID, filename string) (string, error) {
	dir := m.stagingDir(itemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.FSError("mkdir", dir, err)
	}
	return filepath.Join(dir, filename), nil
}

// WriteMetadata writes the item's metadata record into staging as
// pretty-printed JSON. Nil values are dropped from the mapping.
func (m *Manager) WriteMetadata(itemID string, metadata map[string]any) error {
	clean := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if v != nil {
			clean[k] = v
		}
	}

	data, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", itemID, err)
	}

	path, err := m.StagingPath(itemID, itemID+MetadataSuffix)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.FSError("write", path, err)
	}
	return nil
}

// PromoteBundle moves every staged file of the item into its final
// bundle directory and removes the staging directory.
func (m *Manager) PromoteBundle(itemID string) error {
	staging := m.stagingDir(itemID)
	entries, err := os.ReadDir(staging)
	if err != nil {
		return domain.FSError("read staging", staging, err)
	}

	target := m.BundleDir(itemID)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return domain.FSError("mkdir", target, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(staging, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return domain.FSError("rename", dst, err)
		}
	}

	if err := os.RemoveAll(staging); err != nil {
		return domain.FSError("remove staging", staging, err)
	}
	return nil
}

// RemoveStaging deletes the item's staging directory.
func (m *Manager) RemoveStaging(itemID string) error {
	staging := m.stagingDir(itemID)
	if err := os.RemoveAll(staging); err != nil {
		return domain.FSError("remove staging", staging, err)
	}
	return nil
}

// RemoveBundle deletes the item's final bundle directory.
func (m *Manager) RemoveBundle(itemID string) error {
	dir := m.BundleDir(itemID)
	if err := os.RemoveAll(dir); err != nil {
		return domain.FSError("remove bundle", dir, err)
	}
	return nil
}

// InspectBundle reports which bundle files exist non-empty.
func (m *Manager) InspectBundle(itemID string) (port.BundleInfo, error) {
	info := port.BundleInfo{ID: itemID, Dir: m.BundleDir(itemID)}

	stat := func(suffix string) (int64, bool) {
		fi, err := os.Stat(filepath.Join(info.Dir, itemID+suffix))
		if err != nil || fi.Size() == 0 {
			return 0, false
		}
		return fi.Size(), true
	}

	var size int64
	if size, info.HasPrimary = stat(PrimarySuffix); info.HasPrimary {
		info.PrimarySize = size
		info.TotalBytes += size
	}
	if size, info.HasCover = stat(CoverSuffix); info.HasCover {
		info.TotalBytes += size
	}
	if size, info.HasMetadata = stat(MetadataSuffix); info.HasMetadata {
		info.TotalBytes += size
	}
	return info, nil
}

// ScanBundles walks the storage root and reports every bundle
// directory found. The staging area and loose files (database, lock
// file) are skipped.
func (m *Manager) ScanBundles() ([]port.BundleInfo, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, domain.FSError("read root", m.rootDir, err)
	}

	var bundles []port.BundleInfo
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == stagingDirName {
			continue
		}
		info, err := m.InspectBundle(entry.Name())
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, info)
	}
	return bundles, nil
}

// CleanupIncomplete removes bundle directories that are not complete,
// plus leftover staging directories. Safe to run only while no run is
// active (the CLI holds the instance lock for both).
func (m *Manager) CleanupIncomplete() (int, int64, error) {
	bundles, err := m.ScanBundles()
	if err != nil {
		return 0, 0, err
	}

	removed := 0
	var freed int64
	for _, b := range bundles {
		if b.Complete() {
			continue
		}
		freed += dirSize(b.Dir)
		if err := os.RemoveAll(b.Dir); err != nil {
			return removed, freed, domain.FSError("remove bundle", b.Dir, err)
		}
		removed++
	}

	stagingRoot := filepath.Join(m.rootDir, stagingDirName)
	entries, err := os.ReadDir(stagingRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return removed, freed, nil
		}
		return removed, freed, domain.FSError("read staging", stagingRoot, err)
	}
	for _, entry := range entries {
		dir := filepath.Join(stagingRoot, entry.Name())
		freed += dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			return removed, freed, domain.FSError("remove staging", dir, err)
		}
		removed++
	}
	return removed, freed, nil
}

func dirSize(dir string) int64 {
	var size int64
	filepath.Walk(dir, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size
}
