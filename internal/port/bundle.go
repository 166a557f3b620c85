package port

// BundleInfo describes what is present in one bundle directory.
type BundleInfo struct {
	ID          string
	Dir         string
	HasPrimary  bool
	HasCover    bool
	HasMetadata bool
	PrimarySize int64
	TotalBytes  int64
}

// Complete reports whether all three bundle files are present.
func (b BundleInfo) Complete() bool {
	return b.HasPrimary && b.HasCover && b.HasMetadata
}

// BundleFS is the filesystem substrate for the commit protocol.
// Downloads land in a staging area outside the target tree; only a
// fully populated staged bundle is promoted, so an external reader
// never observes a partially written target directory.
type BundleFS interface {
	// Root returns the storage root directory.
	Root() string

	// StagingPath returns the staging path for one of an item's files.
	// The staging directory is created if absent.
	StagingPath(itemID, filename string) (string, error)

	// BundleDir returns the final directory for an item's bundle.
	BundleDir(itemID string) string

	// WriteMetadata writes the item's metadata record into staging.
	WriteMetadata(itemID string, metadata map[string]any) error

	// PromoteBundle atomically moves every staged file of the item into
	// its final bundle directory.
	PromoteBundle(itemID string) error

	// RemoveStaging deletes the item's staging directory and anything
	// in it.
	RemoveStaging(itemID string) error

	// RemoveBundle deletes the item's final bundle directory. Used when
	// a commit fails partway so no half-populated directory survives.
	RemoveBundle(itemID string) error

	// InspectBundle reports which bundle files exist non-empty.
	InspectBundle(itemID string) (BundleInfo, error)

	// ScanBundles walks the storage root and reports every bundle
	// directory found.
	ScanBundles() ([]BundleInfo, error)

	// CleanupIncomplete removes bundle directories that are not
	// complete, plus leftover staging directories. Returns the number
	// of directories removed and the bytes freed.
	CleanupIncomplete() (int, int64, error)
}
