package store

// Store names are versioned so a new deployment writes to fresh stores and
// activation can delete every store belonging to a prior version.

const (
	staticPrefix  = "costshub-static-"
	dynamicPrefix = "costshub-dynamic-"
	apiPrefix     = "costshub-api-"

	// OfflineActions is the queue store for pending offline actions. It is
	// not versioned and is never garbage collected on activation.
	OfflineActions = "costshub-offline-actions"
)

// Names holds the full store names for one cache version.
type Names struct {
	Static  string
	Dynamic string
	API     string
}

// NamesFor returns the three store names for the given cache version.
func NamesFor(version string) Names {
	return Names{
		Static:  staticPrefix + version,
		Dynamic: dynamicPrefix + version,
		API:     apiPrefix + version,
	}
}

// All returns the three versioned names in a slice.
func (n Names) All() []string {
	return []string{n.Static, n.Dynamic, n.API}
}

// Current reports whether name belongs to the current version's set or is the
// offline action queue, i.e. whether it must survive activation.
func (n Names) Current(name string) bool {
	return name == n.Static || name == n.Dynamic || name == n.API || name == OfflineActions
}
