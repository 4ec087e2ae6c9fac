// Package resource implements the universal persisted unit shared by every
// versioned object in the store: corpora, dictionary entries, and the
// search indices built on top of them.
package resource

import (
	"sort"
	"time"
)

// Type discriminates the tagged variants of Resource. There is no runtime
// inheritance: a small capability registry (see registry.go) maps Type to
// its storage policy instead of dispatching through an interface hierarchy.
type Type string

const (
	TypeCorpus     Type = "corpus"
	TypeDictionary Type = "dictionary"
	TypeSearch     Type = "search"
	TypeTrie       Type = "trie"
	TypeSemantic   Type = "semantic"
	TypeLanguage   Type = "language"
	TypeLiterature Type = "literature"
)

// Namespace partitions storage into isolated families. Cache and store keys
// are always prefixed by namespace so a lookup can never cross families.
type Namespace string

const (
	NamespaceDictionary Namespace = "dictionary"
	NamespaceCorpus     Namespace = "corpus"
	NamespaceSemantic   Namespace = "semantic"
	NamespaceLiterature Namespace = "literature"
	NamespaceDefault    Namespace = "default"
)

// StorageMode records whether a Version's payload is self-contained or a
// diff against a prior snapshot.
type StorageMode string

const (
	StorageSnapshot StorageMode = "snapshot"
	StorageDelta    StorageMode = "delta"
)

// VersionInfo is one link in a resource's version chain.
type VersionInfo struct {
	Version         string      `msgpack:"version"`
	IsLatest        bool        `msgpack:"is_latest"`
	PreviousVersion *string     `msgpack:"previous_version,omitempty"`
	NextVersion     *string     `msgpack:"next_version,omitempty"`
	StorageMode     StorageMode `msgpack:"storage_mode"`
	DeltaBaseID     *string     `msgpack:"delta_base_id,omitempty"`
	DataHash        string      `msgpack:"data_hash"`
	CreatedAt       time.Time   `msgpack:"created_at"`
}

// Resource is the universal persisted unit. ContentHash is always computed
// over the logical content. ContentInline and ContentLocation are not
// populated by version.Manager, which keeps the content in its own chain
// record; both stay empty on the resources it returns.
type Resource struct {
	ResourceID      string              `msgpack:"resource_id"`
	ResourceType    Type                `msgpack:"resource_type"`
	Namespace       Namespace           `msgpack:"namespace"`
	VersionInfo     VersionInfo         `msgpack:"version_info"`
	ContentHash     string              `msgpack:"content_hash"`
	ContentInline   []byte              `msgpack:"content_inline,omitempty"`
	ContentLocation string              `msgpack:"content_location,omitempty"`
	Metadata        map[string]any      `msgpack:"metadata,omitempty"`
	Tags            map[string]struct{} `msgpack:"-"`
}

// HasInlineContent reports whether the payload is carried inline rather
// than referenced externally.
func (r *Resource) HasInlineContent() bool {
	return r.ContentLocation == "" && r.ContentInline != nil
}

// TagList returns Tags as a sorted slice for serialization and display.
func (r *Resource) TagList() []string {
	if len(r.Tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Tags))
	for t := range r.Tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
