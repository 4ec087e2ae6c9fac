package version

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/floridify/floridify/pkg/cache"
	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/store"
)

// DefaultSnapshotInterval is the default chain distance between forced
// snapshots.
const DefaultSnapshotInterval = 10

// DefaultInlineThreshold is the content-size (bytes) below which a version
// is stored as a snapshot regardless of chain position, avoiding a diff
// round-trip for payloads too small to benefit from one.
const DefaultInlineThreshold = 256

// SaveConfig parameterizes a single Save call.
type SaveConfig struct {
	Level            Level
	ExplicitVersion  string
	ForceSnapshot    bool
	ForceRebuild     bool
	SnapshotInterval int
}

// chainEntry is the manager's internal bookkeeping record for one version,
// persisted alongside the resource itself.
type chainEntry struct {
	Resource       resource.Resource `json:"resource"`
	ContentPayload any               `json:"content_payload"`
}

// Manager is the version chain manager: save/get/list/delete/
// rollback over resources persisted through pkg/store, with content-hash
// dedup, snapshot/delta storage-mode selection, and chain repair.
type Manager struct {
	mu    sync.Mutex
	store *store.Store
	cache *cache.Cache

	// locks serializes version creation per (resource_id, resource_type)
	// so readers observe a linear history.
	locks map[string]*sync.Mutex
}

// NewManager constructs a Manager over an opened store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s, locks: make(map[string]*sync.Mutex)}
}

// WithCache attaches the two-tier cache so Save/DeleteVersion/DeleteAll
// invalidate stale entries on mutation. Returns m for chaining at
// construction time; a nil cache leaves invalidation a no-op.
func (m *Manager) WithCache(c *cache.Cache) *Manager {
	m.cache = c
	return m
}

func (m *Manager) invalidate(resourceID string, resourceType resource.Type, version string) {
	if m.cache == nil {
		return
	}
	_ = m.cache.InvalidateResource(m.namespace(resourceType), resourceID, version)
}

func chainKey(resourceID string, resourceType resource.Type) string {
	return fmt.Sprintf("%s/%s", resourceType, resourceID)
}

func versionKey(resourceID string, resourceType resource.Type, version string) string {
	return fmt.Sprintf("%s/%s/v/%s", resourceType, resourceID, version)
}

func latestPointerKey(resourceID string, resourceType resource.Type) string {
	return fmt.Sprintf("%s/%s/latest", resourceType, resourceID)
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *Manager) namespace(resourceType resource.Type) resource.Namespace {
	return resource.CapabilityFor(resourceType).Namespace
}

func (m *Manager) putEntry(resourceID string, resourceType resource.Type, version string, entry chainEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.store.Put(m.namespace(resourceType), versionKey(resourceID, resourceType, version), data)
}

func (m *Manager) getEntry(resourceID string, resourceType resource.Type, version string) (chainEntry, error) {
	data, err := m.store.Get(m.namespace(resourceType), versionKey(resourceID, resourceType, version))
	if err != nil {
		return chainEntry{}, err
	}
	var entry chainEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return chainEntry{}, err
	}
	return entry, nil
}

func (m *Manager) setLatestPointer(resourceID string, resourceType resource.Type, version string) error {
	return m.store.Put(m.namespace(resourceType), latestPointerKey(resourceID, resourceType), []byte(version))
}

func (m *Manager) getLatestVersion(resourceID string, resourceType resource.Type) (string, error) {
	data, err := m.store.Get(m.namespace(resourceType), latestPointerKey(resourceID, resourceType))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save implements the save algorithm: hash-dedup, version increment,
// snapshot/delta decision, chain relinking.
func (m *Manager) Save(resourceID string, resourceType resource.Type, namespace resource.Namespace, content any, cfg SaveConfig) (resource.Resource, error) {
	lock := m.lockFor(chainKey(resourceID, resourceType))
	lock.Lock()
	defer lock.Unlock()

	hash, err := resource.ContentHash(content)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("hashing content: %w", err)
	}

	latestVersion, latestErr := m.getLatestVersion(resourceID, resourceType)
	hasLatest := latestErr == nil

	var latestEntry chainEntry
	if hasLatest {
		latestEntry, err = m.getEntry(resourceID, resourceType, latestVersion)
		if err != nil {
			return resource.Resource{}, err
		}
		if !cfg.ForceRebuild && latestEntry.Resource.ContentHash == hash {
			return latestEntry.Resource, nil
		}
	}

	nextVersion := "0.1.0"
	if cfg.ExplicitVersion != "" {
		nextVersion = cfg.ExplicitVersion
	} else if hasLatest {
		level := cfg.Level
		if level == "" {
			level = LevelPatch
		}
		nextVersion, err = IncrementVersion(latestEntry.Resource.VersionInfo.Version, level)
		if err != nil {
			return resource.Resource{}, err
		}
	}

	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}

	position := 0
	if hasLatest {
		count, err := m.chainLength(resourceID, resourceType, latestVersion)
		if err != nil {
			return resource.Resource{}, err
		}
		position = count
	}

	canonical, err := resource.Canonicalize(content)
	if err != nil {
		return resource.Resource{}, err
	}

	deltaEligible := resource.IsDeltaEligible(resourceType)
	wantsSnapshot := !hasLatest ||
		cfg.ForceSnapshot ||
		!deltaEligible ||
		ShouldKeepAsSnapshot(position, interval, false) ||
		len(canonical) < DefaultInlineThreshold

	versionInfo := resource.VersionInfo{
		Version:   nextVersion,
		IsLatest:  true,
		DataHash:  hash,
		CreatedAt: nowFunc(),
	}

	var storedPayload any
	if wantsSnapshot {
		versionInfo.StorageMode = resource.StorageSnapshot
		storedPayload = content
	} else {
		baseVersion, err := m.findLastSnapshotVersion(resourceID, resourceType, latestVersion)
		if err != nil {
			return resource.Resource{}, err
		}
		// The diff is against the immediate predecessor, so reconstruction
		// replays every diff between the base snapshot and the target in
		// chain order. delta_base_id records where that replay starts.
		_, prevContent, err := m.GetByVersion(resourceID, resourceType, latestVersion)
		if err != nil {
			return resource.Resource{}, err
		}
		diff, err := ComputeDelta(prevContent, content)
		if err != nil {
			return resource.Resource{}, err
		}
		versionInfo.StorageMode = resource.StorageDelta
		versionInfo.DeltaBaseID = &baseVersion
		storedPayload = diff
	}

	if hasLatest {
		prev := latestEntry.Resource.VersionInfo.Version
		versionInfo.PreviousVersion = &prev
	}

	newResource := resource.Resource{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Namespace:    namespace,
		VersionInfo:  versionInfo,
		ContentHash:  hash,
	}

	if err := m.putEntry(resourceID, resourceType, nextVersion, chainEntry{Resource: newResource, ContentPayload: storedPayload}); err != nil {
		return resource.Resource{}, err
	}

	if hasLatest {
		latestEntry.Resource.VersionInfo.IsLatest = false
		next := nextVersion
		latestEntry.Resource.VersionInfo.NextVersion = &next
		if err := m.putEntry(resourceID, resourceType, latestEntry.Resource.VersionInfo.Version, latestEntry); err != nil {
			return resource.Resource{}, err
		}
	}

	if err := m.setLatestPointer(resourceID, resourceType, nextVersion); err != nil {
		return resource.Resource{}, err
	}

	m.invalidate(resourceID, resourceType, nextVersion)
	if hasLatest {
		m.invalidate(resourceID, resourceType, latestEntry.Resource.VersionInfo.Version)
	}

	return newResource, nil
}

// chainLength counts the number of versions from the chain root up to and
// including fromVersion, used as the position input to the snapshot-
// interval policy.
func (m *Manager) chainLength(resourceID string, resourceType resource.Type, fromVersion string) (int, error) {
	count := 0
	version := fromVersion
	for version != "" {
		entry, err := m.getEntry(resourceID, resourceType, version)
		if err != nil {
			return 0, err
		}
		count++
		if entry.Resource.VersionInfo.PreviousVersion == nil {
			break
		}
		version = *entry.Resource.VersionInfo.PreviousVersion
	}
	return count, nil
}

// findLastSnapshotVersion walks previous_version pointers from fromVersion
// back to the nearest snapshot, returning its version.
func (m *Manager) findLastSnapshotVersion(resourceID string, resourceType resource.Type, fromVersion string) (string, error) {
	version := fromVersion
	for version != "" {
		entry, err := m.getEntry(resourceID, resourceType, version)
		if err != nil {
			return "", err
		}
		if entry.Resource.VersionInfo.StorageMode == resource.StorageSnapshot {
			return version, nil
		}
		if entry.Resource.VersionInfo.PreviousVersion == nil {
			break
		}
		version = *entry.Resource.VersionInfo.PreviousVersion
	}
	return "", resource.NewError(resource.KindDeltaApplyFailure, "no snapshot found in chain")
}

// GetLatest returns the latest version's materialized content and resource
// record.
func (m *Manager) GetLatest(resourceID string, resourceType resource.Type) (resource.Resource, any, error) {
	latestVersion, err := m.getLatestVersion(resourceID, resourceType)
	if err != nil {
		return resource.Resource{}, nil, err
	}
	return m.GetByVersion(resourceID, resourceType, latestVersion)
}

// GetByVersion reconstructs and returns the resource and content at a
// specific version, replaying deltas back to the nearest snapshot.
func (m *Manager) GetByVersion(resourceID string, resourceType resource.Type, version string) (resource.Resource, any, error) {
	entry, err := m.getEntry(resourceID, resourceType, version)
	if err != nil {
		return resource.Resource{}, nil, err
	}
	if entry.Resource.VersionInfo.StorageMode == resource.StorageSnapshot {
		return entry.Resource, entry.ContentPayload, nil
	}

	var chain []chainEntry
	cur := entry
	for {
		chain = append([]chainEntry{cur}, chain...)
		if cur.Resource.VersionInfo.StorageMode == resource.StorageSnapshot {
			break
		}
		if cur.Resource.VersionInfo.PreviousVersion == nil {
			return resource.Resource{}, nil, resource.NewError(resource.KindDeltaApplyFailure, "chain has no base snapshot")
		}
		cur, err = m.getEntry(resourceID, resourceType, *cur.Resource.VersionInfo.PreviousVersion)
		if err != nil {
			return resource.Resource{}, nil, err
		}
	}

	content := chain[0].ContentPayload
	for _, link := range chain[1:] {
		diff, ok := link.ContentPayload.(Diff)
		if !ok {
			diff, err = reinterpretDiff(link.ContentPayload)
			if err != nil {
				return resource.Resource{}, nil, resource.NewError(resource.KindDeltaApplyFailure, err.Error())
			}
		}
		content, err = ApplyDelta(content, diff)
		if err != nil {
			return resource.Resource{}, nil, resource.NewError(resource.KindDeltaApplyFailure, err.Error())
		}
	}
	return entry.Resource, content, nil
}

// reinterpretDiff recovers a Diff from its JSON round-trip shape (a
// []any of map[string]any), since content_payload is stored as `any` and
// loses its concrete Diff type across the JSON store boundary.
func reinterpretDiff(payload any) (Diff, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var diff Diff
	if err := json.Unmarshal(raw, &diff); err != nil {
		return nil, err
	}
	return diff, nil
}

// ListVersions returns every VersionInfo in the chain, newest first.
func (m *Manager) ListVersions(resourceID string, resourceType resource.Type) ([]resource.VersionInfo, error) {
	latestVersion, err := m.getLatestVersion(resourceID, resourceType)
	if err != nil {
		return nil, err
	}
	var out []resource.VersionInfo
	version := latestVersion
	for version != "" {
		entry, err := m.getEntry(resourceID, resourceType, version)
		if err != nil {
			return nil, err
		}
		out = append(out, entry.Resource.VersionInfo)
		if entry.Resource.VersionInfo.PreviousVersion == nil {
			break
		}
		version = *entry.Resource.VersionInfo.PreviousVersion
	}
	return out, nil
}

// DeleteVersion removes one version and repairs the chain links around it.
func (m *Manager) DeleteVersion(resourceID string, resourceType resource.Type, version string) error {
	lock := m.lockFor(chainKey(resourceID, resourceType))
	lock.Lock()
	defer lock.Unlock()

	entry, err := m.getEntry(resourceID, resourceType, version)
	if err != nil {
		return err
	}

	var prevEntry, nextEntry *chainEntry
	if entry.Resource.VersionInfo.PreviousVersion != nil {
		e, err := m.getEntry(resourceID, resourceType, *entry.Resource.VersionInfo.PreviousVersion)
		if err != nil {
			return err
		}
		prevEntry = &e
	}
	if entry.Resource.VersionInfo.NextVersion != nil {
		e, err := m.getEntry(resourceID, resourceType, *entry.Resource.VersionInfo.NextVersion)
		if err != nil {
			return err
		}
		nextEntry = &e
	}

	if entry.Resource.VersionInfo.IsLatest {
		if prevEntry != nil {
			prevEntry.Resource.VersionInfo.IsLatest = true
			prevEntry.Resource.VersionInfo.NextVersion = nil
			if err := m.putEntry(resourceID, resourceType, prevEntry.Resource.VersionInfo.Version, *prevEntry); err != nil {
				return err
			}
			if err := m.setLatestPointer(resourceID, resourceType, prevEntry.Resource.VersionInfo.Version); err != nil {
				return err
			}
		} else {
			// Deleting the chain's only version: clear the latest pointer
			// instead of leaving it dangling at a key we're about to delete.
			if err := m.store.Delete(m.namespace(resourceType), latestPointerKey(resourceID, resourceType)); err != nil {
				return err
			}
		}
	} else {
		if prevEntry != nil {
			next := entry.Resource.VersionInfo.NextVersion
			prevEntry.Resource.VersionInfo.NextVersion = next
			if err := m.putEntry(resourceID, resourceType, prevEntry.Resource.VersionInfo.Version, *prevEntry); err != nil {
				return err
			}
		}
		if nextEntry != nil {
			prev := entry.Resource.VersionInfo.PreviousVersion
			nextEntry.Resource.VersionInfo.PreviousVersion = prev
			if err := m.putEntry(resourceID, resourceType, nextEntry.Resource.VersionInfo.Version, *nextEntry); err != nil {
				return err
			}
		}
	}

	if err := m.store.Delete(m.namespace(resourceType), versionKey(resourceID, resourceType, version)); err != nil {
		return err
	}
	m.invalidate(resourceID, resourceType, version)
	return nil
}

// DeleteAll removes every version in a resource's chain along with its
// latest pointer, used by the corpus tree manager's cascade delete
// to drop a derived index (trie/search/semantic) wholesale rather than
// walking it version by version.
func (m *Manager) DeleteAll(resourceID string, resourceType resource.Type) error {
	lock := m.lockFor(chainKey(resourceID, resourceType))
	lock.Lock()
	defer lock.Unlock()

	ns := m.namespace(resourceType)
	if err := m.store.DeletePrefix(ns, versionPrefix(resourceID, resourceType)); err != nil {
		return err
	}
	if err := m.store.Delete(ns, latestPointerKey(resourceID, resourceType)); err != nil {
		return err
	}
	m.invalidate(resourceID, resourceType, "")
	return nil
}

func versionPrefix(resourceID string, resourceType resource.Type) string {
	return fmt.Sprintf("%s/%s/v/", resourceType, resourceID)
}

// ListResourceIDs returns the distinct resource IDs of resourceType whose ID
// begins with idPrefix, derived by scanning version keys. Used to enumerate
// per-model semantic indices (`<corpus_uuid>:semantic:<model_name>`) during
// cascade delete, where the exact model name isn't known up front.
func (m *Manager) ListResourceIDs(resourceType resource.Type, idPrefix string) ([]string, error) {
	ns := m.namespace(resourceType)
	keys, err := m.store.ListPrefix(ns, fmt.Sprintf("%s/%s", resourceType, idPrefix))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, k := range keys {
		// k looks like "<type>/<resourceID>/v/<version>" or
		// "<type>/<resourceID>/latest"; the resourceID is always the
		// segment between the type prefix and the next "/v/" or "/latest".
		rest := strings.TrimPrefix(k, string(resourceType)+"/")
		idx := strings.Index(rest, "/v/")
		if idx < 0 {
			idx = strings.Index(rest, "/latest")
		}
		if idx < 0 {
			continue
		}
		id := rest[:idx]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Rollback creates a new latest version whose content equals targetVersion's
// materialized content. ForceRebuild bypasses the hash dedup so a fresh
// version is created even when the target's content matches the current
// latest.
func (m *Manager) Rollback(resourceID string, resourceType resource.Type, namespace resource.Namespace, targetVersion string) (resource.Resource, error) {
	_, content, err := m.GetByVersion(resourceID, resourceType, targetVersion)
	if err != nil {
		return resource.Resource{}, err
	}
	return m.Save(resourceID, resourceType, namespace, content, SaveConfig{ForceSnapshot: true, ForceRebuild: true})
}

// nowFunc is indirected so tests can observe deterministic timestamps if
// ever needed; production callers get wall-clock time.
var nowFunc = func() time.Time { return time.Now() }
