// Package corpus implements the tree-structured corpus manager:
// parent/child linking with cycle prevention, vocabulary aggregation for
// master corpora, and cascade deletion of a corpus's derived search indices.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/floridify/floridify/internal/logger"
	"github.com/floridify/floridify/internal/utils"
	"github.com/floridify/floridify/pkg/cache"
	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/store"
	"github.com/floridify/floridify/pkg/version"
)

// Type names the corpus_type enum.
type Type string

const (
	TypeLanguage   Type = "language"
	TypeLexicon    Type = "lexicon"
	TypeLiterature Type = "literature"
	TypeCustom     Type = "custom"
)

// Corpus is the resource subtype: a named, versioned vocabulary (leaf)
// or a container aggregating child corpora (master). CorpusUUID is stable
// across versions, unlike the embedded Resource's VersionInfo.
// Resource is populated from the chain record on load rather than stored
// inside the content payload: embedding it would fold version metadata into
// content_hash, so two identical vocabularies would never dedup and a
// reloaded corpus would report the version that was latest one save ago.
type Corpus struct {
	Resource resource.Resource `json:"-" msgpack:"-"`

	CorpusName string `json:"corpus_name" msgpack:"corpus_name"`
	CorpusUUID string `json:"corpus_uuid" msgpack:"corpus_uuid"`
	CorpusType Type   `json:"corpus_type" msgpack:"corpus_type"`
	Language   string `json:"language" msgpack:"language"`
	IsMaster   bool   `json:"is_master" msgpack:"is_master"`

	ParentUUID *string  `json:"parent_uuid,omitempty" msgpack:"parent_uuid,omitempty"`
	ChildUUIDs []string `json:"child_uuids,omitempty" msgpack:"child_uuids,omitempty"`

	Vocabulary           []string       `json:"vocabulary,omitempty" msgpack:"vocabulary,omitempty"`
	OriginalVocabulary   []string       `json:"original_vocabulary,omitempty" msgpack:"original_vocabulary,omitempty"`
	LemmatizedVocabulary []string       `json:"lemmatized_vocabulary,omitempty" msgpack:"lemmatized_vocabulary,omitempty"`
	VocabularyToIndex    map[string]int `json:"vocabulary_to_index,omitempty" msgpack:"vocabulary_to_index,omitempty"`
	VocabularyHash       string         `json:"vocabulary_hash,omitempty" msgpack:"vocabulary_hash,omitempty"`
}

// Lemmatizer produces the lemma (dictionary form) of a normalized word.
// Lemmatization itself is an external collaborator, out of scope; a
// nil Lemmatizer makes LemmatizedVocabulary track Vocabulary identically.
type Lemmatizer interface {
	Lemmatize(normalized string) string
}

// SourceConnector fetches a raw vocabulary for a named external source
// (e.g. a language pack or wordlist), the collaborator behind
// AddLanguageSource. Concrete connectors are external.
type SourceConnector interface {
	FetchVocabulary(ctx context.Context, source string) ([]string, error)
}

// Manager is the corpus tree manager.
type Manager struct {
	versions *version.Manager
	store    *store.Store
	cache    *cache.Cache
	log      *log.Logger
}

// NewManager constructs a Manager over a version chain manager and the
// underlying store (used only for the non-versioned name->uuid pointer).
func NewManager(versions *version.Manager, s *store.Store) *Manager {
	return &Manager{versions: versions, store: s, log: logger.New("corpus")}
}

// WithCache attaches the two-tier cache so DeleteCorpus invalidates the
// name/uuid/stats keys a version.Manager invalidation can't reach. Returns m
// for chaining at construction time.
func (m *Manager) WithCache(c *cache.Cache) *Manager {
	m.cache = c
	return m
}

func nameKey(name string) string {
	return "name/" + name
}

// SaveCorpus creates a new corpus. originalWords is the raw, uniquely-cased
// vocabulary (may be empty for a master container); lemmatizer may be nil.
func (m *Manager) SaveCorpus(name string, originalWords []string, corpusType Type, language string, parentUUID *string, isMaster bool, lemmatizer Lemmatizer) (*Corpus, error) {
	id := uuid.NewString()

	c := &Corpus{
		CorpusName: name,
		CorpusUUID: id,
		CorpusType: corpusType,
		Language:   language,
		IsMaster:   isMaster,
		ParentUUID: parentUUID,
	}
	setVocabulary(c, originalWords, lemmatizer)

	if err := m.persist(c, version.SaveConfig{ForceSnapshot: true}); err != nil {
		return nil, err
	}
	if err := m.store.Put(resource.NamespaceCorpus, nameKey(name), []byte(id)); err != nil {
		return nil, err
	}

	if parentUUID != nil {
		if _, err := m.UpdateParent(*parentUUID, id); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// setVocabulary normalizes, deduplicates, and sorts originalWords into the
// three parallel vocabulary arrays and the index map, keeping
// |vocabulary| == |original_vocabulary| == |lemmatized_vocabulary|.
func setVocabulary(c *Corpus, originalWords []string, lemmatizer Lemmatizer) {
	type pair struct{ normalized, original string }
	seen := make(map[string]string, len(originalWords))
	pairs := make([]pair, 0, len(originalWords))
	for _, w := range originalWords {
		n := utils.NormalizeWord(w)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = w
		pairs = append(pairs, pair{normalized: n, original: w})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].normalized < pairs[j].normalized })

	c.Vocabulary = make([]string, len(pairs))
	c.OriginalVocabulary = make([]string, len(pairs))
	c.LemmatizedVocabulary = make([]string, len(pairs))
	c.VocabularyToIndex = make(map[string]int, len(pairs))
	for i, p := range pairs {
		c.Vocabulary[i] = p.normalized
		c.OriginalVocabulary[i] = p.original
		if lemmatizer != nil {
			c.LemmatizedVocabulary[i] = lemmatizer.Lemmatize(p.normalized)
		} else {
			c.LemmatizedVocabulary[i] = p.normalized
		}
		c.VocabularyToIndex[p.normalized] = i
	}
	c.VocabularyHash = vocabularyHash(c.Vocabulary)
}

func vocabularyHash(vocabulary []string) string {
	hash, _ := resource.ContentHash(vocabulary)
	return hash
}

// persist removes any self-referential child_uuids, logging the cleanup,
// and saves through the version manager.
func (m *Manager) persist(c *Corpus, cfg version.SaveConfig) error {
	cleaned := c.ChildUUIDs[:0:0]
	for _, child := range c.ChildUUIDs {
		if child == c.CorpusUUID {
			m.log.Warnf("corpus %s: removing self-referential child_uuid", c.CorpusUUID)
			continue
		}
		cleaned = append(cleaned, child)
	}
	c.ChildUUIDs = cleaned

	res, err := m.versions.Save(c.CorpusUUID, resource.TypeCorpus, resource.NamespaceCorpus, c, cfg)
	if err != nil {
		return err
	}
	c.Resource = res
	return nil
}

// GetCorpus resolves a corpus by UUID, by resource_id (identical to UUID
// for corpora), or by name, checked in that order.
func (m *Manager) GetCorpus(corpusUUID, corpusName string) (*Corpus, bool, error) {
	if corpusUUID != "" {
		return m.getByUUID(corpusUUID)
	}
	if corpusName != "" {
		data, err := m.store.Get(resource.NamespaceCorpus, nameKey(corpusName))
		if err != nil {
			if errors.Is(err, resource.ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return m.getByUUID(string(data))
	}
	return nil, false, resource.NewError(resource.KindValidation, "GetCorpus requires a uuid or name")
}

func (m *Manager) getByUUID(corpusUUID string) (*Corpus, bool, error) {
	res, content, err := m.versions.GetLatest(corpusUUID, resource.TypeCorpus)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	c, err := fromContent(content)
	if err != nil {
		return nil, false, err
	}
	c.Resource = res
	return c, true, nil
}

func fromContent(content any) (*Corpus, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var c Corpus
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCorpus applies mutate to the latest version of a corpus and saves
// the result as a new version.
func (m *Manager) UpdateCorpus(corpusUUID string, mutate func(*Corpus)) (*Corpus, error) {
	c, ok, err := m.getByUUID(corpusUUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, resource.NewError(resource.KindNotFound, corpusUUID)
	}
	mutate(c)
	if err := m.persist(c, version.SaveConfig{}); err != nil {
		return nil, err
	}
	return c, nil
}

// ancestors walks parent_uuid upward from corpusUUID, returning every
// ancestor UUID in order (nearest first). A defensive seen-set guards
// against an already-corrupt cycle looping forever.
func (m *Manager) ancestors(corpusUUID string) ([]string, error) {
	var out []string
	seen := map[string]struct{}{corpusUUID: {}}
	cur := corpusUUID
	for {
		c, ok, err := m.getByUUID(cur)
		if err != nil {
			return nil, err
		}
		if !ok || c.ParentUUID == nil {
			return out, nil
		}
		parent := *c.ParentUUID
		if _, looped := seen[parent]; looped {
			return out, nil
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
		cur = parent
	}
}

// wouldCycle reports whether linking childUUID under parentUUID would
// create a cycle: parentUUID == childUUID, or childUUID is already an
// ancestor of parentUUID (i.e. parentUUID currently descends from
// childUUID). Only parent pointers are stored, so the no-cycle invariant
// is checked from below via a bounded upward walk.
func (m *Manager) wouldCycle(parentUUID, childUUID string) (bool, error) {
	if parentUUID == childUUID {
		return true, nil
	}
	anc, err := m.ancestors(parentUUID)
	if err != nil {
		return false, err
	}
	for _, a := range anc {
		if a == childUUID {
			return true, nil
		}
	}
	return false, nil
}

// UpdateParent inserts childUUID into parentUUID's child_uuids, refusing
// cycles. A violation returns (false, error-wrapping-ErrCycleRejected)
// rather than panicking.
func (m *Manager) UpdateParent(parentUUID, childUUID string) (bool, error) {
	cyc, err := m.wouldCycle(parentUUID, childUUID)
	if err != nil {
		return false, err
	}
	if cyc {
		m.log.Warnf("rejecting cycle: %s -> %s", parentUUID, childUUID)
		return false, resource.NewError(resource.KindCycleRejected,
			fmt.Sprintf("attaching %s under %s would create a cycle", childUUID, parentUUID))
	}

	parent, ok, err := m.getByUUID(parentUUID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, resource.NewError(resource.KindNotFound, parentUUID)
	}
	if !contains(parent.ChildUUIDs, childUUID) {
		parent.ChildUUIDs = append(parent.ChildUUIDs, childUUID)
		if err := m.persist(parent, version.SaveConfig{}); err != nil {
			return false, err
		}
	}

	child, ok, err := m.getByUUID(childUUID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, resource.NewError(resource.KindNotFound, childUUID)
	}
	p := parentUUID
	child.ParentUUID = &p
	if err := m.persist(child, version.SaveConfig{}); err != nil {
		return false, err
	}
	return true, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// AggregateVocabularies returns sort(union(children.vocabulary)). If
// updateParent and the corpus is a master, the result is written back and
// the corpus version is bumped. A child that cannot be loaded aborts the
// aggregation and leaves the parent untouched (AggregationPartialFailure).
func (m *Manager) AggregateVocabularies(corpusUUID string, updateParent bool) ([]string, error) {
	c, ok, err := m.getByUUID(corpusUUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, resource.NewError(resource.KindNotFound, corpusUUID)
	}

	if len(c.ChildUUIDs) == 0 {
		return append([]string(nil), c.Vocabulary...), nil
	}

	union := make(map[string]struct{})
	for _, childUUID := range c.ChildUUIDs {
		child, ok, err := m.getByUUID(childUUID)
		if err != nil || !ok {
			m.log.Errorf("aggregation of %s aborted: child %s unreachable: %v", corpusUUID, childUUID, err)
			return nil, resource.NewError(resource.KindInvariantViolation,
				fmt.Sprintf("child %s unreachable during aggregation; parent %s left unchanged", childUUID, corpusUUID))
		}
		for _, w := range child.Vocabulary {
			union[w] = struct{}{}
		}
	}

	result := make([]string, 0, len(union))
	for w := range union {
		result = append(result, w)
	}
	sort.Strings(result)

	if updateParent && c.IsMaster {
		if _, err := m.UpdateCorpus(corpusUUID, func(c *Corpus) {
			setVocabulary(c, result, nil)
			// A master's vocabulary is the aggregation, not its own
			// original casing, so original/normalized coincide here.
			c.OriginalVocabulary = append([]string(nil), result...)
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AddLanguageSource fetches a vocabulary via connector and creates a child
// corpus of parentUUID from it, returning the new child's UUID.
func (m *Manager) AddLanguageSource(ctx context.Context, parentUUID, source string, connector SourceConnector) (string, error) {
	words, err := connector.FetchVocabulary(ctx, source)
	if err != nil {
		return "", fmt.Errorf("fetching vocabulary for source %q: %w", source, err)
	}
	parent := parentUUID
	child, err := m.SaveCorpus(source, words, TypeLanguage, "", &parent, false, nil)
	if err != nil {
		return "", err
	}
	return child.CorpusUUID, nil
}

// DeleteCorpus cascades: SemanticIndex(es), TrieIndex, SearchIndex (all
// keyed by corpus_uuid), then the corpus itself. Child corpora are orphaned
// (parent_uuid set to nil), never cascade-deleted.
func (m *Manager) DeleteCorpus(corpusUUID string) (bool, error) {
	c, ok, err := m.getByUUID(corpusUUID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	semanticIDs, err := m.versions.ListResourceIDs(resource.TypeSemantic, corpusUUID+":semantic:")
	if err != nil {
		return false, err
	}
	for _, id := range semanticIDs {
		if err := m.versions.DeleteAll(id, resource.TypeSemantic); err != nil {
			return false, err
		}
	}
	if err := m.versions.DeleteAll(corpusUUID+":trie", resource.TypeTrie); err != nil {
		return false, err
	}
	if err := m.versions.DeleteAll(corpusUUID+":search", resource.TypeSearch); err != nil {
		return false, err
	}

	for _, childUUID := range c.ChildUUIDs {
		if _, err := m.UpdateCorpus(childUUID, func(child *Corpus) {
			child.ParentUUID = nil
		}); err != nil {
			m.log.Warnf("orphaning child %s of deleted corpus %s: %v", childUUID, corpusUUID, err)
		}
	}

	if err := m.versions.DeleteAll(corpusUUID, resource.TypeCorpus); err != nil {
		return false, err
	}
	if err := m.store.Delete(resource.NamespaceCorpus, nameKey(c.CorpusName)); err != nil {
		return false, err
	}
	if m.cache != nil {
		if err := m.cache.InvalidateCorpus(resource.NamespaceCorpus, c.CorpusName, corpusUUID); err != nil {
			m.log.Warnf("cache invalidation for deleted corpus %s: %v", corpusUUID, err)
		}
	}
	return true, nil
}
