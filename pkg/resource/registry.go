package resource

// Capability describes how a resource Type is stored: a flat capability map
// standing in for runtime dispatch/inheritance between resource variants.
type Capability struct {
	Namespace     Namespace
	DeltaEligible bool
}

var capabilities = map[Type]Capability{
	TypeCorpus:     {Namespace: NamespaceCorpus, DeltaEligible: true},
	TypeDictionary: {Namespace: NamespaceDictionary, DeltaEligible: true},
	TypeSearch:     {Namespace: NamespaceCorpus, DeltaEligible: true},
	// Trie and semantic indices hold binary blobs (compressed trie bytes,
	// zlib'd embeddings) that do not diff usefully as JSON-patch edits, so
	// every version is a full snapshot.
	TypeTrie:       {Namespace: NamespaceCorpus, DeltaEligible: false},
	TypeSemantic:   {Namespace: NamespaceSemantic, DeltaEligible: false},
	TypeLanguage:   {Namespace: NamespaceCorpus, DeltaEligible: true},
	TypeLiterature: {Namespace: NamespaceLiterature, DeltaEligible: true},
}

// CapabilityFor returns the storage capability for a resource type. Unknown
// types default to a conservative snapshot-only, default-namespace policy.
func CapabilityFor(t Type) Capability {
	if c, ok := capabilities[t]; ok {
		return c
	}
	return Capability{Namespace: NamespaceDefault, DeltaEligible: false}
}

// IsDeltaEligible reports whether resources of this type may be stored as
// deltas against a prior snapshot.
func IsDeltaEligible(t Type) bool {
	return CapabilityFor(t).DeltaEligible
}
