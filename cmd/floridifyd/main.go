/*
Package main implements the floridify daemon: a MessagePack IPC server over
stdin/stdout for lookup requests, plus version and corpus diagnostic
operations.

# Server Mode

The daemon decodes one MessagePack request object at a time from the stdin
stream and writes one response object to stdout. Every request carries an
"action" field selecting the operation; "lookup" is the hot path,
dispatching through the lookup pipeline (search resolution, cache, provider
fetch, synthesis). "corpus_get" and "version_list" expose the corpus tree
and version chain for diagnostics and tooling.

# Data Files

The store directory is a Badger database managed entirely by pkg/store;
there is no separate dictionary file format.

# Config

Runtime configuration is a config.toml file loaded via pkg/config; a
default file is created on first run if none exists.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/floridify/floridify/pkg/cache"
	"github.com/floridify/floridify/pkg/config"
	"github.com/floridify/floridify/pkg/corpus"
	"github.com/floridify/floridify/pkg/fuzzy"
	"github.com/floridify/floridify/pkg/hotreload"
	"github.com/floridify/floridify/pkg/pipeline"
	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/search"
	"github.com/floridify/floridify/pkg/semantic"
	"github.com/floridify/floridify/pkg/store"
	"github.com/floridify/floridify/pkg/trie"
	"github.com/floridify/floridify/pkg/version"
)

const (
	Version = "0.1.0-beta"
	AppName = "floridifyd"
)

func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

func main() {
	sigHandler()

	configFile := flag.String("config", "config.toml", "Path to config.toml file")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	corpusName := flag.String("corpus", "", "Name of the default corpus to serve lookups against")
	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg, err := config.InitConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	s, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	diskCache, err := cache.New(s, cfg.Cache.LRUSize)
	if err != nil {
		log.Fatalf("Failed to init cache: %v", err)
	}

	versions := version.NewManager(s).WithCache(diskCache)
	corpora := corpus.NewManager(versions, s).WithCache(diskCache)

	hr := hotreload.NewManager(
		time.Duration(cfg.HotReload.CheckIntervalSeconds)*time.Second,
		cfg.Semantic.Enabled,
		fingerprintFunc(corpora),
		buildFunc(corpora, versions, cfg),
	)

	dedupWait := time.Duration(cfg.Cache.DedupWaitSeconds) * time.Second
	cacheTTL := time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second
	pl := pipeline.New(
		func() *search.Engine {
			languages := []string{}
			if *corpusName != "" {
				languages = []string{*corpusName}
			}
			engine, err := hr.GetEngine(languages, false)
			if err != nil {
				log.Warnf("search engine unavailable: %v", err)
				return nil
			}
			return engine
		},
		versions,
		nil, // providers are registered by embedding binaries, not this daemon
		nil,
		pipeline.Config{DedupWait: dedupWait, CacheTTL: cacheTTL},
	).WithCache(diskCache)

	srv := &Server{
		corpora:   corpora,
		versions:  versions,
		hotReload: hr,
		pipeline:  pl,
	}

	showStartupInfo(cfg.Storage.DataDir)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// fingerprintFunc reads a corpus's fingerprint without building anything.
func fingerprintFunc(corpora *corpus.Manager) hotreload.FingerprintFunc {
	return func(languages []string) (hotreload.Fingerprint, error) {
		if len(languages) == 0 {
			return hotreload.Fingerprint{}, resource.NewError(resource.KindNotFound, "no corpus specified")
		}
		c, ok, err := corpora.GetCorpus("", languages[0])
		if err != nil {
			return hotreload.Fingerprint{}, err
		}
		if !ok {
			return hotreload.Fingerprint{}, resource.NewError(resource.KindNotFound, "corpus not found: "+languages[0])
		}
		return hotreload.Fingerprint{
			CorpusName:     c.CorpusName,
			VocabularyHash: c.VocabularyHash,
			Version:        c.Resource.VersionInfo.Version,
		}, nil
	}
}

// buildFunc builds a fresh search.Engine over a corpus's vocabulary: a
// trie for exact/prefix lookup, a fuzzy matcher, and, when semantic search
// is enabled, an empty semantic index with no embedder, so semantic queries
// fall back to fuzzy. The built trie and search index
// resources are persisted through the version manager under the
// `<corpus_uuid>:trie` / `<corpus_uuid>:search` ids so the corpus manager's
// cascade delete can find them; identical rebuilds dedup to the existing
// version.
func buildFunc(corpora *corpus.Manager, versions *version.Manager, cfg *config.Config) hotreload.BuildFunc {
	return func(languages []string) (*search.Engine, error) {
		if len(languages) == 0 {
			return nil, resource.NewError(resource.KindNotFound, "no corpus specified")
		}
		c, ok, err := corpora.GetCorpus("", languages[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, resource.NewError(resource.KindNotFound, "corpus not found: "+languages[0])
		}

		trieIdx := trie.Build(c.Vocabulary, c.OriginalVocabulary, nil, c.VocabularyHash)
		fuzzyMatcher := fuzzy.NewMatcher(c.OriginalVocabulary)

		var semanticIdx *semantic.Index
		if cfg.Semantic.Enabled {
			semanticIdx = semantic.NewIndex()
		}

		trieRes := &search.TrieIndexResource{
			CorpusUUID:     c.CorpusUUID,
			VocabularyHash: c.VocabularyHash,
			Words:          c.Vocabulary,
			OriginalForms:  c.OriginalVocabulary,
		}
		if _, err := versions.Save(search.TrieResourceID(c.CorpusUUID), resource.TypeTrie, resource.NamespaceCorpus, trieRes, version.SaveConfig{}); err != nil {
			log.Warnf("persisting trie index for %s: %v", c.CorpusUUID, err)
		}
		searchRes := &search.SearchIndexResource{
			CorpusUUID:     c.CorpusUUID,
			VocabularyHash: c.VocabularyHash,
			TrieIndexID:    search.TrieResourceID(c.CorpusUUID),
			HasTrie:        true,
			HasFuzzy:       true,
			HasSemantic:    semanticIdx != nil,
		}
		if _, err := versions.Save(search.SearchResourceID(c.CorpusUUID), resource.TypeSearch, resource.NamespaceCorpus, searchRes, version.SaveConfig{}); err != nil {
			log.Warnf("persisting search index for %s: %v", c.CorpusUUID, err)
		}

		return search.New(trieIdx, fuzzyMatcher, semanticIdx, nil), nil
	}
}

// showStartupInfo displays basic info about the init process.
func showStartupInfo(dataDir string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("=============")
	println(" floridifyd ")
	println("=============")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	log.Infof("data dir: ( %s )", dataDir)
	log.Info("status: ready")
	println("=============")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}

// Server handles lookup requests and corpus/version diagnostics over
// MessagePack, one request object per call, in a decode-dispatch-encode
// loop.
type Server struct {
	corpora   *corpus.Manager
	versions  *version.Manager
	hotReload *hotreload.Manager
	pipeline  *pipeline.Pipeline

	decoder *msgpack.Decoder
}

// Start begins listening for requests on stdin.
func (s *Server) Start() error {
	s.decoder = msgpack.NewDecoder(os.Stdin)
	for {
		if err := s.processRequest(); err != nil {
			if err == io.EOF {
				log.Debug("client disconnected")
				return nil
			}
			log.Debugf("request error: %v", err)
			continue
		}
	}
}

func (s *Server) processRequest() error {
	var req map[string]any
	if err := s.decoder.Decode(&req); err != nil {
		return err
	}

	action, _ := req["action"].(string)
	switch action {
	case "lookup":
		return s.handleLookup(req)
	case "corpus_get":
		return s.handleCorpusGet(req)
	case "version_list":
		return s.handleVersionList(req)
	default:
		return s.respond(map[string]any{"error": "unknown action: " + action})
	}
}

func (s *Server) handleLookup(req map[string]any) error {
	word, _ := req["word"].(string)
	forceRefresh, _ := req["force_refresh"].(bool)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.pipeline.Lookup(ctx, word, forceRefresh)
	if err != nil {
		return s.respond(map[string]any{"error": err.Error()})
	}
	return s.respond(map[string]any{
		"resolved_as": result.ResolvedAs,
		"from_cache":  result.FromCache,
		"degraded":    result.Degraded,
		"entry":       result.Entry,
	})
}

func (s *Server) handleCorpusGet(req map[string]any) error {
	uuidArg, _ := req["uuid"].(string)
	nameArg, _ := req["name"].(string)
	c, ok, err := s.corpora.GetCorpus(uuidArg, nameArg)
	if err != nil {
		return s.respond(map[string]any{"error": err.Error()})
	}
	if !ok {
		return s.respond(map[string]any{"error": "corpus not found"})
	}
	return s.respond(map[string]any{
		"corpus":  c,
		"version": c.Resource.VersionInfo.Version,
	})
}

func (s *Server) handleVersionList(req map[string]any) error {
	resourceID, _ := req["resource_id"].(string)
	resourceType, _ := req["resource_type"].(string)
	versions, err := s.versions.ListVersions(resourceID, resource.Type(resourceType))
	if err != nil {
		return s.respond(map[string]any{"error": err.Error()})
	}
	return s.respond(map[string]any{"versions": versions})
}

func (s *Server) respond(v any) error {
	return msgpack.NewEncoder(os.Stdout).Encode(v)
}
