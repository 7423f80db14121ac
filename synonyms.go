package yetisearch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// synonymEngine expands query tokens through a term → synonyms mapping,
// optionally scoped by language. File-backed mappings hot-reload on change;
// a reload failure keeps the previous table (soft failure).
type synonymEngine struct {
	mu            sync.RWMutex
	global        map[string][]string
	byLanguage    map[string]map[string][]string
	caseSensitive bool
	maxPerTerm    int

	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// synonymFile is the on-disk shape: either a flat mapping or per-language
// sections under "languages".
type synonymFile struct {
	Synonyms  map[string][]string            `yaml:"synonyms" json:"synonyms"`
	Languages map[string]map[string][]string `yaml:"languages" json:"languages"`
}

// newSynonymEngine builds the engine from an inline mapping and/or a file
// path. When both are given and the file loads, the file's tables replace
// the inline mapping; an unreadable file leaves the inline mapping in use.
func newSynonymEngine(cfg SearchConfig, log *slog.Logger) *synonymEngine {
	e := &synonymEngine{
		global:        make(map[string][]string),
		byLanguage:    make(map[string]map[string][]string),
		caseSensitive: cfg.SynonymsCaseSensitive,
		maxPerTerm:    cfg.SynonymsMaxExpansions,
		log:           log,
	}
	if e.maxPerTerm <= 0 {
		e.maxPerTerm = 2
	}
	for term, syns := range cfg.Synonyms {
		e.global[e.fold(term)] = syns
	}
	if cfg.SynonymsPath != "" {
		if err := e.loadFile(cfg.SynonymsPath); err != nil {
			log.Warn("synonyms file unreadable, continuing without it",
				"path", cfg.SynonymsPath, "error", err)
		} else {
			e.watch(cfg.SynonymsPath)
		}
	}
	return e
}

func (e *synonymEngine) fold(term string) string {
	if e.caseSensitive {
		return term
	}
	return strings.ToLower(term)
}

// loadFile replaces the tables from a YAML or JSON synonyms file.
func (e *synonymEngine) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file synonymFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("parse synonyms: %w", err)
	}

	global := make(map[string][]string, len(file.Synonyms))
	for term, syns := range file.Synonyms {
		global[e.fold(term)] = syns
	}
	byLanguage := make(map[string]map[string][]string, len(file.Languages))
	for lang, table := range file.Languages {
		folded := make(map[string][]string, len(table))
		for term, syns := range table {
			folded[e.fold(term)] = syns
		}
		byLanguage[strings.ToLower(lang)] = folded
	}

	e.mu.Lock()
	e.global = global
	e.byLanguage = byLanguage
	e.mu.Unlock()
	return nil
}

// watch hot-reloads the synonyms file when it changes on disk.
func (e *synonymEngine) watch(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.log.Debug("synonyms watcher unavailable", "error", err)
		return
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		e.log.Debug("synonyms watcher unavailable", "error", err)
		return
	}
	e.watcher = watcher

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := e.loadFile(path); err != nil {
					e.log.Warn("synonyms reload failed, keeping previous table",
						"path", path, "error", err)
					continue
				}
				e.log.Debug("synonyms reloaded", "path", path)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// close stops the file watcher.
func (e *synonymEngine) close() {
	if e.watcher != nil {
		_ = e.watcher.Close()
	}
}

// lookup returns the synonyms for one token, preferring the language table.
func (e *synonymEngine) lookup(token, language string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	key := e.fold(token)
	if language != "" {
		lang := strings.ToLower(language)
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		if table, ok := e.byLanguage[lang]; ok {
			if syns, ok := table[key]; ok {
				return syns
			}
		}
	}
	return e.global[key]
}

// Expand returns the synonym additions for a token list. Per-term results
// are capped at maxPerTerm and the total at max(5, maxPerTerm*10).
// Multi-word synonyms come back as-is; the planner quotes them as phrases.
func (e *synonymEngine) Expand(tokens []string, language string) []string {
	totalCap := e.maxPerTerm * 10
	if totalCap < 5 {
		totalCap = 5
	}

	var out []string
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		seen[e.fold(t)] = true
	}
	for _, t := range tokens {
		added := 0
		for _, syn := range e.lookup(t, language) {
			if added >= e.maxPerTerm || len(out) >= totalCap {
				break
			}
			key := e.fold(syn)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, syn)
			added++
		}
		if len(out) >= totalCap {
			break
		}
	}
	return out
}
