package yetisearch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration. Zero values fall back to
// the defaults from DefaultConfig.
type Config struct {
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Indexer IndexerConfig `yaml:"indexer" json:"indexer"`
	Search  SearchConfig  `yaml:"search" json:"search"`
}

// StorageConfig configures the underlying store.
type StorageConfig struct {
	// Path is the database file. Empty means in-memory.
	Path string `yaml:"path" json:"path"`
	// Driver selects the SQLite driver: sqlite3 (CGO) or modernc (pure Go).
	Driver string `yaml:"driver" json:"driver"`
	// ExternalContent switches new indexes to the external-content FTS
	// layout keyed by the document's integer primary key.
	ExternalContent bool `yaml:"external_content" json:"external_content"`
	// ExclusiveLock guards the database with a cross-process file lock.
	ExclusiveLock bool `yaml:"exclusive_lock" json:"exclusive_lock"`
}

// FieldConfig configures one indexed content field.
type FieldConfig struct {
	// Boost is the field's relevance weight.
	Boost float64 `yaml:"boost" json:"boost"`
	// Store is accepted but has no effect: full content is always stored
	// and returned.
	Store bool `yaml:"store" json:"store"`
}

// FTSConfig configures the FTS virtual-table layout.
type FTSConfig struct {
	// MultiColumn creates one FTS column per field (native BM25 weights).
	MultiColumn bool `yaml:"multi_column" json:"multi_column"`
	// Prefix lists prefix-index sizes, e.g. [2, 3].
	Prefix []int `yaml:"prefix" json:"prefix"`
	// Detail is the FTS detail level: full, column or none.
	Detail string `yaml:"detail" json:"detail"`
}

// IndexerConfig configures how new indexes are laid out.
type IndexerConfig struct {
	Fields map[string]FieldConfig `yaml:"fields" json:"fields"`
	FTS    FTSConfig              `yaml:"fts" json:"fts"`
}

// SearchConfig configures query planning, fuzzy matching and scoring.
type SearchConfig struct {
	MinScore   float64 `yaml:"min_score" json:"min_score"`
	MaxResults int     `yaml:"max_results" json:"max_results"`
	CacheTTL   int     `yaml:"cache_ttl" json:"cache_ttl"` // seconds

	EnableFuzzy          bool    `yaml:"enable_fuzzy" json:"enable_fuzzy"`
	FuzzyAlgorithm       string  `yaml:"fuzzy_algorithm" json:"fuzzy_algorithm"` // basic, levenshtein, jaro_winkler, trigram
	FuzzyCorrectionMode  bool    `yaml:"fuzzy_correction_mode" json:"fuzzy_correction_mode"`
	CorrectionThreshold  float64 `yaml:"correction_threshold" json:"correction_threshold"`
	TrigramSize          int     `yaml:"trigram_size" json:"trigram_size"`
	TrigramThreshold     float64 `yaml:"trigram_threshold" json:"trigram_threshold"`
	JaroWinklerThreshold float64 `yaml:"jaro_winkler_threshold" json:"jaro_winkler_threshold"`
	LevenshteinThreshold int     `yaml:"levenshtein_threshold" json:"levenshtein_threshold"`
	MaxFuzzyVariations   int     `yaml:"max_fuzzy_variations" json:"max_fuzzy_variations"`
	MinTermFrequency     int     `yaml:"min_term_frequency" json:"min_term_frequency"`
	IndexedTermsCacheTTL int     `yaml:"indexed_terms_cache_ttl" json:"indexed_terms_cache_ttl"` // seconds
	MaxIndexedTerms      int     `yaml:"max_indexed_terms" json:"max_indexed_terms"`
	FuzzyLastTokenOnly   bool    `yaml:"fuzzy_last_token_only" json:"fuzzy_last_token_only"`
	PrefixLastToken      bool    `yaml:"prefix_last_token" json:"prefix_last_token"`
	FuzzyScorePenalty    float64 `yaml:"fuzzy_score_penalty" json:"fuzzy_score_penalty"`
	FuzzyTotalMaxVars    int     `yaml:"fuzzy_total_max_variations" json:"fuzzy_total_max_variations"`

	EnableSynonyms        bool                `yaml:"enable_synonyms" json:"enable_synonyms"`
	Synonyms              map[string][]string `yaml:"synonyms" json:"synonyms"`
	SynonymsPath          string              `yaml:"synonyms_path" json:"synonyms_path"`
	SynonymsCaseSensitive bool                `yaml:"synonyms_case_sensitive" json:"synonyms_case_sensitive"`
	SynonymsMaxExpansions int                 `yaml:"synonyms_max_expansions" json:"synonyms_max_expansions"`

	EnableSuggestions  bool   `yaml:"enable_suggestions" json:"enable_suggestions"`
	EnableHighlighting bool   `yaml:"enable_highlighting" json:"enable_highlighting"`
	HighlightTag       string `yaml:"highlight_tag" json:"highlight_tag"`
	HighlightTagClose  string `yaml:"highlight_tag_close" json:"highlight_tag_close"`
	SnippetLength      int    `yaml:"snippet_length" json:"snippet_length"`

	DistanceWeight float64 `yaml:"distance_weight" json:"distance_weight"` // 0..1
	DistanceDecayK float64 `yaml:"distance_decay_k" json:"distance_decay_k"`
	GeoUnits       string  `yaml:"geo_units" json:"geo_units"` // m, km, mi

	TwoPassSearch     bool     `yaml:"two_pass_search" json:"two_pass_search"`
	PrimaryFields     []string `yaml:"primary_fields" json:"primary_fields"`
	PrimaryFieldLimit int      `yaml:"primary_field_limit" json:"primary_field_limit"`
}

// DefaultConfig returns the standard configuration: fuzzy correction on,
// highlighting on, no geo blending.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Driver: "sqlite3",
		},
		Indexer: IndexerConfig{
			FTS: FTSConfig{Detail: "full"},
		},
		Search: SearchConfig{
			MinScore:             0,
			MaxResults:           1000,
			CacheTTL:             300,
			EnableFuzzy:          true,
			FuzzyAlgorithm:       "basic",
			FuzzyCorrectionMode:  true,
			CorrectionThreshold:  0.65,
			TrigramSize:          3,
			TrigramThreshold:     0.35,
			JaroWinklerThreshold: 0.85,
			LevenshteinThreshold: 2,
			MaxFuzzyVariations:   5,
			MinTermFrequency:     1,
			IndexedTermsCacheTTL: 300,
			MaxIndexedTerms:      10000,
			FuzzyScorePenalty:    0.3,
			FuzzyTotalMaxVars:    30,

			SynonymsMaxExpansions: 2,

			EnableSuggestions:  true,
			EnableHighlighting: true,
			HighlightTag:       "<mark>",
			HighlightTagClose:  "</mark>",
			SnippetLength:      160,

			DistanceWeight: 0,
			DistanceDecayK: 0.01,
			GeoUnits:       "m",

			PrimaryFieldLimit: 5,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Search.DistanceWeight < 0 || c.Search.DistanceWeight > 1 {
		return fmt.Errorf("search.distance_weight %f out of range [0, 1]", c.Search.DistanceWeight)
	}
	switch c.Search.GeoUnits {
	case "", "m", "km", "mi":
	default:
		return fmt.Errorf("search.geo_units %q must be one of m, km, mi", c.Search.GeoUnits)
	}
	switch c.Search.FuzzyAlgorithm {
	case "", "basic", "levenshtein", "jaro_winkler", "trigram":
	default:
		return fmt.Errorf("search.fuzzy_algorithm %q unknown", c.Search.FuzzyAlgorithm)
	}
	switch c.Storage.Driver {
	case "", "sqlite3", "modernc":
	default:
		return fmt.Errorf("storage.driver %q must be sqlite3 or modernc", c.Storage.Driver)
	}
	return nil
}

// cacheTTLDuration returns the result-cache TTL as a duration.
func (c SearchConfig) cacheTTLDuration() time.Duration {
	if c.CacheTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CacheTTL) * time.Second
}

// vocabTTLDuration returns the vocabulary-cache TTL as a duration.
func (c SearchConfig) vocabTTLDuration() time.Duration {
	if c.IndexedTermsCacheTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.IndexedTermsCacheTTL) * time.Second
}
