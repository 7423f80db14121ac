package yetisearch

import "fmt"

// applyOverride sets one dotted configuration key. Only runtime-safe keys
// are accepted; storage layout keys require a new engine.
func applyOverride(cfg *Config, key string, value any) error {
	switch key {
	case "search.min_score":
		return setFloat(&cfg.Search.MinScore, key, value)
	case "search.max_results":
		return setInt(&cfg.Search.MaxResults, key, value)
	case "search.cache_ttl":
		return setInt(&cfg.Search.CacheTTL, key, value)
	case "search.enable_fuzzy":
		return setBool(&cfg.Search.EnableFuzzy, key, value)
	case "search.fuzzy_algorithm":
		return setString(&cfg.Search.FuzzyAlgorithm, key, value)
	case "search.fuzzy_correction_mode":
		return setBool(&cfg.Search.FuzzyCorrectionMode, key, value)
	case "search.correction_threshold":
		return setFloat(&cfg.Search.CorrectionThreshold, key, value)
	case "search.trigram_size":
		return setInt(&cfg.Search.TrigramSize, key, value)
	case "search.trigram_threshold":
		return setFloat(&cfg.Search.TrigramThreshold, key, value)
	case "search.jaro_winkler_threshold":
		return setFloat(&cfg.Search.JaroWinklerThreshold, key, value)
	case "search.levenshtein_threshold":
		return setInt(&cfg.Search.LevenshteinThreshold, key, value)
	case "search.max_fuzzy_variations":
		return setInt(&cfg.Search.MaxFuzzyVariations, key, value)
	case "search.min_term_frequency":
		return setInt(&cfg.Search.MinTermFrequency, key, value)
	case "search.indexed_terms_cache_ttl":
		return setInt(&cfg.Search.IndexedTermsCacheTTL, key, value)
	case "search.max_indexed_terms":
		return setInt(&cfg.Search.MaxIndexedTerms, key, value)
	case "search.fuzzy_last_token_only":
		return setBool(&cfg.Search.FuzzyLastTokenOnly, key, value)
	case "search.prefix_last_token":
		return setBool(&cfg.Search.PrefixLastToken, key, value)
	case "search.fuzzy_score_penalty":
		return setFloat(&cfg.Search.FuzzyScorePenalty, key, value)
	case "search.fuzzy_total_max_variations":
		return setInt(&cfg.Search.FuzzyTotalMaxVars, key, value)
	case "search.enable_synonyms":
		return setBool(&cfg.Search.EnableSynonyms, key, value)
	case "search.synonyms_case_sensitive":
		return setBool(&cfg.Search.SynonymsCaseSensitive, key, value)
	case "search.synonyms_max_expansions":
		return setInt(&cfg.Search.SynonymsMaxExpansions, key, value)
	case "search.enable_suggestions":
		return setBool(&cfg.Search.EnableSuggestions, key, value)
	case "search.enable_highlighting":
		return setBool(&cfg.Search.EnableHighlighting, key, value)
	case "search.highlight_tag":
		return setString(&cfg.Search.HighlightTag, key, value)
	case "search.highlight_tag_close":
		return setString(&cfg.Search.HighlightTagClose, key, value)
	case "search.snippet_length":
		return setInt(&cfg.Search.SnippetLength, key, value)
	case "search.distance_weight":
		return setFloat(&cfg.Search.DistanceWeight, key, value)
	case "search.distance_decay_k":
		return setFloat(&cfg.Search.DistanceDecayK, key, value)
	case "search.geo_units":
		return setString(&cfg.Search.GeoUnits, key, value)
	case "search.two_pass_search":
		return setBool(&cfg.Search.TwoPassSearch, key, value)
	case "search.primary_field_limit":
		return setInt(&cfg.Search.PrimaryFieldLimit, key, value)
	default:
		return fmt.Errorf("unknown or immutable config key %q", key)
	}
}

func setFloat(dst *float64, key string, value any) error {
	switch v := value.(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	default:
		return fmt.Errorf("config key %q wants a number, got %T", key, value)
	}
	return nil
}

func setInt(dst *int, key string, value any) error {
	switch v := value.(type) {
	case int:
		*dst = v
	case float64:
		*dst = int(v)
	default:
		return fmt.Errorf("config key %q wants an integer, got %T", key, value)
	}
	return nil
}

func setBool(dst *bool, key string, value any) error {
	v, ok := value.(bool)
	if !ok {
		return fmt.Errorf("config key %q wants a boolean, got %T", key, value)
	}
	*dst = v
	return nil
}

func setString(dst *string, key string, value any) error {
	v, ok := value.(string)
	if !ok {
		return fmt.Errorf("config key %q wants a string, got %T", key, value)
	}
	*dst = v
	return nil
}
