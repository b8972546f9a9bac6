package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks field constraints. Errors carry actionable messages so the
// CLI can print them and exit without a stack trace.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("config: store.path must not be empty")
	}
	if cfg.Runtime.BaseURL != "" {
		u, err := url.Parse(cfg.Runtime.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: runtime.base_url %q is not a valid URL", cfg.Runtime.BaseURL)
		}
	}
	if cfg.Runtime.EmbedVersion < 1 {
		return fmt.Errorf("config: runtime.embed_version must be >= 1, got %d", cfg.Runtime.EmbedVersion)
	}
	if cfg.Index.BatchSize < 1 {
		return fmt.Errorf("config: index.batch_size must be >= 1, got %d", cfg.Index.BatchSize)
	}
	if cfg.Index.IntervalSeconds < 1 {
		return fmt.Errorf("config: index.interval_seconds must be >= 1, got %d", cfg.Index.IntervalSeconds)
	}
	if cfg.Index.SearchPageSize < 1 {
		return fmt.Errorf("config: index.search_page_size must be >= 1, got %d", cfg.Index.SearchPageSize)
	}
	if cfg.Index.QueryCacheSize < 1 {
		return fmt.Errorf("config: index.query_cache_size must be >= 1, got %d", cfg.Index.QueryCacheSize)
	}
	if cfg.Chat.MaxContextMessages < 1 {
		return fmt.Errorf("config: chat.max_context_messages must be >= 1, got %d", cfg.Chat.MaxContextMessages)
	}
	return nil
}
