package config

// Config is the assistant backend's full configuration tree. File values use
// TOML; every field has a working default so a missing config file is not an
// error.
type Config struct {
	Store   Store   `toml:"store"`
	Runtime Runtime `toml:"runtime"`
	Index   Index   `toml:"index"`
	Chat    Chat    `toml:"chat"`
}

type Store struct {
	// Path is the SQLite database location.
	Path string `toml:"path"`
}

// Runtime configures the local generative runtime. The runtime is optional;
// when it is unreachable the assistant runs on the deterministic fallback.
type Runtime struct {
	BaseURL    string `toml:"base_url"`
	ChatModel  string `toml:"chat_model"`
	EmbedModel string `toml:"embed_model"`

	// EmbedVersion identifies the vector space. Operators must advance it
	// together with EmbedModel so stale vectors are re-embedded instead of
	// compared across models.
	EmbedVersion int `toml:"embed_version"`
}

type Index struct {
	BatchSize       int `toml:"batch_size"`
	IntervalSeconds int `toml:"interval_seconds"`
	SearchPageSize  int `toml:"search_page_size"`
	QueryCacheSize  int `toml:"query_cache_size"`
}

type Chat struct {
	MaxContextMessages int `toml:"max_context_messages"`
}
