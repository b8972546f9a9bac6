package config

// Default returns a config that works out of the box on a device with no
// generative runtime installed.
func Default() Config {
	return Config{
		Store: Store{
			Path: "messages.sqlite",
		},
		Runtime: Runtime{
			BaseURL:      "http://127.0.0.1:8930",
			ChatModel:    "assistant-chat-small",
			EmbedModel:   "assistant-embed-small",
			EmbedVersion: 1,
		},
		Index: Index{
			BatchSize:       100,
			IntervalSeconds: 5,
			SearchPageSize:  200,
			QueryCacheSize:  256,
		},
		Chat: Chat{
			MaxContextMessages: 10,
		},
	}
}
