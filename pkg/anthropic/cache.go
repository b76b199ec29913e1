package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. Repeated extraction attempts for the same run share the prompt,
// so every attempt after the first reads it from cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
