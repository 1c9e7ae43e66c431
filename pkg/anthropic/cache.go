package anthropic

// CachedSystem wraps a system prompt in a single block with a cache
// breakpoint, so consecutive per-item calls reuse the prompt prefix.
func CachedSystem(text, ttl string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: ttl},
	}}
}
