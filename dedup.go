package rpc

import (
	"encoding/json"
)

// dedupEntry represents one in-flight deduplicated call. Concurrent
// callers sharing a key block on done rather than re-issuing fn.
type dedupEntry struct {
	done   chan struct{}
	result json.RawMessage
	err    error
}

// withDedup ensures only one execution of fn is in flight for a given
// key at a time; concurrent callers with the same key share its
// result. The table entry is added before fn runs and removed in a
// deferred finalization step, so a panicking or erroring fn cannot
// leak the entry.
func withDedup(c *Client, key string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	c.dedupMu.Lock()
	if existing, ok := c.dedup[key]; ok {
		c.dedupMu.Unlock()
		<-existing.done
		return existing.result, existing.err
	}

	entry := &dedupEntry{done: make(chan struct{})}
	c.dedup[key] = entry
	c.dedupMu.Unlock()

	defer func() {
		c.dedupMu.Lock()
		delete(c.dedup, key)
		c.dedupMu.Unlock()
		close(entry.done)
	}()

	entry.result, entry.err = fn()
	return entry.result, entry.err
}

// deduplicationKey derives withDedup's table key from a call's path
// and input: "<path>:<stableStringify(input)>".
func deduplicationKey(path string, input any) (string, error) {
	s, err := stableStringify(input)
	if err != nil {
		return "", err
	}
	return path + ":" + s, nil
}

// stableStringify serializes v deterministically: primitives encode as
// plain JSON, arrays recursively, and objects with their keys sorted
// lexicographically. The round trip through the dynamic JSON
// representation (map[string]any/[]any/primitives) is what guarantees
// key order regardless of v's original Go field order — encoding/json
// always sorts map[string]any keys on Marshal.
func stableStringify(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}
