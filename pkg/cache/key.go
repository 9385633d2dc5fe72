package cache

import (
	"strconv"
	"strings"
)

// keyPrefix namespaces every key this proxy writes, so a shared Redis
// database can hold other applications' data without collisions.
const keyPrefix = "yfin"

// Key identifies one cache unit: an endpoint category plus its resolved,
// normalized argument values.
type Key struct {
	Category string
	Args     []string
}

// BuildKey derives the cache key for a category and its ordered arguments.
// Arguments are normalized (trimmed, lowercased, numbers canonicalized) so
// that equivalent requests collide on purpose: "AAPL" and " aapl " map to
// the same key. Pure function, stable across restarts.
func BuildKey(category string, args ...string) Key {
	normalized := make([]string, len(args))
	for i, arg := range args {
		normalized[i] = normalizeArg(arg)
	}
	return Key{Category: strings.TrimSpace(strings.ToLower(category)), Args: normalized}
}

// String renders the key in its Redis form.
// Format: yfin:<category>:<arg>:<arg>...
//
// Example:
//
//	yfin:ticker-history:aapl:1y:1d
func (k Key) String() string {
	parts := make([]string, 0, len(k.Args)+2)
	parts = append(parts, keyPrefix, k.Category)
	parts = append(parts, k.Args...)
	return strings.Join(parts, ":")
}

// normalizeArg canonicalizes a single argument value. Numeric arguments are
// reformatted so "1.50", "1.5" and "01.5" yield one representation. The
// escape character and the separator are escaped, in that order, to keep
// distinct argument lists injective: "a:b" and "a%3ab" must not collide.
func normalizeArg(arg string) string {
	s := strings.ToLower(strings.TrimSpace(arg))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, ":", "%3a")
}
