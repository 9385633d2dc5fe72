package cache

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TTL tiers. Financial data clusters into a handful of volatilities, from
// search results that go stale in minutes to ISIN-style metadata that is
// effectively static.
const (
	TTLVolatile  = 30 * time.Minute     // search results, market status
	TTLDaily     = 24 * time.Hour       // prices, financials, news, recommendations
	TTLWeekly    = 7 * 24 * time.Hour   // holders, calendar, splits
	TTLMonthly   = 30 * 24 * time.Hour  // sustainability / ESG
	TTLQuarterly = 90 * 24 * time.Hour  // info, ISIN, sector metadata

	// DefaultTTL applies to categories the table does not know about.
	DefaultTTL = time.Hour
)

// Rule describes when entries of a category expire: after a fixed duration,
// or at the next UTC midnight, whichever the category calls for.
type Rule struct {
	// TTL is the fixed lifetime of an entry.
	TTL time.Duration

	// AtMidnightUTC overrides TTL with "expire at the next 00:00 UTC".
	// All entries written on the same UTC day then expire together, which
	// bounds staleness to 24h and aligns invalidation across entries.
	AtMidnightUTC bool
}

// TTLAt resolves the rule into a concrete duration for an entry inserted at
// the given instant.
func (r Rule) TTLAt(now time.Time) time.Duration {
	if r.AtMidnightUTC {
		return NextMidnightUTC(now).Sub(now)
	}
	return r.TTL
}

// Describe renders the rule for operators and the policy endpoint.
func (r Rule) Describe() string {
	if r.AtMidnightUTC {
		return "until next 00:00 UTC"
	}
	return r.TTL.String()
}

// NextMidnightUTC returns the first UTC midnight strictly after now.
func NextMidnightUTC(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// CategoryRule pairs a category with its rule, for ordered introspection.
type CategoryRule struct {
	Category string
	Rule     Rule
}

// Policy is the immutable TTL table. Built once at startup and passed by
// reference into the interceptor and admin surface; it has no setters.
type Policy struct {
	rules       map[string]Rule
	order       []string
	defaultRule Rule
}

// NewPolicy builds the standard policy table. The default rule covers
// categories the table does not name; a zero defaultTTL falls back to
// DefaultTTL.
func NewPolicy(defaultTTL time.Duration) *Policy {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	p := &Policy{
		rules:       make(map[string]Rule),
		defaultRule: Rule{TTL: defaultTTL},
	}

	midnight := Rule{TTL: TTLDaily, AtMidnightUTC: true}

	p.add("ticker-info", Rule{TTL: TTLQuarterly})
	p.add("ticker-isin", Rule{TTL: TTLQuarterly})
	p.add("ticker-history", midnight)
	p.add("ticker-financials", midnight)
	p.add("ticker-dividends", midnight)
	p.add("ticker-actions", midnight)
	p.add("ticker-news", midnight)
	p.add("ticker-recommendations", midnight)
	p.add("ticker-calendar", Rule{TTL: TTLWeekly})
	p.add("ticker-holders", Rule{TTL: TTLWeekly})
	p.add("ticker-splits", Rule{TTL: TTLWeekly})
	p.add("ticker-sustainability", Rule{TTL: TTLMonthly})
	p.add("indicator-sma", midnight)
	p.add("indicator-rsi", midnight)
	p.add("multi-ticker", Rule{TTL: TTLQuarterly})
	p.add("search-quotes", Rule{TTL: TTLVolatile})
	p.add("search-news", Rule{TTL: TTLVolatile})
	p.add("market-status", Rule{TTL: TTLVolatile})
	p.add("market-summary", Rule{TTL: TTLVolatile})
	p.add("sector-overview", Rule{TTL: TTLWeekly})
	p.add("sector-key", Rule{TTL: TTLQuarterly})
	p.add("industry-overview", Rule{TTL: TTLWeekly})

	return p
}

func (p *Policy) add(category string, rule Rule) {
	if _, exists := p.rules[category]; !exists {
		p.order = append(p.order, category)
	}
	p.rules[category] = rule
}

// Lookup returns the rule for a category. Unknown categories get the
// default rule; lookup never fails.
func (p *Policy) Lookup(category string) Rule {
	if rule, ok := p.rules[category]; ok {
		return rule
	}
	return p.defaultRule
}

// Default returns the fallback rule for unknown categories.
func (p *Policy) Default() Rule {
	return p.defaultRule
}

// All returns every (category, rule) pair in insertion order.
func (p *Policy) All() []CategoryRule {
	out := make([]CategoryRule, len(p.order))
	for i, category := range p.order {
		out[i] = CategoryRule{Category: category, Rule: p.rules[category]}
	}
	return out
}

// policyOverride is the YAML form of one rule override.
type policyOverride struct {
	TTL           string `yaml:"ttl"`
	AtMidnightUTC bool   `yaml:"midnight_utc"`
}

// LoadOverrides applies per-category rule overrides from a YAML document of
// the form:
//
//	ticker-news:
//	  ttl: 6h
//	search-quotes:
//	  ttl: 24h
//	  midnight_utc: true
//
// Overrides are applied during startup, before the policy is shared.
func (p *Policy) LoadOverrides(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read policy overrides: %w", err)
	}

	overrides := make(map[string]policyOverride)
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("parse policy overrides: %w", err)
	}

	for category, o := range overrides {
		rule := Rule{AtMidnightUTC: o.AtMidnightUTC}
		if o.TTL != "" {
			ttl, err := time.ParseDuration(o.TTL)
			if err != nil {
				return fmt.Errorf("policy override %q: %w", category, err)
			}
			rule.TTL = ttl
		} else if o.AtMidnightUTC {
			rule.TTL = TTLDaily
		} else {
			return fmt.Errorf("policy override %q: ttl or midnight_utc required", category)
		}
		p.add(category, rule)
	}
	return nil
}

// LoadOverridesFile applies overrides from a YAML file.
func (p *Policy) LoadOverridesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open policy overrides: %w", err)
	}
	defer f.Close()
	return p.LoadOverrides(f)
}
