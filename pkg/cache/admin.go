package cache

import "context"

// PolicyDescription is one row of the policy introspection output.
type PolicyDescription struct {
	Category string `json:"category"`
	Rule     string `json:"rule"`
}

// Admin exposes the operator-facing cache operations consumed by the
// routing layer. Access control is the routing layer's responsibility.
type Admin struct {
	store  *Store
	policy *Policy
}

// NewAdmin creates the admin surface over a store and its policy.
func NewAdmin(store *Store, policy *Policy) *Admin {
	return &Admin{store: store, policy: policy}
}

// DescribePolicy returns the full TTL table in a human-readable form,
// plus the default rule. Read-only, never fails.
func (a *Admin) DescribePolicy() []PolicyDescription {
	all := a.policy.All()
	out := make([]PolicyDescription, 0, len(all)+1)
	for _, cr := range all {
		out = append(out, PolicyDescription{Category: cr.Category, Rule: cr.Rule.Describe()})
	}
	out = append(out, PolicyDescription{Category: "(default)", Rule: a.policy.Default().Describe()})
	return out
}

// Clear wipes the backing store.
func (a *Admin) Clear(ctx context.Context) error {
	return a.store.Clear(ctx)
}

// Statistics returns backing-store statistics.
func (a *Admin) Statistics(ctx context.Context) (Stats, error) {
	return a.store.Statistics(ctx)
}
