// Package approval builds approval chains from a transfer's classification
// and resolves which chain item may be decided next.
package approval

import (
	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Policy holds the rules that shape a chain. None of the values are
// hard-coded in the pipeline; they come from configuration.
type Policy struct {
	// Baseline is the ordered chain every transfer starts from.
	Baseline []model.Role
	// ExtraReview categories get data_team inserted before line_producer.
	ExtraReview map[model.Category]bool
	// AutoApprove categories skip the chain entirely.
	AutoApprove map[model.Category]bool
	// MinRejectReason is the minimum rejection reason length in characters.
	MinRejectReason int
}

// DefaultPolicy mirrors the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Baseline: []model.Role{model.RoleTeamLead, model.RoleSupervisor, model.RoleLineProducer},
		ExtraReview: map[model.Category]bool{
			model.CategoryVFXAssets: true,
			model.CategoryFX:        true,
		},
		AutoApprove:     map[model.Category]bool{},
		MinRejectReason: 10,
	}
}

// Build returns the ordered roles required for a transfer. It is a pure
// function of its inputs.
func (p Policy) Build(category model.Category, priority model.Priority) ([]model.Role, error) {
	if !category.Valid() {
		return nil, model.InvalidClassificationf("unknown category %q", category)
	}
	if !priority.Valid() {
		return nil, model.InvalidClassificationf("unknown priority %q", priority)
	}
	if p.AutoApprove[category] {
		return []model.Role{}, nil
	}
	if len(p.Baseline) == 0 {
		return nil, model.InvalidClassificationf("no approval chain configured for %q", category)
	}
	chain := make([]model.Role, 0, len(p.Baseline)+1)
	inserted := false
	for _, role := range p.Baseline {
		if role == model.RoleLineProducer && p.ExtraReview[category] && !inserted {
			chain = append(chain, model.RoleDataTeam)
			inserted = true
		}
		chain = append(chain, role)
	}
	if p.ExtraReview[category] && !inserted {
		chain = append(chain, model.RoleDataTeam)
	}
	return dedupe(chain), nil
}

// Materialize turns roles into pending chain items.
func Materialize(roles []model.Role) []model.ApprovalChainItem {
	items := make([]model.ApprovalChainItem, len(roles))
	for i, role := range roles {
		items[i] = model.ApprovalChainItem{Role: role, Status: model.ApprovalPending}
	}
	return items
}

// Validate checks the policy can produce legal chains.
func (p Policy) Validate() error {
	seen := map[model.Role]bool{}
	for _, role := range p.Baseline {
		if _, ok := model.PendingStatus(role); !ok {
			return model.Validationf("role %q cannot hold an approval stage", role)
		}
		if seen[role] {
			return model.Validationf("role %q appears twice in the baseline chain", role)
		}
		seen[role] = true
	}
	for c := range p.ExtraReview {
		if !c.Valid() {
			return model.Validationf("unknown extra-review category %q", c)
		}
	}
	for c := range p.AutoApprove {
		if !c.Valid() {
			return model.Validationf("unknown auto-approve category %q", c)
		}
	}
	if p.MinRejectReason < 0 {
		return model.Validationf("minimum rejection reason must not be negative")
	}
	return nil
}

// a role appears at most once in a chain
func dedupe(roles []model.Role) []model.Role {
	seen := make(map[model.Role]bool, len(roles))
	out := roles[:0]
	for _, r := range roles {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
