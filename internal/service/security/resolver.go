// Package security implements the access-control stack: grant priority
// resolution, row-policy filter building, cell override evaluation, and the
// per-request authorization snapshot they all read from.
package security

import (
	"sort"

	"gridbase/internal/domain"
)

// Identity is the actor as seen by the resolver: the user id plus the role
// binding from the base membership. Bypass is set for owner/manager roles,
// ViewerOnly for the built-in viewer role.
type Identity struct {
	UserID     string
	RoleID     string
	RoleName   string
	Bypass     bool
	ViewerOnly bool
}

// Anonymous reports whether the identity carries no authenticated user.
func (id Identity) Anonymous() bool { return id.UserID == "" }

// PermissionResolver picks the effective grant for one scope (table,
// column, or cell) from the set of grants fetched for that scope.
type PermissionResolver struct{}

// NewPermissionResolver creates a PermissionResolver. The resolver is
// stateless; it exists as a value so the pipeline receives it by explicit
// injection at construction time.
func NewPermissionResolver() *PermissionResolver {
	return &PermissionResolver{}
}

// Resolve returns the effective grant for the scope the given grants were
// fetched for.
//
// Owner/manager identities short-circuit to full access without consulting
// grants. Anonymous identities are denied. Otherwise the grants addressing
// the identity are ranked by target specificity (specific_user >
// specific_role > all_members); the sort is stable over the repository's
// creation order, so ties within a bucket resolve to the earliest-created
// grant. Only the winner's explicitly-set fields apply; unset fields and
// the no-grant case fall through to the open defaults.
func (r *PermissionResolver) Resolve(grants []domain.Grant, id Identity) domain.EffectiveGrant {
	if id.Bypass {
		return domain.FullAccess()
	}
	if id.Anonymous() {
		return domain.DeniedGrant()
	}

	addressed := make([]domain.Grant, 0, len(grants))
	for _, g := range grants {
		if g.Addresses(id.UserID, id.RoleID, id.RoleName) {
			addressed = append(addressed, g)
		}
	}
	if len(addressed) == 0 {
		return r.applyRole(domain.OpenGrant(), id)
	}

	sort.SliceStable(addressed, func(i, j int) bool {
		return domain.TargetRank(addressed[i].TargetType) > domain.TargetRank(addressed[j].TargetType)
	})
	winner := addressed[0]

	eff := domain.OpenGrant()
	if winner.CanView != nil {
		eff.CanView = *winner.CanView
	}
	if winner.CanEdit != nil {
		eff.CanEdit = *winner.CanEdit
	}
	if winner.CanEditStructure != nil {
		eff.CanEditStructure = *winner.CanEditStructure
	}
	if winner.IsHidden != nil {
		eff.IsHidden = *winner.IsHidden
	}
	return r.applyRole(eff, id)
}

// applyRole clamps the effective grant to what the actor's built-in role
// allows: viewers never edit, regardless of grants.
func (r *PermissionResolver) applyRole(eff domain.EffectiveGrant, id Identity) domain.EffectiveGrant {
	if id.ViewerOnly {
		eff.CanEdit = false
		eff.CanEditStructure = false
	}
	return eff
}
