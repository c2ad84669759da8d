package domain

// AccessFilter decides record visibility for one caller role set.
type AccessFilter struct {
	roles map[string]struct{}
}

// NewAccessFilter builds a filter for roles. An empty role set is treated as {"all"}.
func NewAccessFilter(roles []string) AccessFilter {
	roles = NormalizeRoles(roles)
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return AccessFilter{roles: set}
}

// Allows reports whether a record with recordRoles is visible: the record
// carries the "all" wildcard or shares at least one role with the caller.
// Records persisted without roles count as {"all"}.
func (f AccessFilter) Allows(recordRoles []string) bool {
	if len(recordRoles) == 0 {
		return true
	}
	for _, r := range recordRoles {
		if r == RoleAll {
			return true
		}
		if _, ok := f.roles[r]; ok {
			return true
		}
	}
	return false
}
