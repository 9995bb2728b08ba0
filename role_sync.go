package auth

import "strings"

// RoleDelta lists the role store calls needed for an update
type RoleDelta struct {
	ToRemove []string
	ToAdd    []string
}

// Changed reports whether the update touches roles at all
func (d RoleDelta) Changed() bool {
	return len(d.ToRemove) > 0 || len(d.ToAdd) > 0
}

// SyncRoles computes a full replacement of the current roles. An empty
// request is a no-op, not a request to clear all roles. Roles present in
// both sets are still removed and added again.
func SyncRoles(current, requested []string) RoleDelta {
	requested = uniqueRoles(requested)
	if len(requested) == 0 {
		return RoleDelta{}
	}

	delta := RoleDelta{
		ToAdd: requested,
	}

	if len(current) > 0 {
		delta.ToRemove = make([]string, len(current))
		copy(delta.ToRemove, current)
	}

	return delta
}

func uniqueRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := NormalizeName(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
