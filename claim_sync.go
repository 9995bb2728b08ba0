package auth

import "strings"

// Well known claim types managed by the identity core
const (
	ClaimFirstName = "FirstName"
	ClaimLastName  = "LastName"
	ClaimFullName  = "FullName"
)

// Claim is a typed fact attached to a user
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ClaimSync is the outcome of a name change. Remove and Add list the
// store writes needed to go from the current claims to Claims.
type ClaimSync struct {
	Claims []Claim
	Remove []Claim
	Add    []Claim
}

// Changed reports whether any claim write is needed
func (s ClaimSync) Changed() bool {
	return len(s.Remove) > 0 || len(s.Add) > 0
}

// FullName derives the display name from first and last names
func FullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// NameClaims builds the claims for a new user. Empty names are skipped.
func NameClaims(first, last string) []Claim {
	claims := make([]Claim, 0, 3)
	if first != "" {
		claims = append(claims, Claim{Type: ClaimFirstName, Value: first})
	}
	if last != "" {
		claims = append(claims, Claim{Type: ClaimLastName, Value: last})
	}
	if full := FullName(first, last); full != "" {
		claims = append(claims, Claim{Type: ClaimFullName, Value: full})
	}
	return claims
}

// SyncNameClaims computes the claim set after a name update. A nil name was
// not requested and keeps its stored value. FullName is recomputed whenever
// either name is requested and dropped when both resolve to empty.
func SyncNameClaims(current []Claim, first, last *string) ClaimSync {
	out := ClaimSync{}

	if first == nil && last == nil {
		out.Claims = append(out.Claims, current...)
		return out
	}

	prevFirst, hasFirst := FindClaim(current, ClaimFirstName)
	prevLast, hasLast := FindClaim(current, ClaimLastName)
	prevFull, hasFull := FindClaim(current, ClaimFullName)

	resolvedFirst := prevFirst.Value
	resolvedLast := prevLast.Value

	if first != nil {
		if hasFirst {
			out.Remove = append(out.Remove, prevFirst)
		}
		resolvedFirst = *first
		out.Add = append(out.Add, Claim{Type: ClaimFirstName, Value: *first})
	}

	if last != nil {
		if hasLast {
			out.Remove = append(out.Remove, prevLast)
		}
		resolvedLast = *last
		out.Add = append(out.Add, Claim{Type: ClaimLastName, Value: *last})
	}

	if hasFull {
		out.Remove = append(out.Remove, prevFull)
	}

	if full := FullName(resolvedFirst, resolvedLast); full != "" {
		out.Add = append(out.Add, Claim{Type: ClaimFullName, Value: full})
	}

	for _, c := range current {
		if containsClaim(out.Remove, c) {
			continue
		}
		out.Claims = append(out.Claims, c)
	}
	out.Claims = append(out.Claims, out.Add...)

	return out
}

// FindClaim returns the first claim of the given type
func FindClaim(claims []Claim, claimType string) (Claim, bool) {
	for _, c := range claims {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

func containsClaim(claims []Claim, claim Claim) bool {
	for _, c := range claims {
		if c == claim {
			return true
		}
	}
	return false
}
