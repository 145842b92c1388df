package identity

import (
	"github.com/dropDatabas3/ironlog/internal/claims"
)

func rank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

// roleFromClaims lee "<ns>/role" (string) y, si no está, la variante legacy
// "<ns>/roles" (array; gana el rol de mayor privilegio reconocido). Nunca
// falla: sin claim o con claim inválida devuelve RoleUser y el motivo.
func roleFromClaims(c map[string]any, ns string) (Role, string) {
	if v, ok := c[claims.Role(ns)]; ok {
		s, isStr := v.(string)
		if !isStr {
			return RoleUser, "role_claim_not_string"
		}
		if r, ok := ParseRole(s); ok {
			return r, ""
		}
		return RoleUser, "role_claim_unknown"
	}

	v, ok := c[claims.LegacyRoles(ns)]
	if !ok {
		return RoleUser, "role_claim_absent"
	}
	var list []string
	switch t := v.(type) {
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok {
				list = append(list, s)
			}
		}
	case []string:
		list = t
	case string:
		list = []string{t}
	default:
		return RoleUser, "roles_claim_malformed"
	}
	best := Role("")
	for _, s := range list {
		if r, ok := ParseRole(s); ok && rank(r) > rank(best) {
			best = r
		}
	}
	if best == "" {
		return RoleUser, "roles_claim_unknown"
	}
	return best, ""
}
