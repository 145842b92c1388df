package claims

import "strings"

const devNSFallback = "https://ironlog.local/claims"

// Namespace normaliza el namespace de custom claims del provider.
// Ej: "https://ironlog.example/claims/" -> "https://ironlog.example/claims"
func Namespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return devNSFallback // sólo dev
	}
	return strings.TrimRight(ns, "/")
}

// Role es la claim namespaced con el rol (string).
func Role(ns string) string { return Namespace(ns) + "/role" }

// LegacyRoles es la variante plural (array) que emiten tenants viejos.
func LegacyRoles(ns string) string { return Namespace(ns) + "/roles" }
