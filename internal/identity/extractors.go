package identity

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Principal es lo que el verificador del provider deja pasar: claims ya
// validadas por firma, más el nombre del provider que las emitió.
type Principal struct {
	Provider string
	Claims   map[string]any
}

// Profile es la forma normalizada de un principal, independiente del provider.
type Profile struct {
	ID            string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	FullName      string
	PictureURL    string
}

// Extractor decodifica las claims de un provider.
type Extractor func(claims map[string]any) Profile

var (
	extractorsMu sync.RWMutex
	extractors   = map[string]Extractor{
		"oidc":      oidcExtractor,
		"auth0":     oidcExtractor,
		"google":    oidcExtractor,
		"github":    githubExtractor,
		"microsoft": microsoftExtractor,
	}
)

// RegisterExtractor agrega (o reemplaza) el extractor de un provider.
func RegisterExtractor(provider string, ex Extractor) {
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors[strings.ToLower(provider)] = ex
}

// KnownProvider indica si hay un extractor registrado para name; vacío = oidc.
func KnownProvider(name string) bool {
	_, ok := extractorFor(name)
	return ok
}

func extractorFor(name string) (Extractor, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "oidc"
	}
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()
	ex, ok := extractors[name]
	return ex, ok
}

// ExtractProfile elige el extractor por provider; vacío = oidc.
func ExtractProfile(p Principal) (Profile, error) {
	ex, ok := extractorFor(p.Provider)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, p.Provider)
	}
	return ex(p.Claims), nil
}

// OIDC estándar (google emite lo mismo).
func oidcExtractor(c map[string]any) Profile {
	return Profile{
		ID:            strClaim(c, "sub"),
		Email:         strClaim(c, "email"),
		EmailVerified: boolClaim(c, "email_verified"),
		FirstName:     strClaim(c, "given_name"),
		LastName:      strClaim(c, "family_name"),
		FullName:      strClaim(c, "name"),
		PictureURL:    strClaim(c, "picture"),
	}
}

// GitHub vía broker OIDC: id numérico, login y avatar_url.
func githubExtractor(c map[string]any) Profile {
	p := oidcExtractor(c)
	if p.ID == "" {
		p.ID = strClaim(c, "id")
	}
	if p.FullName == "" {
		p.FullName = strClaim(c, "login")
	}
	if p.PictureURL == "" {
		p.PictureURL = strClaim(c, "avatar_url")
	}
	if !p.EmailVerified {
		p.EmailVerified = boolClaim(c, "verified")
	}
	return p
}

// Entra ID: oid estable por tenant, email o preferred_username.
func microsoftExtractor(c map[string]any) Profile {
	p := oidcExtractor(c)
	if oid := strClaim(c, "oid"); oid != "" && p.ID == "" {
		p.ID = oid
	}
	if p.Email == "" {
		p.Email = strClaim(c, "preferred_username")
	}
	if !p.EmailVerified {
		p.EmailVerified = boolClaim(c, "xms_edov")
	}
	return p
}

func strClaim(m map[string]any, k string) string {
	switch v := m[k].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// boolClaim acepta bool o "true" (algunos providers lo mandan como string).
func boolClaim(m map[string]any, k string) bool {
	switch v := m[k].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}

// resolveNames: given/family, luego name partido por espacios, luego local
// part del email.
func resolveNames(p Profile) (first, last string) {
	if p.FirstName != "" || p.LastName != "" {
		return p.FirstName, p.LastName
	}
	if parts := strings.Fields(p.FullName); len(parts) > 0 {
		return parts[0], strings.Join(parts[1:], " ")
	}
	if at := strings.IndexByte(p.Email, '@'); at > 0 {
		return p.Email[:at], ""
	}
	return p.Email, ""
}
