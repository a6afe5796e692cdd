package supabase

import (
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	KeyFormatJWT    = "jwt"
	KeyFormatOpaque = "opaque"

	RoleServiceRole = "service_role"
)

type apiKeyClaims struct {
	Role string `json:"role"`
	Ref  string `json:"ref"`
	jwt.RegisteredClaims
}

// KeyInfo describes a Supabase API key. Legacy keys are JWTs carrying the
// project ref and Postgres role; newer publishable/secret keys are opaque.
type KeyInfo struct {
	Format    string
	Role      string
	Ref       string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectAPIKey decodes the key claims without verifying the signature.
func InspectAPIKey(key string) KeyInfo {
	key = strings.TrimSpace(key)
	claims := &apiKeyClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return KeyInfo{Format: KeyFormatOpaque}
	}

	info := KeyInfo{
		Format: KeyFormatJWT,
		Role:   claims.Role,
		Ref:    claims.Ref,
		Issuer: claims.Issuer,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return info
}

func (k KeyInfo) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !k.ExpiresAt.After(now)
}

// ProjectRefFromURL extracts <ref> from https://<ref>.supabase.co.
// Custom domains and local instances yield "".
func ProjectRefFromURL(baseURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	for _, suffix := range []string{".supabase.co", ".supabase.in"} {
		if ref, ok := strings.CutSuffix(host, suffix); ok && ref != "" && !strings.Contains(ref, ".") {
			return ref
		}
	}
	return ""
}

// KeyWarnings lists problems worth surfacing before any request is made.
func KeyWarnings(info KeyInfo, baseURL string, now time.Time) []string {
	if info.Format != KeyFormatJWT {
		return nil
	}

	var out []string
	if info.Expired(now) {
		out = append(out, "api key expired at "+info.ExpiresAt.Format(time.RFC3339))
	}
	if ref := ProjectRefFromURL(baseURL); ref != "" && info.Ref != "" && ref != info.Ref {
		out = append(out, "api key belongs to project "+info.Ref+" but SUPABASE_URL points at "+ref)
	}
	if info.Role == RoleServiceRole {
		out = append(out, "service_role key bypasses row level security")
	}
	return out
}
