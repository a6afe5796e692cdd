package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultDBName          = "postgres"
	supabasePoolerSuffix   = ".pooler.supabase.com"
	supabaseDirectSuffix   = ".supabase.co"
	poolerTransactionPort  = "6543"
	preparedBinaryResult   = "disable_prepared_binary_result"
	maxTracedQueryLength   = 256
	supabasePoolerUserName = "postgres"
)

type PoolMode string

const (
	PoolModeNone        PoolMode = ""
	PoolModeSession     PoolMode = "session"
	PoolModeTransaction PoolMode = "transaction"
)

// ConnInfo describes a profile store connection URL.
type ConnInfo struct {
	DSN        string
	Redacted   string
	DBName     string
	ProjectRef string
	PoolMode   PoolMode
}

func (c ConnInfo) Pooled() bool {
	return c.PoolMode != PoolModeNone
}

// ParseDBURL validates a postgres:// URL and recognizes the Supabase direct
// and pooler host forms. Transaction pooling cannot keep prepared statements
// across queries, so the binary result flag is always set for it.
func ParseDBURL(raw string, disablePreparedBinary bool) (ConnInfo, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ConnInfo{}, fmt.Errorf("parse DB_URL: %w", err)
	}
	switch parsed.Scheme {
	case "postgres", "postgresql":
	default:
		return ConnInfo{}, fmt.Errorf("DB_URL must use the postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ConnInfo{}, fmt.Errorf("DB_URL has no host")
	}

	info := ConnInfo{DBName: strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/"))}
	if info.DBName == "" {
		info.DBName = defaultDBName
	}

	user := parsed.User.Username()
	switch {
	case strings.HasSuffix(host, supabasePoolerSuffix):
		info.PoolMode = PoolModeSession
		if parsed.Port() == poolerTransactionPort {
			info.PoolMode = PoolModeTransaction
		}
		// The pooler routes on the project ref carried in the user name.
		name, ref, ok := strings.Cut(user, ".")
		if !ok || name == "" || ref == "" {
			return ConnInfo{}, fmt.Errorf("supabase pooler user must look like %s.<project-ref>, got %q", supabasePoolerUserName, user)
		}
		info.ProjectRef = ref
	case strings.HasPrefix(host, "db.") && strings.HasSuffix(host, supabaseDirectSuffix):
		info.ProjectRef = strings.TrimSuffix(strings.TrimPrefix(host, "db."), supabaseDirectSuffix)
	}

	if disablePreparedBinary || info.PoolMode == PoolModeTransaction {
		query := parsed.Query()
		if query.Get(preparedBinaryResult) == "" {
			query.Set(preparedBinaryResult, "yes")
			parsed.RawQuery = query.Encode()
		}
	}

	info.DSN = parsed.String()
	info.Redacted = parsed.Redacted()
	return info, nil
}

// FormatQueryForTrace collapses whitespace so traced statements stay on one line.
func FormatQueryForTrace(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if len(normalized) <= maxTracedQueryLength {
		return normalized
	}
	return normalized[:maxTracedQueryLength] + "..."
}
