package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/platform/logging"
	"github.com/riskibarqy/orbito-profiles/internal/usecase"
)

const (
	StoreREST     = "rest"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config stores runtime configuration for one provisioning run.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	LogLevel       logging.Level
	LogFormat      logging.Format

	Store        string
	ProfileTable string

	SupabaseURL                   string
	SupabaseKey                   string
	SupabaseSchema                string
	SupabaseTimeout               time.Duration
	SupabaseCircuitEnabled        bool
	SupabaseCircuitFailureCount   int
	SupabaseCircuitOpenTimeout    time.Duration
	SupabaseCircuitHalfOpenMaxReq int

	DBURL                   string
	DBDisablePreparedBinary bool

	ProfileID         string
	ProfileFields     profile.Fields
	ReadFailurePolicy usecase.ReadFailurePolicy
	InsertMode        profile.InsertMode

	UptraceEnabled bool
	UptraceDSN     string
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	logFormat, err := parseLogFormat(getEnv("LOG_FORMAT", string(logging.FormatJSON)))
	if err != nil {
		return Config{}, err
	}

	store := strings.ToLower(strings.TrimSpace(getEnv("PROFILE_STORE", StoreREST)))
	switch store {
	case StoreREST, StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("invalid PROFILE_STORE %q: valid values are %s, %s, %s", store, StoreREST, StorePostgres, StoreMemory)
	}

	supabaseURL := strings.TrimSpace(getEnv("SUPABASE_URL", ""))
	supabaseKey := strings.TrimSpace(getEnv("SUPABASE_KEY", ""))
	if store == StoreREST {
		if supabaseURL == "" {
			return Config{}, fmt.Errorf("SUPABASE_URL is required when PROFILE_STORE=%s", StoreREST)
		}
		if supabaseKey == "" {
			return Config{}, fmt.Errorf("SUPABASE_KEY is required when PROFILE_STORE=%s", StoreREST)
		}
	}

	supabaseTimeout, err := time.ParseDuration(getEnv("SUPABASE_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SUPABASE_TIMEOUT: %w", err)
	}
	if supabaseTimeout <= 0 {
		return Config{}, fmt.Errorf("SUPABASE_TIMEOUT must be > 0")
	}

	supabaseCircuitEnabled, err := strconv.ParseBool(getEnv("SUPABASE_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SUPABASE_CIRCUIT_ENABLED: %w", err)
	}
	supabaseCircuitFailureCount, err := getEnvAsInt("SUPABASE_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse SUPABASE_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if supabaseCircuitFailureCount <= 0 {
		return Config{}, fmt.Errorf("SUPABASE_CIRCUIT_FAILURE_COUNT must be > 0")
	}
	supabaseCircuitOpenTimeout, err := time.ParseDuration(getEnv("SUPABASE_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SUPABASE_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if supabaseCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("SUPABASE_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	supabaseCircuitHalfOpenMaxReq, err := getEnvAsInt("SUPABASE_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse SUPABASE_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if supabaseCircuitHalfOpenMaxReq <= 0 {
		return Config{}, fmt.Errorf("SUPABASE_CIRCUIT_HALF_OPEN_MAX_REQ must be > 0")
	}

	dbURL := strings.TrimSpace(getEnv("DB_URL", ""))
	if store == StorePostgres && dbURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required when PROFILE_STORE=%s", StorePostgres)
	}
	dbDisablePreparedBinary, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	profileID := strings.TrimSpace(getEnv("PROFILE_ID", ""))
	if profileID == "" {
		return Config{}, fmt.Errorf("PROFILE_ID is required")
	}
	profileEmail := strings.TrimSpace(getEnv("PROFILE_EMAIL", ""))
	if profileEmail == "" {
		return Config{}, fmt.Errorf("PROFILE_EMAIL is required")
	}

	readFailurePolicy := usecase.ReadFailurePolicy(strings.ToLower(strings.TrimSpace(getEnv("PROFILE_READ_FAILURE_POLICY", string(usecase.ReadFailureContinue)))))
	if !readFailurePolicy.Valid() {
		return Config{}, fmt.Errorf("invalid PROFILE_READ_FAILURE_POLICY %q: valid values are %s, %s", readFailurePolicy, usecase.ReadFailureContinue, usecase.ReadFailureAbort)
	}
	insertMode := profile.InsertMode(strings.ToLower(strings.TrimSpace(getEnv("PROFILE_INSERT_MODE", string(profile.InsertModeStrict)))))
	if !insertMode.Valid() {
		return Config{}, fmt.Errorf("invalid PROFILE_INSERT_MODE %q: valid values are %s, %s", insertMode, profile.InsertModeStrict, profile.InsertModeIgnoreDuplicates)
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	return Config{
		AppEnv:                        appEnv,
		ServiceName:                   getEnv("APP_SERVICE_NAME", "orbito-profile-provisioner"),
		ServiceVersion:                getEnv("APP_SERVICE_VERSION", "dev"),
		LogLevel:                      logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
		LogFormat:                     logFormat,
		Store:                         store,
		ProfileTable:                  strings.TrimSpace(getEnv("PROFILE_TABLE", "profiles")),
		SupabaseURL:                   supabaseURL,
		SupabaseKey:                   supabaseKey,
		SupabaseSchema:                strings.TrimSpace(getEnv("SUPABASE_SCHEMA", "public")),
		SupabaseTimeout:               supabaseTimeout,
		SupabaseCircuitEnabled:        supabaseCircuitEnabled,
		SupabaseCircuitFailureCount:   supabaseCircuitFailureCount,
		SupabaseCircuitOpenTimeout:    supabaseCircuitOpenTimeout,
		SupabaseCircuitHalfOpenMaxReq: supabaseCircuitHalfOpenMaxReq,
		DBURL:                         dbURL,
		DBDisablePreparedBinary:       dbDisablePreparedBinary,
		ProfileID:                     profileID,
		ProfileFields: profile.Fields{
			Email:      profileEmail,
			FullName:   strings.TrimSpace(os.Getenv("PROFILE_FULL_NAME")),
			Role:       strings.TrimSpace(os.Getenv("PROFILE_ROLE")),
			Department: strings.TrimSpace(os.Getenv("PROFILE_DEPARTMENT")),
			Position:   strings.TrimSpace(os.Getenv("PROFILE_POSITION")),
		},
		ReadFailurePolicy: readFailurePolicy,
		InsertMode:        insertMode,
		UptraceEnabled:    uptraceEnabled,
		UptraceDSN:        uptraceDSN,
	}, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func parseLogFormat(v string) (logging.Format, error) {
	format := logging.Format(strings.ToLower(strings.TrimSpace(v)))
	switch format {
	case logging.FormatJSON, logging.FormatConsole:
		return format, nil
	default:
		return "", fmt.Errorf("invalid LOG_FORMAT %q: valid values are %s, %s", v, logging.FormatJSON, logging.FormatConsole)
	}
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	for _, item := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "uptrace-dsn") {
			return strings.Trim(strings.TrimSpace(value), "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
