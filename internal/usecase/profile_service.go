package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReadFailurePolicy decides what happens when the existence check errors.
type ReadFailurePolicy string

const (
	// ReadFailureContinue treats an unconfirmed read as absent and attempts the insert.
	ReadFailureContinue ReadFailurePolicy = "continue"
	// ReadFailureAbort stops before writing and returns ErrProfileReadFailed.
	ReadFailureAbort ReadFailurePolicy = "abort"
)

func (p ReadFailurePolicy) Valid() bool {
	return p == ReadFailureContinue || p == ReadFailureAbort
}

type ProfileServiceConfig struct {
	InsertMode        profile.InsertMode
	ReadFailurePolicy ReadFailurePolicy
}

type EnsureProfileInput struct {
	ID     string `validate:"required"`
	Fields profile.Fields
}

// ProfileService provisions a single profile row with read-or-create semantics.
type ProfileService struct {
	repo              profile.Repository
	insertMode        profile.InsertMode
	readFailurePolicy ReadFailurePolicy
	validator         *validator.Validate
	logger            *logging.Logger
	now               func() time.Time
}

func NewProfileService(repo profile.Repository, cfg ProfileServiceConfig, logger *logging.Logger) *ProfileService {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.InsertMode.Valid() {
		cfg.InsertMode = profile.InsertModeStrict
	}
	if !cfg.ReadFailurePolicy.Valid() {
		cfg.ReadFailurePolicy = ReadFailureContinue
	}

	return &ProfileService{
		repo:              repo,
		insertMode:        cfg.InsertMode,
		readFailurePolicy: cfg.ReadFailurePolicy,
		validator:         validator.New(),
		logger:            logger,
		now:               time.Now,
	}
}

// EnsureProfile returns the row for input.ID, creating it when absent.
// A zero Record and OutcomeNone accompany every non-nil error.
func (s *ProfileService) EnsureProfile(ctx context.Context, input EnsureProfileInput) (profile.Record, profile.Outcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ProfileService.EnsureProfile")
	defer span.End()

	input = normalizeEnsureProfileInput(input)
	if err := s.validateInput(ctx, input); err != nil {
		return profile.Record{}, profile.OutcomeNone, err
	}

	span.SetAttributes(
		attribute.String("profile.id", input.ID),
		attribute.String("profile.insert_mode", string(s.insertMode)),
	)
	logger := s.logger.With("profile_id", input.ID)
	logger.InfoContext(ctx, "ensuring profile", "email", input.Fields.Email)

	existing, found, readErr := s.repo.GetByID(ctx, input.ID)
	switch {
	case readErr != nil && s.readFailurePolicy == ReadFailureAbort:
		logger.ErrorContext(ctx, "could not check existing profile", "error", readErr)
		span.RecordError(readErr)
		span.SetStatus(codes.Error, "read failed")
		return profile.Record{}, profile.OutcomeNone, fmt.Errorf("%w: %w", ErrProfileReadFailed, readErr)
	case readErr != nil:
		logger.WarnContext(ctx, "could not check existing profile, attempting insert", "error", readErr)
	case found:
		logger.InfoContext(ctx, "profile already exists", recordLogArgs(existing)...)
		span.SetAttributes(attribute.String("profile.outcome", string(profile.OutcomeExisting)))
		return existing, profile.OutcomeExisting, nil
	}

	record := profile.NewRecord(input.ID, input.Fields, s.now())
	logger.InfoContext(ctx, "creating profile", "created_at", record.CreatedAt)

	created, echoed, err := s.repo.Insert(ctx, record, s.insertMode)
	if err != nil {
		writeErr := fmt.Errorf("%w: %w", ErrProfileWriteFailed, err)
		if readErr != nil {
			writeErr = crerr.WithSecondaryError(writeErr, readErr)
		}
		logger.ErrorContext(ctx, "profile creation failed", "error", err)
		span.RecordError(writeErr)
		span.SetStatus(codes.Error, "write failed")
		return profile.Record{}, profile.OutcomeNone, writeErr
	}

	if !echoed {
		if s.insertMode == profile.InsertModeIgnoreDuplicates {
			if winner, ok := s.readAfterIgnoredInsert(ctx, logger, input.ID); ok {
				span.SetAttributes(attribute.String("profile.outcome", string(profile.OutcomeExistingAfterRace)))
				return winner, profile.OutcomeExistingAfterRace, nil
			}
		}
		logger.ErrorContext(ctx, "profile creation failed, no data returned")
		span.SetStatus(codes.Error, "empty insert result")
		return profile.Record{}, profile.OutcomeNone, fmt.Errorf("%w: id=%s", ErrProfileNotEchoed, input.ID)
	}

	logger.InfoContext(ctx, "profile created", recordLogArgs(created)...)
	span.SetAttributes(attribute.String("profile.outcome", string(profile.OutcomeCreated)))
	return created, profile.OutcomeCreated, nil
}

// readAfterIgnoredInsert looks up the row written by a concurrent creator
// after an insert-if-not-exists echoed nothing.
func (s *ProfileService) readAfterIgnoredInsert(ctx context.Context, logger *logging.Logger, id string) (profile.Record, bool) {
	winner, found, err := s.repo.GetByID(ctx, id)
	if err != nil {
		logger.WarnContext(ctx, "could not read profile after ignored duplicate insert", "error", err)
		return profile.Record{}, false
	}
	if !found {
		return profile.Record{}, false
	}

	logger.InfoContext(ctx, "profile was created concurrently, using existing row", recordLogArgs(winner)...)
	return winner, true
}

func (s *ProfileService) validateInput(ctx context.Context, input EnsureProfileInput) error {
	if err := s.validator.StructCtx(ctx, input); err != nil {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	// Whitespace-only counts as missing, but the stored email is not trimmed.
	if err := s.validator.VarCtx(ctx, strings.TrimSpace(input.Fields.Email), "required"); err != nil {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return nil
}

func normalizeEnsureProfileInput(input EnsureProfileInput) EnsureProfileInput {
	input.ID = strings.TrimSpace(input.ID)
	return input
}

func recordLogArgs(rec profile.Record) []any {
	return []any{
		"full_name", rec.FullName,
		"role", rec.Role,
		"department", rec.Department,
		"position", rec.Position,
	}
}
