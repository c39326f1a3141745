package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_Nil(t *testing.T) {
	if got := MapDBError(nil); got != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", got)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"canceled", context.Canceled},
		{"wrapped deadline", fmt.Errorf("insert: %w", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			if !IsUnavailable(got) {
				t.Errorf("MapDBError(%v) code = %v, want %v", tt.err, GetCode(got), ErrCodeUnavailable)
			}
			if !errors.Is(got, tt.err) {
				t.Error("MapDBError lost the cause chain")
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	got := MapDBError(pgx.ErrNoRows)
	if !IsNotFound(got) {
		t.Errorf("MapDBError(ErrNoRows) code = %v, want %v", GetCode(got), ErrCodeNotFound)
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name     string
		pgCode   string
		wantCode ErrorCode
	}{
		{"unique violation", pgerrcode.UniqueViolation, ErrCodeConflict},
		{"check violation", pgerrcode.CheckViolation, ErrCodeInternal},
		{"not null violation", pgerrcode.NotNullViolation, ErrCodeInternal},
		{"unhandled pg error", pgerrcode.SerializationFailure, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.pgCode}
			got := MapDBError(fmt.Errorf("insert audit record: %w", pgErr))
			if GetCode(got) != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(got), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_PassesThroughUnknown(t *testing.T) {
	plain := errors.New("something else")
	if got := MapDBError(plain); !errors.Is(got, plain) {
		t.Errorf("MapDBError(plain) = %v, want original error", got)
	}
	if GetCode(MapDBError(plain)) != "" {
		t.Error("MapDBError(plain) should not gain an AppError code")
	}
}
