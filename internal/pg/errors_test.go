package pg

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"wrapped transient", fmt.Errorf("op: %w", &pgconn.PgError{Code: "40001"}), true},
		{"connection closed text", errors.New("unexpected: connection closed"), true},
		{"plain failure", errors.New("row decode failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientError(tt.err); got != tt.want {
				t.Errorf("IsTransientError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsLockNotAvailable(t *testing.T) {
	if !IsLockNotAvailable(&pgconn.PgError{Code: "55P03"}) {
		t.Error("expected 55P03 to be lock-not-available")
	}
	if IsLockNotAvailable(&pgconn.PgError{Code: "40001"}) {
		t.Error("expected 40001 not to be lock-not-available")
	}
	if IsLockNotAvailable(nil) {
		t.Error("expected nil not to be lock-not-available")
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "'plain'"},
		{"it's", "'it''s'"},
		{"", "''"},
	}

	for _, tt := range tests {
		if got := QuoteLiteral(tt.input); got != tt.want {
			t.Errorf("QuoteLiteral(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestQuoteQualified(t *testing.T) {
	if got := QuoteQualified("public", "users"); got != `"public"."users"` {
		t.Errorf("QuoteQualified = %s", got)
	}
	if got := QuoteQualified("sales", `od"d`); got != `"sales"."od""d"` {
		t.Errorf("QuoteQualified with embedded quote = %s", got)
	}
}
