package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIs_MatchesSentinelByKind(t *testing.T) {
	err := apperr.Denied("role %q cannot delete", "admin")
	if !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Fatal("expected Denied to match ErrAuthorizationDenied")
	}
	if errors.Is(err, apperr.ErrValidation) {
		t.Fatal("Denied must not match ErrValidation")
	}

	wrapped := fmt.Errorf("update org: %w", apperr.Invalid("name is required"))
	if !errors.Is(wrapped, apperr.ErrValidation) {
		t.Fatal("expected wrapped validation error to match")
	}
}

func TestCreationInProgress_IsTransient(t *testing.T) {
	if !errors.Is(apperr.ErrCreationInProgress, apperr.ErrTransient) {
		t.Fatal("creation in progress should be transient")
	}
	if got := apperr.Category(apperr.ErrCreationInProgress); got != apperr.CategoryTryAgain {
		t.Errorf("category: got %q, want %q", got, apperr.CategoryTryAgain)
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"denied", apperr.Denied("nope"), apperr.CategoryNotAllowed},
		{"invalid", apperr.Invalid("bad"), apperr.CategoryInvalid},
		{"not found", apperr.NotFound("organization", "x"), apperr.CategoryNotFound},
		{"no documents", mongo.ErrNoDocuments, apperr.CategoryNotFound},
		{"sign in", apperr.ErrAuthenticationRequired, apperr.CategorySignIn},
		{"deadline", context.DeadlineExceeded, apperr.CategoryTryAgain},
		{"unknown", errors.New("socket closed"), apperr.CategoryTryAgain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := apperr.Category(tc.err); got != tc.want {
				t.Errorf("Category(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestFromStore(t *testing.T) {
	err := apperr.FromStore(mongo.ErrNoDocuments, "event", "abc")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	other := errors.New("boom")
	if got := apperr.FromStore(other, "event", "abc"); got != other {
		t.Errorf("expected error returned unchanged, got %v", got)
	}
}
