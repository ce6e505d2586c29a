package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestEnforcePermission(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), NewPrincipal("u-1", "reports.logs", " ", "reports.users "))

	if err := EnforcePermission(ctx, "reports.logs"); err != nil {
		t.Fatalf("expected permission granted, got %v", err)
	}
	if err := EnforcePermission(ctx, "reports.users"); err != nil {
		t.Fatalf("expected trimmed permission granted, got %v", err)
	}
	if err := EnforcePermission(ctx, "reports.audit"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestEnforcePermissionWithoutPrincipal(t *testing.T) {
	if err := EnforcePermission(context.Background(), "reports.logs"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestWildcardPermission(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), NewPrincipal("admin", WildcardPermission))
	if err := EnforcePermission(ctx, "reports.anything"); err != nil {
		t.Fatalf("expected wildcard to grant access, got %v", err)
	}
}

func TestPrincipalPermissionsSorted(t *testing.T) {
	p := NewPrincipal("u", "b", "a", "c", "a")
	if got, want := p.Permissions(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("permissions = %v, want %v", got, want)
	}
}
