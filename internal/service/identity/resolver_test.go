package identity_test

import (
	"errors"
	"testing"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/identity"
)

func TestResolveAcceptsEmailShapedContact(t *testing.T) {
	contact, err := identity.Resolve("  a@b.com \n")
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if contact != "a@b.com" {
		t.Fatalf("unexpected contact: %q", contact)
	}
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n", "plain", "a@b", "@b.com", "a b@c.com", "a@b c.com", "a@@b.com"} {
		_, err := identity.Resolve(raw)
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		if !errors.Is(err, support.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", raw, err)
		}

		var verr *identity.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *ValidationError for %q", raw)
		}
	}
}
