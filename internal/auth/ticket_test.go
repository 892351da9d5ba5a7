package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-ticket-secret-at-least-32-characters-long"

func TestIssueAndParseTicket(t *testing.T) {
	user := &User{ID: "u-1", Role: RoleSecurity}

	signed, issued, err := IssueTicket(user, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueTicket() error = %v", err)
	}

	claims, err := ParseTicket(signed, testSecret)
	if err != nil {
		t.Fatalf("ParseTicket() error = %v", err)
	}
	if claims.Subject != "u-1" || claims.Role != RoleSecurity {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("jti = %q, want %q", claims.ID, issued.ID)
	}
	if claims.Capabilities().ViewAuditLogs {
		t.Error("security ticket should not carry audit access")
	}
}

func TestIssueTicket_UniqueIDs(t *testing.T) {
	user := &User{ID: "u-1", Role: RoleAdmin}
	_, a, _ := IssueTicket(user, testSecret, time.Minute) //nolint:errcheck // checked via claims
	_, b, _ := IssueTicket(user, testSecret, time.Minute) //nolint:errcheck // checked via claims
	if a.ID == b.ID {
		t.Error("tickets should have unique ids")
	}
}

func TestParseTicket_Rejects(t *testing.T) {
	user := &User{ID: "u-1", Role: RoleAdmin}
	valid, _, err := IssueTicket(user, testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := ParseTicket(valid, "another-secret-that-is-also-32-chars!!"); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		claims := TicketClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u-1",
				ID:        "jti",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
			Role: RoleAdmin,
		}
		signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret)) //nolint:errcheck // test fixture
		if _, err := ParseTicket(signed, testSecret); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := TicketClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u-1",
				ID:        "jti",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			Role: Role("owner"),
		}
		signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret)) //nolint:errcheck // test fixture
		if _, err := ParseTicket(signed, testSecret); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("alg none", func(t *testing.T) {
		claims := TicketClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u-1",
				ID:        "jti",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			Role: RoleAdmin,
		}
		signed, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType) //nolint:errcheck // test fixture
		if _, err := ParseTicket(signed, testSecret); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})
}

func TestTicketClaims_EmergencyCapabilities(t *testing.T) {
	user := &User{ID: "u-1", Role: RoleAdmin, IsEmergencyAdmin: true}
	signed, _, err := IssueTicket(user, testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseTicket(signed, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if !claims.Emergency || !claims.Capabilities().ViewAuditLogs {
		t.Error("emergency ticket should carry full capabilities")
	}
}
