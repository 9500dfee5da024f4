package api

import (
	"testing"
	"time"
)

func testCredentials(t *testing.T) *StaticCredentials {
	t.Helper()
	creds, err := ParseUsers("usera:password:user-a:User A,userb:hunter2:user-b:User B")
	if err != nil {
		t.Fatalf("parse users: %v", err)
	}
	return creds
}

func TestParseUsers(t *testing.T) {
	creds := testCredentials(t)
	if len(creds.users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(creds.users))
	}
	id, err := creds.Verify("userb", "hunter2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.ID != "user-b" || id.Name != "User B" || id.Username != "userb" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseUsersRejectsMalformedEntries(t *testing.T) {
	for _, raw := range []string{"", "usera:password", "usera:password:user-a:A,usera:x:dup:B"} {
		if _, err := ParseUsers(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestVerifyRejectsBadCredentials(t *testing.T) {
	creds := testCredentials(t)
	if _, err := creds.Verify("usera", "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
	if _, err := creds.Verify("ghost", "password"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestSessionsIssueAndValidate(t *testing.T) {
	sessions := NewSessions([]byte("test-secret"), time.Hour)
	token, err := sessions.Issue(Identity{ID: "user-a", Name: "User A"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := sessions.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != "user-a" {
		t.Fatalf("expected user-a, got %q", userID)
	}
}

func TestSessionsRejectsExpiredToken(t *testing.T) {
	sessions := NewSessions([]byte("test-secret"), time.Hour)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return issued }
	token, err := sessions.Issue(Identity{ID: "user-a"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	sessions.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := sessions.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestSessionsRejectsWrongSecret(t *testing.T) {
	issuer := NewSessions([]byte("secret-one"), time.Hour)
	token, err := issuer.Issue(Identity{ID: "user-a"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	verifier := NewSessions([]byte("secret-two"), time.Hour)
	if _, err := verifier.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestBearerTokenFromString(t *testing.T) {
	cases := []struct {
		name   string
		header string
		ok     bool
	}{
		{"empty", "", false},
		{"spaces only", "   ", false},
		{"no prefix", "a.b.c", false},
		{"wrong prefix", "Basic a.b.c", false},
		{"not a jwt", "Bearer notatoken", false},
		{"valid", "Bearer aaa.bbb.ccc", true},
		{"padded", "  Bearer aaa.bbb.ccc  ", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bearerTokenFromString(tc.header)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
