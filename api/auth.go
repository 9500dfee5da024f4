package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const defaultSessionTTL = 12 * time.Hour

// Identity describes an authenticated board user.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

var errInvalidCredentials = errors.New("invalid credentials")

// StaticCredentials verifies logins against a fixed user table injected
// at construction.
type StaticCredentials struct {
	users map[string]userRecord
}

type userRecord struct {
	identity Identity
	password string
}

// ParseUsers builds a credential table from its configuration form:
// comma-separated "username:password:id:display name" entries.
func ParseUsers(raw string) (*StaticCredentials, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("no users configured")
	}
	users := make(map[string]userRecord)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 4)
		if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed user entry %q", entry)
		}
		if _, dup := users[parts[0]]; dup {
			return nil, fmt.Errorf("duplicate username %q", parts[0])
		}
		users[parts[0]] = userRecord{
			identity: Identity{ID: parts[2], Username: parts[0], Name: parts[3]},
			password: parts[1],
		}
	}
	return &StaticCredentials{users: users}, nil
}

// Verify returns the identity for a matching username/password pair.
func (s *StaticCredentials) Verify(username, password string) (Identity, error) {
	rec, ok := s.users[username]
	// Compare even for unknown users to keep timing uniform.
	expected := rec.password
	if !ok {
		expected = ""
	}
	match := subtle.ConstantTimeCompare([]byte(expected), []byte(password)) == 1
	if !ok || !match {
		return Identity{}, errInvalidCredentials
	}
	return rec.identity, nil
}

// Sessions issues and validates HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewSessions creates a session token authority. A non-positive ttl
// falls back to the default.
func NewSessions(secret []byte, ttl time.Duration) *Sessions {
	if len(secret) == 0 {
		panic("api.NewSessions: empty secret")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{
		secret: secret,
		ttl:    ttl,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:    time.Now,
	}
}

// Issue signs a session token for the given identity.
func (s *Sessions) Issue(id Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  id.ID,
		"name": id.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// UserIDFromAuthHeader extracts the user identifier from the
// Authorization header.
func (s *Sessions) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return s.userIDFromToken(token)
}

func (s *Sessions) userIDFromToken(token string) (string, error) {
	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := s.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyIssuedAt(now+60, false) {
		return "", errors.New("token used before issued")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}
