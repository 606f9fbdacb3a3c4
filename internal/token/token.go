package token

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Scope is the class of operation a token authorizes.
type Scope string

const (
	ScopeView    Scope = "view"
	ScopeRelease Scope = "release"
	ScopeUpload  Scope = "upload"
)

// scopeGrants lists, per scope, every scope it implies.
var scopeGrants = map[Scope][]Scope{
	ScopeView:    {ScopeView},
	ScopeUpload:  {ScopeView, ScopeUpload},
	ScopeRelease: {ScopeView, ScopeUpload, ScopeRelease},
}

// ParseScope accepts only the closed set view/release/upload.
func ParseScope(raw string) (Scope, error) {
	scope := Scope(raw)
	if _, ok := scopeGrants[scope]; !ok {
		return "", fmt.Errorf("unknown scope %q", raw)
	}
	return scope, nil
}

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	_, ok := scopeGrants[s]
	return ok
}

// Permits reports whether a token with scope s may perform an operation that
// requires the given scope. An empty requirement is satisfied by any scope.
func (s Scope) Permits(required Scope) bool {
	if required == "" {
		return s.Valid()
	}
	for _, granted := range scopeGrants[s] {
		if granted == required {
			return true
		}
	}
	return false
}

// Token is an immutable capability token. Construct it with New.
type Token struct {
	url    string
	user   string
	expiry time.Time
	scope  Scope
}

// New validates and builds a token. urlPrefix must be an absolute http(s)
// URL. The expiry is stored in UTC; an expiry in the past is accepted here
// and rejected by Verify.
func New(urlPrefix, user string, expiry time.Time, scope Scope) (Token, error) {
	if _, err := parsePrefix(urlPrefix); err != nil {
		return Token{}, err
	}
	if strings.TrimSpace(user) == "" {
		return Token{}, newError(KindMalformedPayload, "user is required")
	}
	if !scope.Valid() {
		return Token{}, newError(KindMalformedPayload, fmt.Sprintf("invalid scope %q", scope))
	}
	return Token{
		url:    urlPrefix,
		user:   user,
		expiry: expiry.UTC(),
		scope:  scope,
	}, nil
}

func (t Token) URL() string       { return t.url }
func (t Token) User() string      { return t.user }
func (t Token) Expiry() time.Time { return t.expiry }
func (t Token) Scope() Scope      { return t.scope }

// Equal compares all fields, using time.Time.Equal for the expiry.
func (t Token) Equal(other Token) bool {
	return t.url == other.url &&
		t.user == other.user &&
		t.scope == other.scope &&
		t.expiry.Equal(other.expiry)
}

// Expired reports whether the token is no longer usable at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.expiry)
}

func parsePrefix(raw string) (*url.URL, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return nil, newError(KindInvalidURL, fmt.Sprintf("invalid url %q", raw))
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, wrapError(KindInvalidURL, fmt.Sprintf("invalid url %q", raw), err)
	}
	if parsed.Hostname() == "" {
		return nil, newError(KindInvalidURL, fmt.Sprintf("url %q has no host", raw))
	}
	return parsed, nil
}
