package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T, key string) *Codec {
	t.Helper()
	codec, err := NewCodec(Options{Key: key, Context: "hatch"})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return codec
}

func mustToken(t *testing.T, url, user string, expiry time.Time, scope Scope) Token {
	t.Helper()
	tok, err := New(url, user, expiry, scope)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	return tok
}

// signRaw signs an arbitrary json payload so structure checks can be exercised
// independently of signature checks.
func signRaw(c *Codec, rawJSON string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(rawJSON))
	return payload + separator + c.signature(payload)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	codec := newTestCodec(t, testKey)
	expiry := time.Now().Add(time.Minute)

	for _, scope := range []Scope{ScopeView, ScopeRelease, ScopeUpload} {
		t.Run(string(scope), func(t *testing.T) {
			original := mustToken(t, "https://example.com/workspace/w1", "user", expiry, scope)
			signed, err := codec.Sign(original)
			if err != nil {
				t.Fatalf("sign error: %v", err)
			}
			verified, err := codec.Verify(signed)
			if err != nil {
				t.Fatalf("verify error: %v", err)
			}
			if !verified.Equal(original) {
				t.Fatalf("round trip mismatch: %+v vs %+v", verified, original)
			}
			if verified.Expiry().Location() != time.UTC {
				t.Fatalf("expiry should be UTC, got %s", verified.Expiry().Location())
			}
		})
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	for _, raw := range []string{"bad", "/workspace/w1", "ftp://example.com/x", "https://"} {
		_, err := New(raw, "user", time.Now().Add(time.Minute), ScopeView)
		if !IsKind(err, KindInvalidURL) {
			t.Fatalf("expected InvalidUrl for %q, got %v", raw, err)
		}
	}
}

func TestNewRejectsUnknownScope(t *testing.T) {
	_, err := New("https://example.com/url", "user", time.Now().Add(time.Minute), Scope("bad scope"))
	if !IsKind(err, KindMalformedPayload) {
		t.Fatalf("expected MalformedPayload, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	codec := newTestCodec(t, testKey)
	tok := mustToken(t, "https://example.com/url", "user", time.Now().Add(-time.Minute), ScopeView)
	signed, err := codec.Sign(tok)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := codec.Verify(signed); !IsKind(err, KindExpired) {
		t.Fatalf("expected Expired, got %v", err)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	codec, err := NewCodec(Options{Key: testKey, Context: "hatch", Now: func() time.Time { return expiry }})
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}
	signed, err := codec.Sign(mustToken(t, "https://example.com/url", "user", expiry, ScopeView))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := codec.Verify(signed); !IsKind(err, KindExpired) {
		t.Fatalf("expiry equal to now must be rejected, got %v", err)
	}
}

func TestVerifyMismatchedKeys(t *testing.T) {
	signer := newTestCodec(t, testKey)
	verifier := newTestCodec(t, "another-secret-another-secret-xyz")

	signed, err := signer.Sign(mustToken(t, "https://example.com/url", "user", time.Now().Add(time.Minute), ScopeView))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := verifier.Verify(signed); !IsKind(err, KindBadSignature) {
		t.Fatalf("expected BadSignature, got %v", err)
	}
}

func TestVerifyMismatchedContext(t *testing.T) {
	signer := newTestCodec(t, testKey)
	other, err := NewCodec(Options{Key: testKey, Context: "other-purpose"})
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}
	signed, err := signer.Sign(mustToken(t, "https://example.com/url", "user", time.Now().Add(time.Minute), ScopeView))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := other.Verify(signed); !IsKind(err, KindBadSignature) {
		t.Fatalf("a different context must not verify, got %v", err)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	codec := newTestCodec(t, testKey)
	signed, err := codec.Sign(mustToken(t, "https://example.com/url", "user", time.Now().Add(time.Minute), ScopeView))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	_, sig, _ := strings.Cut(signed, separator)
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"url":"https://example.com/","user":"admin","expiry":"2099-01-01T00:00:00Z","scope":"release"}`))

	for _, candidate := range []string{forged + separator + sig, "no-separator", signed + "x"} {
		if _, err := codec.Verify(candidate); !IsKind(err, KindBadSignature) {
			t.Fatalf("expected BadSignature for %q, got %v", candidate, err)
		}
	}
}

func TestVerifyMalformedPayloads(t *testing.T) {
	codec := newTestCodec(t, testKey)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano)

	testCases := []struct {
		name    string
		payload string
	}{
		{"not json", `not a json object`},
		{"json array", `["https://example.com/url"]`},
		{"missing scope", `{"url":"https://example.com/url","user":"user","expiry":"` + future + `"}`},
		{"extra field", `{"url":"https://example.com/url","user":"user","expiry":"` + future + `","scope":"view","admin":true}`},
		{"mistyped user", `{"url":"https://example.com/url","user":42,"expiry":"` + future + `","scope":"view"}`},
		{"mistyped expiry", `{"url":"https://example.com/url","user":"user","expiry":1700000000,"scope":"view"}`},
		{"bad expiry", `{"url":"https://example.com/url","user":"user","expiry":"tomorrow","scope":"view"}`},
		{"unknown scope", `{"url":"https://example.com/url","user":"user","expiry":"` + future + `","scope":"admin"}`},
		{"null scope", `{"url":"https://example.com/url","user":"user","expiry":"` + future + `","scope":null}`},
		{"empty user", `{"url":"https://example.com/url","user":"","expiry":"` + future + `","scope":"view"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := codec.Verify(signRaw(codec, tc.payload)); !IsKind(err, KindMalformedPayload) {
				t.Fatalf("expected MalformedPayload, got %v", err)
			}
		})
	}
}

func TestVerifyInvalidURL(t *testing.T) {
	codec := newTestCodec(t, testKey)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano)
	signed := signRaw(codec, `{"url":"/workspace/w1","user":"user","expiry":"`+future+`","scope":"view"}`)
	if _, err := codec.Verify(signed); !IsKind(err, KindInvalidURL) {
		t.Fatalf("expected InvalidUrl, got %v", err)
	}
}

func TestVerifyStructureCheckedBeforeExpiry(t *testing.T) {
	codec := newTestCodec(t, testKey)
	signed := signRaw(codec, `{"url":"https://example.com/url","user":"user","expiry":"2000-01-01T00:00:00Z","scope":"root"}`)
	if _, err := codec.Verify(signed); !IsKind(err, KindMalformedPayload) {
		t.Fatalf("structure errors take precedence over expiry, got %v", err)
	}
}

func TestNewCodecRequiresKeyMaterial(t *testing.T) {
	if _, err := NewCodec(Options{Key: "short", Context: "hatch"}); err == nil {
		t.Fatalf("expected error for short key material")
	}
	if _, err := NewCodec(Options{Context: strings.Repeat("x", 64)}); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NewCodec(Options{Key: strings.Repeat("k", 28), Context: "hatch"}); err != nil {
		t.Fatalf("33 bytes of key material should be accepted: %v", err)
	}
}
