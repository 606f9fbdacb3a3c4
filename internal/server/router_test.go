package server

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/opensafely-core/release-hatch/internal/logging"
	"github.com/opensafely-core/release-hatch/internal/token"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{ListenPort: 8001}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard()}); err == nil {
		t.Fatalf("missing port should fail")
	}
}

func newAuthApp(t *testing.T, required token.Scope) (*fiber.App, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec(token.Options{Key: testKey, Context: "hatch"})
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}
	auth, err := NewAuthenticator(codec, token.NewHostSet("hatch.example.org", "localhost"), logging.Discard())
	if err != nil {
		t.Fatalf("auth error: %v", err)
	}
	app, err := NewApp(AppOptions{Logger: logging.Discard(), ListenPort: 8001})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	app.Get("/workspace/:workspace/current", auth.Require(required), func(c fiber.Ctx) error {
		tok, ok := TokenFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(tok.User() + ":" + RequestID(c))
	})
	return app, codec
}

func TestAuthenticatorStoresToken(t *testing.T) {
	app, codec := newAuthApp(t, token.ScopeView)
	tok, _ := token.New("https://hatch.example.org/workspace/w1", "alice", time.Now().Add(time.Hour), token.ScopeRelease)
	signed, _ := codec.Sign(tok)

	req := httptest.NewRequest("GET", "http://localhost/workspace/w1/current", nil)
	req.Header.Set("Authorization", signed)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}
	reqID := resp.Header.Get("X-Request-ID")
	if reqID == "" || string(body) != "alice:"+reqID {
		t.Fatalf("unexpected body %q (request id %q)", body, reqID)
	}
}

func TestAuthenticatorScope(t *testing.T) {
	app, codec := newAuthApp(t, token.ScopeRelease)
	tok, _ := token.New("https://hatch.example.org/workspace/w1", "alice", time.Now().Add(time.Hour), token.ScopeUpload)
	signed, _ := codec.Sign(tok)

	req := httptest.NewRequest("GET", "http://localhost/workspace/w1/current", nil)
	req.Header.Set("Authorization", signed)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("upload scope must not satisfy release, got %d", resp.StatusCode)
	}
}

func TestNewAuthenticatorValidates(t *testing.T) {
	codec, _ := token.NewCodec(token.Options{Key: testKey, Context: "hatch"})
	if _, err := NewAuthenticator(nil, token.NewHostSet("localhost"), logging.Discard()); err == nil {
		t.Fatalf("nil codec should fail")
	}
	if _, err := NewAuthenticator(codec, token.NewHostSet(), logging.Discard()); err == nil {
		t.Fatalf("empty host set should fail")
	}
}
