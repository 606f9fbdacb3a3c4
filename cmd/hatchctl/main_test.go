package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensafely-core/release-hatch/internal/schema"
	"github.com/opensafely-core/release-hatch/internal/token"
)

const testKey = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, releaseHost string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf("ReleaseHost = %q\nSigningKey = %q\n", releaseHost, testKey)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(token.Options{Key: testKey, Context: "hatch"})
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}
	return codec
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t, "https://hatch.example.org")
	out, err := execute(t, "token", "--config", cfg, "-w", "w1", "--user", "bob", "--scope", "upload")
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	tok, err := testCodec(t).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("minted token should verify: %v", err)
	}
	if tok.URL() != "https://hatch.example.org/workspace/w1" || tok.User() != "bob" || tok.Scope() != token.ScopeUpload {
		t.Fatalf("unexpected token %s %s %s", tok.URL(), tok.User(), tok.Scope())
	}
}

func TestTokenCommandErrors(t *testing.T) {
	cfg := writeConfig(t, "https://hatch.example.org")
	if _, err := execute(t, "token", "--config", cfg, "-w", "w1", "--scope", "admin"); err == nil {
		t.Fatalf("unknown scope should fail")
	}
	if _, err := execute(t, "token", "--config", cfg); err == nil || !strings.Contains(err.Error(), "--workspace") {
		t.Fatalf("missing workspace should fail, got %v", err)
	}
}

// fakeHatch 模拟服务端：校验 token 后返回索引、文件内容并接受发布请求。
type fakeHatch struct {
	t        *testing.T
	srv      *httptest.Server
	released []byte
}

func newFakeHatch(t *testing.T) *fakeHatch {
	t.Helper()
	f := &fakeHatch{t: t}
	codec := testCodec(t)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := codec.Verify(r.Header.Get("Authorization"))
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/workspace/w1/current":
			_ = json.NewEncoder(w).Encode(schema.FileList{Files: []schema.FileMetadata{{
				Name:   "output/a.csv",
				URL:    f.srv.URL + "/workspace/w1/current/output/a.csv",
				Size:   5,
				SHA256: "abc123",
			}}})
		case r.Method == http.MethodGet && r.URL.Path == "/workspace/w1/current/output/a.csv":
			_, _ = w.Write([]byte("1,2,3"))
		case r.Method == http.MethodPost && r.URL.Path == "/workspace/w1/release":
			if tok.Scope() != token.ScopeRelease {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			f.released, _ = io.ReadAll(r.Body)
			w.Header().Set("Release-Id", "r1")
			w.Header().Set("Location", f.srv.URL+"/workspace/w1/release/r1")
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"not found"}`))
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func TestListCommand(t *testing.T) {
	f := newFakeHatch(t)
	out, err := execute(t, "list", "--config", writeConfig(t, f.srv.URL), "-w", "w1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, `"name": "output/a.csv"`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestListCommandReleaseNotFound(t *testing.T) {
	f := newFakeHatch(t)
	_, err := execute(t, "list", "--config", writeConfig(t, f.srv.URL), "-w", "w1", "-r", "r9")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestFileCommand(t *testing.T) {
	f := newFakeHatch(t)
	cfg := writeConfig(t, f.srv.URL)

	out, err := execute(t, "file", "output/a.csv", "--config", cfg, "-w", "w1")
	if err != nil {
		t.Fatalf("file failed: %v", err)
	}
	if out != "1,2,3" {
		t.Fatalf("unexpected content %q", out)
	}

	out, err = execute(t, "file", "output\\a.csv", "--metadata", "--config", cfg, "-w", "w1")
	if err != nil {
		t.Fatalf("file --metadata failed: %v", err)
	}
	if !strings.Contains(out, `"sha256": "abc123"`) {
		t.Fatalf("unexpected metadata %s", out)
	}

	if _, err := execute(t, "file", "missing.csv", "--config", cfg, "-w", "w1"); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestRequestCommand(t *testing.T) {
	f := newFakeHatch(t)
	out, err := execute(t, "request", "output/a.csv", "--config", writeConfig(t, f.srv.URL), "-w", "w1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !strings.Contains(out, "Release-Id: r1") {
		t.Fatalf("unexpected output %s", out)
	}

	var submitted schema.FileList
	if err := json.Unmarshal(f.released, &submitted); err != nil {
		t.Fatalf("decode submitted body: %v", err)
	}
	if len(submitted.Files) != 1 || submitted.Manifest()["output/a.csv"] != "abc123" {
		t.Fatalf("unexpected release request %+v", submitted)
	}
}

func TestBuildRequestUnknownFile(t *testing.T) {
	list := &schema.FileList{Files: []schema.FileMetadata{{Name: "a"}}}
	if _, err := buildRequest(list, []string{"b"}); err == nil {
		t.Fatalf("unknown file should fail")
	}
}
