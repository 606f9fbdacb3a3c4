package token

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/minio/sha256-simd"
	"github.com/mitchellh/mapstructure"
)

const separator = "."

// Options configures a Codec. Key is the server-held secret; Context
// namespaces signatures so that the same key cannot be replayed across
// unrelated signing domains.
type Options struct {
	Key     string
	Context string
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// Codec signs and verifies capability tokens.
type Codec struct {
	derived []byte
	now     func() time.Time
}

// wireToken is the canonical payload encoding. Field order is fixed by the
// struct definition, which keeps the encoding stable across versions.
type wireToken struct {
	URL    string    `json:"url" mapstructure:"url"`
	User   string    `json:"user" mapstructure:"user"`
	Expiry time.Time `json:"expiry" mapstructure:"expiry"`
	Scope  Scope     `json:"scope" mapstructure:"scope"`
}

// NewCodec derives the signing key from Key and Context. The combined length
// of key and context must exceed the sha256 digest size.
func NewCodec(opts Options) (*Codec, error) {
	if opts.Key == "" {
		return nil, errors.New("signing key required")
	}
	if len(opts.Key)+len(opts.Context) <= sha256.Size {
		return nil, fmt.Errorf("signing key+context must be longer than %d bytes", sha256.Size)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	mac := hmac.New(sha256.New, []byte(opts.Key))
	mac.Write([]byte(opts.Context))
	return &Codec{
		derived: mac.Sum(nil),
		now:     now,
	}, nil
}

// Sign encodes the token and appends a keyed signature over the encoding.
func (c *Codec) Sign(t Token) (string, error) {
	if t.url == "" {
		return "", newError(KindInvalidURL, "token has no url; construct it with New")
	}
	raw, err := json.Marshal(wireToken{
		URL:    t.url,
		User:   t.user,
		Expiry: t.expiry.UTC(),
		Scope:  t.scope,
	})
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + separator + c.signature(payload), nil
}

// Verify checks the signature, then the payload structure, then the URL,
// and finally the expiry. Each failure is an *Error with a distinct Kind.
func (c *Codec) Verify(signed string) (Token, error) {
	payload, err := c.unsign(signed)
	if err != nil {
		return Token{}, err
	}

	wire, err := decodePayload(payload)
	if err != nil {
		return Token{}, err
	}

	if strings.TrimSpace(wire.User) == "" {
		return Token{}, newError(KindMalformedPayload, "user is empty")
	}
	if !wire.Scope.Valid() {
		return Token{}, newError(KindMalformedPayload, "scope is empty")
	}
	if _, err := parsePrefix(wire.URL); err != nil {
		return Token{}, err
	}

	t := Token{
		url:    wire.URL,
		user:   wire.User,
		expiry: wire.Expiry.UTC(),
		scope:  wire.Scope,
	}
	if t.Expired(c.now()) {
		return Token{}, newError(KindExpired, fmt.Sprintf("token expired on %s", t.expiry.Format(time.RFC3339)))
	}
	return t, nil
}

func (c *Codec) signature(payload string) string {
	mac := hmac.New(sha256.New, c.derived)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Codec) unsign(signed string) (string, error) {
	idx := strings.LastIndex(signed, separator)
	if idx < 0 {
		return "", newError(KindBadSignature, "no separator found")
	}
	payload, sig := signed[:idx], signed[idx+1:]

	given, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", wrapError(KindBadSignature, "signature is not valid base64", err)
	}
	expected, _ := base64.RawURLEncoding.DecodeString(c.signature(payload))
	if !hmac.Equal(given, expected) {
		return "", newError(KindBadSignature, "signature does not match")
	}
	return payload, nil
}

// decodePayload rejects anything that does not match wireToken exactly:
// unknown keys, missing keys, mistyped values and unknown scopes.
func decodePayload(payload string) (wireToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return wireToken{}, wrapError(KindMalformedPayload, "payload is not valid base64", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return wireToken{}, wrapError(KindMalformedPayload, "payload is not a json object", err)
	}

	var wire wireToken
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		ErrorUnset:  true,
		Result:      &wire,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			scopeDecodeHook(),
		),
	})
	if err != nil {
		return wireToken{}, fmt.Errorf("build payload decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return wireToken{}, wrapError(KindMalformedPayload, "payload does not match token structure", err)
	}
	return wire, nil
}

func scopeDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(Scope(""))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return ParseScope(reflect.ValueOf(data).String())
	}
}
