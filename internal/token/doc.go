// Package token implements capability tokens: signed, self-contained
// credentials binding a user, an absolute URL prefix, an expiry and a scope.
// A Codec signs and verifies tokens with an explicitly configured key and
// signing context; no process-wide signer exists. Verification failures are
// reported as *Error values whose Kind distinguishes bad signatures, malformed
// payloads, invalid URLs and expiry, so HTTP layers can map each kind to a
// status code without inspecting messages. Binding a verified token to a live
// request (host allow-list, path prefix, scope) is done by the caller through
// CheckBinding and RequireScope.
package token
