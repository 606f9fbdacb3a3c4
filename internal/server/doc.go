// Package server hosts the Fiber HTTP service: the middleware chain (recover,
// CORS, request ids), capability-token authentication, and the single place
// where domain errors are mapped to HTTP responses. Route handlers live in
// server/routes and receive their dependencies explicitly.
package server
