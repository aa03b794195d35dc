// Package router wires the HTTP surface: deploy/shutdown webhooks, the
// queue inspection endpoints available on both roles, and the Home-only
// dashboard and API. See spec §4.11/§6. Grounded on Strob0t-CodeForge's
// internal/adapter/http (chi.Router, route grouping by concern) and its
// internal/middleware/webhook.go for HMAC/token signature verification —
// the teacher (cuemby-warren) has no HTTP router at all, its node-to-node
// surface is gRPC.
package router
