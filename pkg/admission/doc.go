// Package admission implements the four-layer request gate every non-exempt
// HTTP request passes through: network isolation, bearer authentication,
// per-IP sliding-window rate limiting, and request-timing logging. See spec
// §4.10. Grounded on Strob0t-CodeForge's internal/middleware package
// (webhook HMAC/token verification, per-IP rate limiting, auth context
// injection), adapted from its token-bucket algorithm to the spec's
// sliding-window one and from its multi-tenant JWT service to pkg/token's
// single symmetric secret.
package admission
