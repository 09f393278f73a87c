// Package api serves the read-only HTTP interface over the warehouse marts.
//
// The router is a gin engine. Every request gets a correlation id (taken
// from X-Request-ID or generated) that is echoed back and attached to the
// request logger. When api.token is set, routes under /api other than
// /api/health require "Authorization: Bearer <token>".
//
// Handlers delegate to reporting.Service and never build SQL themselves.
// Failures are rendered as {"error": {"kind": ..., "message": ...}}:
// validation problems are 400, unknown channels or runs 404, everything
// else 500 with a generic message. The underlying error is logged only.
// Empty results are rendered as [].
package api
