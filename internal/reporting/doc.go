// Package reporting answers the read-side questions asked of the warehouse
// marts: product mentions, channel summaries, daily activity, message search,
// visual content and recent pipeline runs.
//
// The Service returns transport-ready DTOs with snake_case JSON tags so the
// CLI (--json) and the HTTP API share one rendering. Argument problems are
// services.ErrValidation, unknown channels are services.ErrNotFound.
//
// Visual content has two builders. The full builder reads
// fct_image_detections; the fallback reads fct_messages and leaves the
// category counts at zero. Which one serves is decided once, when the
// Service is built, from api.image_detections (auto, enabled, disabled).
package reporting
