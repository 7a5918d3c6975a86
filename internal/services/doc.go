// Package services defines shared utilities consumed by stage adapters and
// the orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, stage names, run IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helpers that translate adapter
//     failures into a uniform error taxonomy and the episode terminal
//     status an orchestrator failure maps to (FailureStatus).
//   - The llm client subpackage used by the LLM-backed stage adapters. The
//     other external collaborators (transcription, TTS, image generation,
//     upload, rendering) live beside their adapters in internal/stages, and
//     the feed source in internal/feed.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the
// pipeline.
package services
