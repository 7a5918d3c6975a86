// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Enumerated event types cover the pipeline milestones an operator
// cares about: a stage failing, a review gate opening, a cost cap tripping,
// an episode finishing. The orchestrator emits consistent messages through
// these without duplicating HTTP glue.
//
// Extend this package if you need alternative transports; all pipeline code
// depends only on the simple Service interface.
package notifications
