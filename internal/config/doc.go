// Package config loads, normalizes, and validates podship configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PODSHIP_LLM_API_KEY. The Config type centralizes every knob the daemon and
// CLI need, from pipeline version and cost caps to per-service model ids and
// notification toggles.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
