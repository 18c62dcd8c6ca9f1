// Package config loads, normalizes, and validates voxbridge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and HF_TOKEN. The Config type centralizes the queue pacing,
// validation ceilings, worker pool, and engine settings the conversion core
// needs.
package config
