// Package services defines shared utilities consumed by the conversion core
// and the external engine integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, engine IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the validation/load/synthesis/recognition/lifecycle taxonomy.
//   - Classify and Reason, which turn any error into a metric label and a
//     one-line failure reason.
//
// Use these helpers when wiring new engine or queue logic so failure handling
// stays uniform across the batch pipeline.
package services
