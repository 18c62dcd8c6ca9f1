// Package main hosts the voxbridge CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the conversion core
// in internal/app: single-file transcription, batch runs, speech synthesis,
// model and cache maintenance, and run history. Configuration resolution and
// logger construction live in commandContext so subcommands only render.
//
// Keep this package lean: add behavior to the internal packages first and
// surface it here.
package main
