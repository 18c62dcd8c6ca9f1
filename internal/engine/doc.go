// Package engine defines the synthesis and recognition engine abstraction and
// the registry that selects engines by id.
//
// Engines come in three kinds. Cloud engines call an OpenAI-compatible speech
// API and hold no local state. Offline engines shell out to a local TTS binary
// and expose a voice catalog. Model engines keep weights in a local model
// store and must be loaded (downloaded when absent) before first use. The
// registry hides the difference: Synthesize and Recognize load an unloaded
// engine first and report progress through a callback.
//
// Every call here blocks; callers run them on dispatcher workers.
package engine
