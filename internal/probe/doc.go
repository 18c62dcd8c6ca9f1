// Package probe wraps ffprobe to read the duration and audio stream layout
// of an input file before it is queued for conversion.
package probe
