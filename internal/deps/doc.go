// Package deps checks that the external binaries voxbridge shells out to
// (ffprobe, espeak-ng, uvx, the model runner) can be resolved on PATH.
package deps
