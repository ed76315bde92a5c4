// Package framesource opens the front and side video origins of a capture
// session and reads them as one paired stream.
//
// A Pair only yields a frame pair when both underlying streams produced a
// frame; as soon as either stream ends the pair reports io.EOF. Streams come
// from an Opener: FFmpegOpener decodes files and V4L2 devices through an
// ffmpeg subprocess, GoCVOpener (build tag gocv) uses OpenCV, and
// MemoryOpener serves in-memory frames for tests and fixture runs.
package framesource
