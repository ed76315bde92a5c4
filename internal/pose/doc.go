// Package pose adapts an external pose landmark detector to the capture
// pipeline.
//
// Each camera view owns exactly one Detector, built from its own Options
// value. Detectors track the last accepted timestamp and reject any call
// that goes backwards, mirroring the video-mode contract of the underlying
// landmarker; a rejected or failed call never rewinds that state.
package pose
