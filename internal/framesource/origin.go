package framesource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSourceUnavailable is returned when an origin cannot be opened.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// Origin identifies where a view's frames come from: a capture device index
// or a video file path.
type Origin struct {
	Device int
	Path   string
	device bool
}

// DeviceOrigin returns an Origin for capture device index n.
func DeviceOrigin(n int) Origin { return Origin{Device: n, device: true} }

// FileOrigin returns an Origin for a video file.
func FileOrigin(path string) Origin { return Origin{Path: path} }

// ParseOrigin interprets a bare non-negative integer as a device index and
// anything else as a file path.
func ParseOrigin(s string) (Origin, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Origin{}, fmt.Errorf("%w: empty origin", ErrSourceUnavailable)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return Origin{}, fmt.Errorf("%w: negative device index %d", ErrSourceUnavailable, n)
		}
		return DeviceOrigin(n), nil
	}
	return FileOrigin(s), nil
}

// IsDevice reports whether the origin is a capture device.
func (o Origin) IsDevice() bool { return o.device }

// DevicePath returns the V4L2 node for a device origin.
func (o Origin) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", o.Device)
}

// String returns the device index or the file path.
func (o Origin) String() string {
	if o.device {
		return strconv.Itoa(o.Device)
	}
	return o.Path
}
