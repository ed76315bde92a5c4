package pose

// NumPoseLandmarks is the size of the BlazePose landmark schema.
const NumPoseLandmarks = 33

// Landmark is one normalized keypoint. X and Y are in [0,1] relative to the
// image; Z is the model's relative depth and Visibility its confidence.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// LandmarkSet is the ordered landmark list of the single detected pose in
// one view. An empty set means no pose was found.
type LandmarkSet []Landmark

// Empty reports whether no pose was detected.
func (s LandmarkSet) Empty() bool { return len(s) == 0 }

// View names the camera a detector serves.
type View string

const (
	ViewFront View = "front"
	ViewSide  View = "side"
)
