package types

// FrameTask represents a single frame sent to a worker for processing
type FrameTask struct {
	Index     int
	Timestamp float64 // capture time in seconds
	Data      []byte
}

// Point is a landmark coordinate normalized to the frame, (x, y) in [0,1]².
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LandmarkSet is the detector output for one frame with a face.
// A nil *LandmarkSet means no face was found.
type LandmarkSet struct {
	Width  int           `json:"width"`  // frame width in pixels
	Height int           `json:"height"` // frame height in pixels
	Points map[int]Point `json:"points"` // keyed by face-mesh landmark index
}

// Subset returns the points for the given indices, in order, skipping any the detector did not report.
func (l *LandmarkSet) Subset(indices []int) []Point {
	if l == nil {
		return nil
	}
	out := make([]Point, 0, len(indices))
	for _, idx := range indices {
		if p, ok := l.Points[idx]; ok {
			out = append(out, p)
		}
	}
	return out
}
