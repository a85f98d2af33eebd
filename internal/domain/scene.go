package domain

// Scene is one fixed-duration narrative unit cut from a generated script.
type Scene struct {
	Number      int     `json:"scene_number"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Start       float64 `json:"start_time"`
	End         float64 `json:"end_time"`
}

// Retime recomputes contiguous start/end times over scenes already sorted by
// scene number. endTime[i] == startTime[i+1] for every adjacent pair.
func Retime(scenes []Scene) {
	var t float64
	for i := range scenes {
		scenes[i].Start = t
		scenes[i].End = t + scenes[i].Duration
		t = scenes[i].End
	}
}

// TotalDuration is the summed duration of all scenes in seconds.
func TotalDuration(scenes []Scene) float64 {
	var d float64
	for _, s := range scenes {
		d += s.Duration
	}
	return d
}
