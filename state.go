package player

import "fmt"

// State is the playback session's lifecycle state.
type State int

const (
	// StateEmpty means no track has been loaded yet.
	StateEmpty State = iota

	// StateLoaded means a track is installed and the cursor is parked.
	StateLoaded

	// StatePlaying means the callback is consuming source audio.
	StatePlaying

	// StatePaused means playback is suspended: the callback emits silence
	// and the cursor does not advance.
	StatePaused

	// StateStopped means playback halted, by Stop or by reaching the end
	// of the track. The track stays loaded; after a natural end the
	// cursor sits at the end, so position reads the full duration.
	StateStopped
)

// String implements fmt.Stringer for logs and status lines.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TrackInfo describes a loaded track. Duration is in seconds at the
// session's playback rate.
type TrackInfo struct {
	Path       string
	Duration   float64
	SampleRate int
	Channels   int
}
