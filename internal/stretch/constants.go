package stretch

// Window sizing.
const (
	// defaultRealtimeWindow is the STFT window for the realtime preset.
	// At 48kHz this is ~43ms, a workable compromise between transient
	// smearing and frequency resolution for live playback.
	defaultRealtimeWindow = 2048

	// defaultOfflineWindow is the STFT window for the offline preset,
	// trading latency for cleaner low-frequency handling.
	defaultOfflineWindow = 4096

	// overlapFactor is the synthesis overlap (hop = window/overlapFactor).
	// Four-fold overlap keeps the squared-Hann overlap-add sum flat.
	overlapFactor = 4
)

// Ratio operating ranges. Values outside are clamped, mirroring the
// engine-level tempo bounds; +-24 semitones corresponds to pitch scale 4.
const (
	minTimeRatio  = 0.25
	maxTimeRatio  = 4.0
	minPitchScale = 0.25
	maxPitchScale = 4.0
)

// Numerical guards.
const (
	// normFloor prevents division blow-ups where the window-squared
	// overlap sum has not accumulated yet (stream edges).
	normFloor = 1e-8

	// compactSlack is how far a buffer's consumed prefix may grow, in
	// windows, before the prefix is copied down.
	compactSlack = 4
)

// channelLimit bounds accepted channel counts; matches the device layer.
const channelLimit = 8
