package realtime

import "time"

const (
	// Max bytes per inbound frame. Clients only send hello.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frame budget per session: a subscriber sends one hello, so a
	// handful of frames per window is already a misbehaving client.
	frameBudgetFrames = 20
	frameBudgetWindow = 10 * time.Second

	defaultBacklog = 20
	maxBacklog     = 200
)

// frameBudget counts inbound frames in fixed windows. It is owned by one
// session's read loop and is not safe for concurrent use.
type frameBudget struct {
	frames int
	window time.Duration

	start time.Time
	used  int
}

func newFrameBudget(frames int, window time.Duration) *frameBudget {
	if frames <= 0 {
		frames = frameBudgetFrames
	}
	if window <= 0 {
		window = frameBudgetWindow
	}
	return &frameBudget{frames: frames, window: window}
}

// spend charges one frame received at now and reports whether the session is
// still within budget.
func (b *frameBudget) spend(now time.Time) bool {
	if b.start.IsZero() || now.Sub(b.start) >= b.window {
		b.start, b.used = now, 0
	}
	b.used++
	return b.used <= b.frames
}
