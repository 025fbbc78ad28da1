package testfeed

import "time"

// Config controls what the feed streams for every video.
type Config struct {
	Addr     string        // listen address
	Frames   int           // keypoints frames per video
	FPS      float64       // frame cadence; also drives timestamps
	Persons  int           // people per frame
	Analysis bool          // send a bedrock_analysis message before complete
	DropAt   int           // drop the socket without a close frame after this many frames; 0 disables
	Drops    int           // how many connections per video are dropped
	Jitter   float64       // landmark noise amplitude in normalized units
	Interval time.Duration // overrides 1/FPS when positive; negative streams without pacing
}

// DefaultConfig returns a 10 second, 25fps, two-person feed.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8000",
		Frames:   250,
		FPS:      25,
		Persons:  2,
		Analysis: true,
		Jitter:   0.004,
	}
}

func (c Config) interval() time.Duration {
	switch {
	case c.Interval > 0:
		return c.Interval
	case c.Interval < 0:
		return 0
	}
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FPS)
}
