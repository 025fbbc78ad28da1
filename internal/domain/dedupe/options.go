package dedupe

// Option configures a frame deduper.
type Option func(*frameDeduper)

// WithMaxSize bounds how many indices are remembered. Values <= 0 disable eviction.
func WithMaxSize(maxSize int) Option {
	return func(d *frameDeduper) {
		d.maxSize = maxSize
	}
}
