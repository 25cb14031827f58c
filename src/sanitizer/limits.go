package sanitizer

const (
	// DefaultMaxStringLength is the rune count above which strings are truncated.
	DefaultMaxStringLength = 200
	// DefaultMaxInteger is the ceiling numbers are clamped to.
	DefaultMaxInteger int64 = 2147483647
	// DefaultMaxDepth is the nesting depth at which objects and arrays are
	// replaced by the depth marker.
	DefaultMaxDepth = 64

	// ArrayLengthKey is the single key of the object that replaces an array.
	ArrayLengthKey = "_array_length"
	// DepthExceededKey is the single key of the object that replaces a
	// container nested MaxDepth or more levels down.
	DepthExceededKey = "_depth_exceeded"
)

// Limits bounds the shape of sanitized output.
type Limits struct {
	MaxStringLength int
	MaxInteger      int64
	MaxDepth        int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxStringLength: DefaultMaxStringLength,
		MaxInteger:      DefaultMaxInteger,
		MaxDepth:        DefaultMaxDepth,
	}
}

// normalize replaces out-of-range limits with their defaults.
func (l Limits) normalize() Limits {
	if l.MaxStringLength < 0 {
		l.MaxStringLength = DefaultMaxStringLength
	}
	if l.MaxInteger <= 0 {
		l.MaxInteger = DefaultMaxInteger
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	return l
}
