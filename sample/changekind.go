package sample

// ChangeKind classifies a sample against the lifecycle of its instance.
type ChangeKind uint8

const (
	Alive ChangeKind = iota
	NotAliveDisposed
	NotAliveUnregistered
	NotAliveDisposedUnregistered
)

func (c ChangeKind) String() string {
	switch c {
	case Alive:
		return "ALIVE"
	case NotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case NotAliveUnregistered:
		return "NOT_ALIVE_UNREGISTERED"
	case NotAliveDisposedUnregistered:
		return "NOT_ALIVE_DISPOSED_UNREGISTERED"
	default:
		return "UNKNOWN"
	}
}

// IsDisposed returns true if the instance's value was disposed.
func (c ChangeKind) IsDisposed() bool {
	return c == NotAliveDisposed || c == NotAliveDisposedUnregistered
}

// IsUnregistered returns true if the writer unregistered from the instance.
func (c ChangeKind) IsUnregistered() bool {
	return c == NotAliveUnregistered || c == NotAliveDisposedUnregistered
}
