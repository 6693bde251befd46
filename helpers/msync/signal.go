package msync

// Signal is a non-blocking wakeup, repeated Set before Wait coalesce.
type Signal chan Nothing

func NewSignalBuffered() Signal { return make(chan Nothing, 1) }

func (s Signal) Set() {
	select {
	case s <- Nothing{}:
	default:
	}
}
func (s Signal) Wait() { <-s }
