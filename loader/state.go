package loader

// State is the loader lifecycle position
type State uint8

const (
	Unloaded State = iota
	Fetching
	Instantiating
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Fetching:
		return "fetching"
	case Instantiating:
		return "instantiating"
	case Running:
		return "running"
	case Failed:
		return "failed"
	}
	return "unknown"
}
