package flash

import "errors"

var (
	ErrNotInitialized = errors.New("flash: device not initialized")
	ErrOutOfRange     = errors.New("flash: out of range")
	ErrTransport      = errors.New("flash: bus transaction failed")
)

// Result classifies the outcome of a driver call.
type Result int

const (
	ResultOK Result = iota
	ResultNotInitialized
	ResultOutOfRange
	ResultTransportFailure
)

// ResultOf maps an error returned by Flash to its Result. Errors that did not
// come from the driver are reported as transport failures.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrNotInitialized):
		return ResultNotInitialized
	case errors.Is(err, ErrOutOfRange):
		return ResultOutOfRange
	default:
		return ResultTransportFailure
	}
}

func (r Result) OK() bool {
	return r == ResultOK
}

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNotInitialized:
		return "not initialized"
	case ResultOutOfRange:
		return "out of range"
	case ResultTransportFailure:
		return "transport failure"
	default:
		return "unknown"
	}
}
