package domain

import "errors"

// ErrorKind tells callers how to react to a failure: surface it, retry it, or
// drop it.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindUpstream
	KindPersistence
	KindPublish
	KindDecode
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindPersistence:
		return "persistence"
	case KindPublish:
		return "publish"
	case KindDecode:
		return "decode"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyOrder       = errors.New("order must have at least one item")
	ErrMissingProduct   = errors.New("product id is required")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidPageQuery = errors.New("invalid page query")
	ErrInvalidEvent     = errors.New("invalid event")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// EnsureKind wraps err with kind unless it already carries one.
func EnsureKind(kind ErrorKind, op string, err error) error {
	if err == nil || KindOf(err) != KindUnknown {
		return err
	}
	return NewError(kind, op, err)
}
