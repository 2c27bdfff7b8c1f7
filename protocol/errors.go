package protocol

import "github.com/pkg/errors"

var (
	ErrEmptyKey           = errors.New("empty key")
	ErrTooLargeKey        = errors.New("too large key")
	ErrTooLargeItem       = errors.New("too large item")
	ErrInvalidOption      = errors.New("invalid option")
	ErrTooManyFields      = errors.New("too many fields")
	ErrMoreFieldsRequired = errors.New("more fields required")
	ErrFieldsParseError   = errors.New("fields parse error")
	ErrInvalidCharInKey   = errors.New("key contains invalid characters")
	ErrUnknownCommand     = errors.New("unknown command")
)
