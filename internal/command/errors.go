package command

import (
	"errors"
	"fmt"
)

// InputError is the single error kind raised by the engine: bad keys, bad
// flags, wrong arity, failed coercions, protected entries, unknown commands.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func NewInputError(format string, a ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, a...)}
}

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
