package store

import (
	"errors"
	"fmt"
)

//redis连接失败、命令执行失败都归为这一类
var ErrStoreUnavailable = errors.New("cart store unavailable")

// Error wraps a failed store operation. errors.Is(err, ErrStoreUnavailable) reports true for it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cart store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
