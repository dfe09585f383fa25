package errs

import (
	"fmt"
)

// CodeError carries a stable numeric code next to a human readable
// description. Matching with errors.Is compares codes only, so a wrapped
// error with extra context still matches its template.
type CodeError interface {
	error
	Code() int32
	Printf(format string, args ...any) CodeError
	Is(error) bool
}

func CreateCodeError(code int32, desc string) CodeError {
	return &codeError{
		Errno: code,
		Desc:  desc,
	}
}

// WrapError converts an arbitrary error into a CodeError, reusing the
// original if it already is one.
func WrapError(err error) CodeError {
	if x, ok := err.(*codeError); ok {
		return x
	}
	return CreateCodeError(ErrCode_Unknown, err.Error())
}

type codeError struct {
	Errno int32
	Desc  string
}

func (e *codeError) Code() int32 {
	return e.Errno
}

func (e *codeError) Error() string {
	return e.Desc
}

func (e *codeError) String() string {
	return fmt.Sprintf("errno: %d, desc: %s", e.Errno, e.Desc)
}

// Printf derives a new error with the same code and appended context.
func (e *codeError) Printf(format string, args ...any) CodeError {
	if len(format) == 0 {
		return e
	}
	return &codeError{
		Errno: e.Errno,
		Desc:  fmt.Sprintf(e.Desc+","+format, args...),
	}
}

func (e *codeError) Is(target error) bool {
	if x, ok := target.(*codeError); ok {
		return x.Errno == e.Errno
	}
	return false
}
