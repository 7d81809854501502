package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConfiguration     Code = "CONFIGURATION_ERROR"
	CodeRowConversion     Code = "ROW_CONVERSION_ERROR"
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	CodeMergeApply        Code = "MERGE_APPLY_ERROR"
	CodeLocked            Code = "RUN_LOCKED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a run reacts to an error code. Retryable means an
// operator may simply rerun the command; it is false for codes whose run
// already retried internally or needs a fix first.
type Metadata struct {
	ExitCode      int
	Retryable     bool
	Fatal         bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		ExitCode:      2,
		Fatal:         true,
		PublicMessage: "invalid input",
	},
	CodeNotFound: {
		ExitCode:      3,
		Fatal:         true,
		PublicMessage: "resource not found",
	},
	CodeConfiguration: {
		ExitCode:      4,
		Fatal:         true,
		PublicMessage: "configuration incomplete",
	},
	CodeRowConversion: {
		ExitCode:      0,
		Fatal:         false,
		PublicMessage: "row skipped",
	},
	CodeSourceUnavailable: {
		ExitCode:      5,
		Retryable:     true,
		Fatal:         true,
		PublicMessage: "report source unavailable",
	},
	CodeMergeApply: {
		ExitCode:      6,
		Fatal:         true,
		PublicMessage: "merge into fact table failed",
	},
	CodeLocked: {
		ExitCode:      7,
		Fatal:         true,
		PublicMessage: "another run holds the lock",
	},
	CodeInternal: {
		ExitCode:      1,
		Fatal:         true,
		PublicMessage: "internal error",
	},
	CodeDependency: {
		ExitCode:      8,
		Retryable:     true,
		Fatal:         true,
		PublicMessage: "dependency unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether any typed error in the chain carries the code.
func IsCode(err error, code Code) bool {
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		if typed, ok := e.(*Error); ok && typed.code == code {
			return true
		}
	}
	return false
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return MetadataFor(CodeOf(err)).ExitCode
}
