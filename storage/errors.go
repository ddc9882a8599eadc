package storage

import "fmt"

// Code partitions into numeric ranges: IO errors occupy
// 0x80000000-0x8FFFFFFF, internal errors 0x90000000-0x9FFFFFFF,
// user-visible errors live below 0x80000000.
type Code uint32

const (
	CodeUserGeneric         Code = 0x00000001
	CodeSyntax              Code = 0x00000002
	CodeSchemaNotFound      Code = 0x00000003
	CodePermissionDenied    Code = 0x00000004
	CodeValueOutOfRange     Code = 0x00000005
	CodeNotImplemented      Code = 0x00000006
	CodeDuplicateName       Code = 0x00000007

	CodeIOBase   Code = 0x80000000
	CodeShortRead  Code = 0x80000001
	CodeWriteFailed Code = 0x80000002
	CodeCorruptBlock Code = 0x80000003

	CodeInternalBase      Code = 0x90000000
	CodeIndexCorruption   Code = 0x90000001
	CodeInvariantViolated Code = 0x90000002
)

// IsIOError, IsInternalError classify a code by range.
func (c Code) IsIOError() bool       { return c >= CodeIOBase && c < CodeInternalBase }
func (c Code) IsInternalError() bool { return c >= CodeInternalBase }
func (c Code) IsUserVisible() bool   { return c < CodeIOBase }

// Error is the structured error value every operation returns instead of
// throwing: a code, a message, and an optional inner cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
	// Database/Table identify the offending entities for a corruption
	// condition raised against the main index.
	Database string
	Table    string
}

func (e *Error) Error() string {
	if e.Database != "" || e.Table != "" {
		return fmt.Sprintf("[%08x] %s (database=%s table=%s)", uint32(e.Code), e.Message, e.Database, e.Table)
	}
	return fmt.Sprintf("[%08x] %s", uint32(e.Code), e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CompoundError aggregates multiple independent failures into one error.
// SELECT validation does not use it: it stops at and returns the first
// unresolved column's error.
type CompoundError struct {
	Errors []*Error
}

func (c *CompoundError) Error() string {
	if len(c.Errors) == 1 {
		return c.Errors[0].Error()
	}
	s := fmt.Sprintf("%d errors:", len(c.Errors))
	for _, e := range c.Errors {
		s += "\n  " + e.Error()
	}
	return s
}

func (c *CompoundError) Add(e *Error) { c.Errors = append(c.Errors, e) }
func (c *CompoundError) Empty() bool  { return len(c.Errors) == 0 }

// NotImplemented builds the "not implemented" sentinel error returned for
// BEGIN/COMMIT/ROLLBACK/SAVEPOINT/RELEASE.
func NotImplemented(op string) *Error {
	return NewError(CodeNotImplemented, "%s is not implemented: the core auto-commits per row", op)
}
