package codegen

import "errors"

// Every failure aborts the whole generation pass. These sentinels are wrapped
// with context via fmt.Errorf("%w: ...").
var (
	ErrRegistersExhausted = errors.New("register pool exhausted")
	ErrAlreadyDeclared    = errors.New("variable already declared in this frame")
	ErrNotDeclared        = errors.New("not declared")
	ErrGlobalSegment      = errors.New("operation not valid on the global segment")
	ErrInvalidFieldAccess = errors.New("invalid field access")
	ErrUnknownField       = errors.New("unknown struct field")
	ErrMissingDecoration  = errors.New("missing AST decoration")
	ErrRegisterLeak       = errors.New("scratch registers still live at end of function")
	ErrUnsupported        = errors.New("unsupported construct")
)
