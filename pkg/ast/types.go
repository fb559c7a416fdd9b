package ast

import "fmt"

// WordSize is the size in bytes of one machine word.
const WordSize = 4

// Type is a resolved static type attached to declarations and expressions.
type Type interface {
	typeNode()
	// Size is the number of bytes a value of this type occupies.
	Size() int
	String() string
}

// BaseType is one of the built-in scalar types.
type BaseType int

const (
	Int BaseType = iota
	Char
	Void
)

func (BaseType) typeNode() {}

func (b BaseType) Size() int {
	switch b {
	case Int:
		return 4
	case Char:
		return 1
	default:
		return 0
	}
}

func (b BaseType) String() string {
	switch b {
	case Int:
		return "int"
	case Char:
		return "char"
	case Void:
		return "void"
	default:
		return fmt.Sprintf("BaseType(%d)", int(b))
	}
}

// PointerType is Elem*.
type PointerType struct {
	Elem Type
}

func (*PointerType) typeNode()        {}
func (*PointerType) Size() int        { return WordSize }
func (p *PointerType) String() string { return fmt.Sprintf("%s*", p.Elem) }

// ArrayType is Elem[Len].
type ArrayType struct {
	Elem Type
	Len  int
}

func (*ArrayType) typeNode()        {}
func (a *ArrayType) Size() int      { return a.Len * a.Elem.Size() }
func (a *ArrayType) String() string { return fmt.Sprintf("%s[%d]", a.Elem, a.Len) }

// StructType refers to a struct by name. Decl is filled in by name resolution.
type StructType struct {
	Name string
	Decl *StructTypeDecl
}

func (*StructType) typeNode() {}

// Size is the sum of the field sizes, each padded to whole words.
// An unresolved struct has size 0.
func (s *StructType) Size() int {
	if s.Decl == nil {
		return 0
	}
	size := 0
	for _, f := range s.Decl.Fields {
		size += Words(f.Type) * WordSize
	}
	return size
}

func (s *StructType) String() string { return "struct " + s.Name }

// Ptr is shorthand for &PointerType{Elem: t}.
func Ptr(t Type) *PointerType { return &PointerType{Elem: t} }

// Array is shorthand for &ArrayType{Elem: t, Len: n}.
func Array(t Type, n int) *ArrayType { return &ArrayType{Elem: t, Len: n} }

// Words returns the number of whole words needed to hold a value of type t.
func Words(t Type) int {
	return (t.Size() + WordSize - 1) / WordSize
}

// IsAggregate reports whether t is an array or struct. Aggregates evaluate
// to the address of their storage rather than to a loaded value.
func IsAggregate(t Type) bool {
	switch t.(type) {
	case *ArrayType, *StructType:
		return true
	}
	return false
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(*PointerType)
	return ok
}

// ElemOf returns the element type of a pointer or array.
func ElemOf(t Type) (Type, bool) {
	switch tt := t.(type) {
	case *PointerType:
		return tt.Elem, true
	case *ArrayType:
		return tt.Elem, true
	}
	return nil, false
}

// Field looks up a field of a resolved struct and returns it together with
// its byte offset from the start of the struct.
func (s *StructType) Field(name string) (*VarDecl, int, bool) {
	if s.Decl == nil {
		return nil, 0, false
	}
	offset := 0
	for _, f := range s.Decl.Fields {
		if f.Name == name {
			return f, offset, true
		}
		offset += Words(f.Type) * WordSize
	}
	return nil, 0, false
}
