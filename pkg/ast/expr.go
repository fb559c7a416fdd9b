package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is implemented by every node that produces a value.
// Type returns the resolved static type, or nil when a decoration the type
// depends on is missing.
type Expr interface {
	exprNode()
	Type() Type
	String() string
}

// Op is a binary operator.
type Op int

const (
	Add Op = iota
	Sub
	Mul
	Div
	Mod
	Gt
	Lt
	Ge
	Le
	Ne
	Eq
	Or
	And
)

var opNames = [...]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Mod: "%",
	Gt:  ">",
	Lt:  "<",
	Ge:  ">=",
	Le:  "<=",
	Ne:  "!=",
	Eq:  "==",
	Or:  "||",
	And: "&&",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// IntLiteral is an integer constant.
type IntLiteral struct {
	Value int32
}

func (*IntLiteral) exprNode()        {}
func (*IntLiteral) Type() Type       { return Int }
func (l *IntLiteral) String() string { return strconv.Itoa(int(l.Value)) }

// ChrLiteral is a character constant 'c'.
type ChrLiteral struct {
	Value byte
}

func (*ChrLiteral) exprNode()        {}
func (*ChrLiteral) Type() Type       { return Char }
func (c *ChrLiteral) String() string { return strconv.QuoteRune(rune(c.Value)) }

// StrLiteral is a string constant. It evaluates to the address of its
// null-terminated data.
type StrLiteral struct {
	Value string
}

func (*StrLiteral) exprNode()        {}
func (*StrLiteral) Type() Type       { return Ptr(Char) }
func (s *StrLiteral) String() string { return strconv.Quote(s.Value) }

// VarExpr is a reference to a variable. Decl is its resolved declaration.
//
//	x = 1;
//	^  VarExpr{Name: "x", Decl: <int x>}
type VarExpr struct {
	Name string
	Decl *VarDecl
}

func (*VarExpr) exprNode() {}
func (v *VarExpr) Type() Type {
	if v.Decl == nil {
		return nil
	}
	return v.Decl.Type
}
func (v *VarExpr) String() string { return v.Name }

// FunCallExpr is name(args). Decl is the resolved callee.
type FunCallExpr struct {
	Name string
	Args []Expr
	Decl *FunDecl
}

func (*FunCallExpr) exprNode() {}
func (c *FunCallExpr) Type() Type {
	if c.Decl == nil {
		return nil
	}
	return c.Decl.Type
}
func (c *FunCallExpr) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

// BinOp is LHS Op RHS.
//
//	p + 1
//	^ ^ ^
//	| | RHS
//	| Op
//	LHS
type BinOp struct {
	LHS Expr
	Op  Op
	RHS Expr
}

func (*BinOp) exprNode() {}

// Type follows C: pointer arithmetic keeps the pointer type (arrays decay),
// everything else is int.
func (b *BinOp) Type() Type {
	if b.Op != Add && b.Op != Sub {
		return Int
	}
	lt, rt := b.LHS.Type(), b.RHS.Type()
	if lt == nil || rt == nil {
		return nil
	}
	if elem, ok := ElemOf(lt); ok {
		if _, rptr := ElemOf(rt); rptr && b.Op == Sub {
			return Int
		}
		return Ptr(elem)
	}
	if elem, ok := ElemOf(rt); ok && b.Op == Add {
		return Ptr(elem)
	}
	return Int
}

func (b *BinOp) String() string { return fmt.Sprintf("(%s %s %s)", b.LHS, b.Op, b.RHS) }

// ArrayAccessExpr is Array[Index]; Array is an array or a pointer.
type ArrayAccessExpr struct {
	Array Expr
	Index Expr
}

func (*ArrayAccessExpr) exprNode() {}
func (a *ArrayAccessExpr) Type() Type {
	t := a.Array.Type()
	if t == nil {
		return nil
	}
	elem, _ := ElemOf(t)
	return elem
}
func (a *ArrayAccessExpr) String() string { return fmt.Sprintf("%s[%s]", a.Array, a.Index) }

// FieldAccessExpr is Struct.Field.
type FieldAccessExpr struct {
	Struct Expr
	Field  string
}

func (*FieldAccessExpr) exprNode() {}
func (f *FieldAccessExpr) Type() Type {
	st, ok := f.Struct.Type().(*StructType)
	if !ok {
		return nil
	}
	fd, _, ok := st.Field(f.Field)
	if !ok {
		return nil
	}
	return fd.Type
}
func (f *FieldAccessExpr) String() string { return fmt.Sprintf("%s.%s", f.Struct, f.Field) }

// ValueAtExpr is *Ptr.
type ValueAtExpr struct {
	Ptr Expr
}

func (*ValueAtExpr) exprNode() {}
func (v *ValueAtExpr) Type() Type {
	t := v.Ptr.Type()
	if t == nil {
		return nil
	}
	elem, _ := ElemOf(t)
	return elem
}
func (v *ValueAtExpr) String() string { return fmt.Sprintf("*%s", v.Ptr) }

// SizeOfExpr is sizeof(Of).
type SizeOfExpr struct {
	Of Type
}

func (*SizeOfExpr) exprNode()        {}
func (*SizeOfExpr) Type() Type       { return Int }
func (s *SizeOfExpr) String() string { return fmt.Sprintf("sizeof(%s)", s.Of) }

// TypecastExpr is (To) Expr.
type TypecastExpr struct {
	To   Type
	Expr Expr
}

func (*TypecastExpr) exprNode()        {}
func (t *TypecastExpr) Type() Type     { return t.To }
func (t *TypecastExpr) String() string { return fmt.Sprintf("(%s)%s", t.To, t.Expr) }

// Addressable reports whether e denotes a storage location.
func Addressable(e Expr) bool {
	switch n := e.(type) {
	case *VarExpr, *ArrayAccessExpr, *FieldAccessExpr, *ValueAtExpr:
		return true
	case *TypecastExpr:
		return Addressable(n.Expr)
	}
	return false
}
