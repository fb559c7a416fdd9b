// Package ast holds the decorated syntax tree handed to the code generator.
//
// Every node is produced by the front-end after name resolution and type
// checking: identifier references point at their declarations, calls point
// at their callee, and struct types point at their field list. The code
// generator trusts these decorations and reports a missing one as an
// internal error.
package ast

import (
	"fmt"
	"strings"
)

//  Declarations

// Program is a whole translation unit.
type Program struct {
	Structs []*StructTypeDecl
	Vars    []*VarDecl
	Funcs   []*FunDecl
}

// StructTypeDecl declares the ordered field list of a struct.
type StructTypeDecl struct {
	Name   string
	Fields []*VarDecl
}

func (s *StructTypeDecl) String() string {
	fields := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.String()
	}
	return fmt.Sprintf("struct %s { %s }", s.Name, strings.Join(fields, "; "))
}

// VarDecl declares a global, a local, a parameter or a struct field.
// Declarations are compared by identity, never by name.
type VarDecl struct {
	Type Type
	Name string
}

func (v *VarDecl) String() string { return fmt.Sprintf("%s %s", v.Type, v.Name) }

// FunDecl declares a function. Params are one word each.
type FunDecl struct {
	Type   Type
	Name   string
	Params []*VarDecl
	Body   *Block
}

func (f *FunDecl) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s %s(%s)", f.Type, f.Name, strings.Join(params, ", "))
}

// ParamIndex returns the position of p in the parameter list, matching by
// identity.
func (f *FunDecl) ParamIndex(p *VarDecl) (int, bool) {
	for i, q := range f.Params {
		if q == p {
			return i, true
		}
	}
	return 0, false
}

//  Statements

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

// Block is { decls... stmts... }.
type Block struct {
	Vars  []*VarDecl
	Stmts []Stmt
}

func (*Block) stmtNode() {}
func (b *Block) String() string {
	return fmt.Sprintf("Block(vars=%d, stmts=%d)", len(b.Vars), len(b.Stmts))
}

// While is while (Cond) Body.
type While struct {
	Cond Expr
	Body Stmt
}

func (*While) stmtNode()        {}
func (w *While) String() string { return fmt.Sprintf("while (%s)", w.Cond) }

// If is if (Cond) Then [else Else]. Else may be nil.
type If struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

func (*If) stmtNode()        {}
func (i *If) String() string { return fmt.Sprintf("if (%s)", i.Cond) }

// Return is return [Expr]. Func is the enclosing function, filled in by the
// front-end; the generator falls back to the function being generated when
// it is nil.
type Return struct {
	Expr Expr
	Func *FunDecl
}

func (*Return) stmtNode() {}
func (r *Return) String() string {
	if r.Expr == nil {
		return "return"
	}
	return fmt.Sprintf("return %s", r.Expr)
}

// Assign is LHS = RHS.
type Assign struct {
	LHS Expr
	RHS Expr
}

func (*Assign) stmtNode()        {}
func (a *Assign) String() string { return fmt.Sprintf("%s = %s", a.LHS, a.RHS) }

// ExprStmt evaluates Expr and discards the result.
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return e.Expr.String() }
