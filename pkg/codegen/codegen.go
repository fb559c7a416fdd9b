// Package codegen lowers a decorated AST to MIPS assembly text.
//
// Calling convention: the caller pushes arguments left to right on the
// stack and jumps; the callee saves every scratch register together with
// the caller's stack pointer, return address and frame pointer in its own
// frame, rebinds the frame pointer to the stack pointer, and reads argument
// i of n at fp + 4*(n-i). Results come back in $v0.
package codegen

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	"minic/pkg/ast"
	"minic/pkg/mips"
)

// Mode selects whether an expression yields its value or its location.
type Mode int

const (
	Value Mode = iota
	Address
)

func (m Mode) String() string {
	if m == Address {
		return "address"
	}
	return "value"
}

// context is threaded by value through the traversal.
type context struct {
	scope Scope
	fn    *ast.FunDecl // nil outside function bodies
	mode  Mode
}

func (c context) with(mode Mode) context {
	c.mode = mode
	return c
}

func (c context) in(s Scope) context {
	c.scope = s
	return c
}

// Options tunes generation. A nil *Options means DefaultOptions.
type Options struct {
	// PoolSize is the number of scratch registers available, clamped to
	// [1, len(mips.Pool)].
	PoolSize int
	// Entry is the function control starts in; its return terminates the
	// program.
	Entry string
}

func DefaultOptions() *Options {
	return &Options{PoolSize: len(mips.Pool), Entry: "main"}
}

// Generator holds the state of one generation pass.
type Generator struct {
	w      *mips.Writer
	regs   *RegisterAllocator
	mem    *Memory
	labels labeler
	opts   Options
}

func newGenerator(out io.Writer, opts *Options) *Generator {
	o := *DefaultOptions()
	if opts != nil {
		if opts.PoolSize > 0 {
			o.PoolSize = min(opts.PoolSize, len(mips.Pool))
		}
		if opts.Entry != "" {
			o.Entry = opts.Entry
		}
	}
	g := &Generator{w: mips.NewWriter(out), opts: o}
	g.regs = NewRegisterAllocator(g.w, o.PoolSize)
	g.mem = newMemory(g.w, g.regs, &g.labels)
	return g
}

// Generate writes the assembly for prog to out. Nothing is written if
// generation fails.
func Generate(prog *ast.Program, out io.Writer, opts *Options) error {
	g := newGenerator(out, opts)
	if err := g.genProgram(prog); err != nil {
		return err
	}
	return g.w.Finalize()
}

// GenerateString is Generate into a string.
func GenerateString(prog *ast.Program, opts *Options) (string, error) {
	var sb strings.Builder
	if err := Generate(prog, &sb, opts); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) genProgram(prog *ast.Program) error {
	var entry *ast.FunDecl
	for _, f := range prog.Funcs {
		if f.Name == g.opts.Entry {
			entry = f
		}
	}
	if entry == nil {
		return fmt.Errorf("%w: entry function %s", ErrNotDeclared, g.opts.Entry)
	}

	g.w.Header(mips.Data)
	g.w.Header(mips.Text)
	g.w.Move(mips.FP, mips.SP, "initialize frame pointer")
	g.w.B(entry.Name, "entry point")

	global := context{scope: Global}
	for _, v := range prog.Vars {
		if err := g.genVarDecl(global, v); err != nil {
			return err
		}
	}

	for _, f := range prog.Funcs {
		if f.Body == nil {
			return fmt.Errorf("%w: function %s has no body", ErrMissingDecoration, f.Name)
		}
		body := f.Body
		if err := g.genFunction(f, func(ctx context) error {
			return g.genBlock(ctx, body)
		}); err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
	}

	g.w.Blank()
	g.w.Comment("STDLIB")
	for _, tr := range stdlibTraps {
		if err := g.genFunction(tr.fn, g.trapBody(tr)); err != nil {
			return fmt.Errorf("function %s: %w", tr.fn.Name, err)
		}
	}
	return nil
}

func checkType(t ast.Type) error {
	switch tt := t.(type) {
	case nil:
		return fmt.Errorf("%w: no type", ErrMissingDecoration)
	case *ast.StructType:
		if tt.Decl == nil {
			return fmt.Errorf("%w: struct %s has no declaration", ErrMissingDecoration, tt.Name)
		}
	case *ast.ArrayType:
		return checkType(tt.Elem)
	}
	return nil
}

func (g *Generator) genVarDecl(ctx context, v *ast.VarDecl) error {
	if err := checkType(v.Type); err != nil {
		return fmt.Errorf("variable %s: %w", v.Name, err)
	}
	words := ast.Words(v.Type)
	if words == 0 {
		return fmt.Errorf("%w: variable %s of type %s has no storage", ErrUnsupported, v.Name, v.Type)
	}
	if ctx.scope != Global {
		g.w.Comment("VAR DECL %s", v)
	}
	return g.mem.DeclareVariable(ctx.scope, v, words)
}

// genFunction emits label, prologue, body and epilogue for fn.
func (g *Generator) genFunction(fn *ast.FunDecl, body func(context) error) error {
	scope := g.mem.Open(Global)
	defer g.mem.Close(scope)
	ctx := context{scope: scope, fn: fn}

	g.w.Blank()
	g.w.Label(fn.Name)
	g.w.Comment("FUNDECL %s", fn)
	g.w.ArithImm(mips.Addi, mips.TempSP, mips.SP, 0, "hold stack pointer")
	g.w.ArithImm(mips.Addi, mips.TempFP, mips.FP, 0, "hold frame pointer")
	g.w.Move(mips.FP, mips.SP, "bring up frame pointer")

	g.w.Comment("PRESERVE REGISTERS")
	for _, r := range g.regs.Pool() {
		if err := g.mem.PutRegister(scope, r, r.String()); err != nil {
			return err
		}
	}
	for _, d := range []struct {
		r    mips.Register
		name string
	}{{mips.TempSP, "$spF"}, {mips.RA, "$raF"}, {mips.TempFP, "$fpF"}} {
		if err := g.mem.PutRegister(scope, d.r, d.name); err != nil {
			return err
		}
	}
	g.regs.Reset()

	g.w.Comment("FUNC BODY")
	if err := body(ctx); err != nil {
		return err
	}
	if live := g.regs.Live(); live != 0 {
		return fmt.Errorf("%w: %d", ErrRegisterLeak, live)
	}

	g.w.Comment("RESTORE SAVED REGISTERS")
	return g.emitReturn(ctx, fn)
}

// emitReturn restores the dumps taken by fn's prologue and leaves fn. The
// entry function terminates the program instead.
func (g *Generator) emitReturn(ctx context, fn *ast.FunDecl) error {
	for _, r := range g.regs.Pool() {
		if err := g.mem.RetrieveRegister(ctx.scope, r.String(), r); err != nil {
			return err
		}
	}
	if err := g.mem.RetrieveRegister(ctx.scope, "$spF", mips.SP); err != nil {
		return err
	}
	if err := g.mem.RetrieveRegister(ctx.scope, "$raF", mips.RA); err != nil {
		return err
	}
	if err := g.mem.RetrieveRegister(ctx.scope, "$fpF", mips.FP); err != nil {
		return err
	}
	if fn.Name == g.opts.Entry {
		g.w.ArithImm(mips.Addi, mips.V0, mips.Zero, 10, "code for exit")
		g.w.Syscall("end program")
		return nil
	}
	g.w.JumpReg(mips.RA, "return to caller")
	return nil
}

// saveStackPointer dumps the current $sp under name. The dump slot itself
// moves $sp, so the value is staged in a temporary first.
func (g *Generator) saveStackPointer(s Scope, name string) error {
	g.w.Move(mips.TempSP, mips.SP, "temporary store")
	return g.mem.PutRegister(s, mips.TempSP, name)
}

// genNested generates stmt in a fresh frame whose stack effect is undone
// afterwards.
func (g *Generator) genNested(ctx context, stmt ast.Stmt) error {
	scope := g.mem.Open(ctx.scope)
	defer g.mem.Close(scope)

	name := fmt.Sprintf("$sp%d", g.labels.next())
	if err := g.saveStackPointer(scope, name); err != nil {
		return err
	}
	if err := g.genStmt(ctx.in(scope), stmt); err != nil {
		return err
	}
	return g.mem.RetrieveRegister(scope, name, mips.SP)
}

func (g *Generator) genBlock(ctx context, b *ast.Block) error {
	for _, v := range b.Vars {
		if err := g.genVarDecl(ctx, v); err != nil {
			return err
		}
	}
	for _, s := range b.Stmts {
		if err := g.genStmt(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) genStmt(ctx context, stmt ast.Stmt) error {
	ctx = ctx.with(Value)

	switch s := stmt.(type) {
	case *ast.Block:
		return g.genBlock(ctx, s)

	case *ast.While:
		n := g.labels.next()
		condLabel := fmt.Sprintf("while.cond.%d", n)
		exitLabel := fmt.Sprintf("while.exit.%d", n)

		g.w.Comment("WHILE %s", s.Cond)
		g.w.Label(condLabel)
		cond, err := g.genExpr(ctx, s.Cond)
		if err != nil {
			return err
		}
		g.w.Branch(mips.Beq, cond, mips.Zero, exitLabel, "condition false, leave loop")
		g.regs.Release(cond)

		if err := g.genNested(ctx, s.Body); err != nil {
			return err
		}
		g.w.B(condLabel, "jump to condition check")
		g.w.Label(exitLabel)
		return nil

	case *ast.If:
		n := g.labels.next()
		elseLabel := fmt.Sprintf("if.else.%d", n)
		exitLabel := fmt.Sprintf("if.exit.%d", n)

		g.w.Comment("IF %s", s.Cond)
		cond, err := g.genExpr(ctx, s.Cond)
		if err != nil {
			return err
		}
		if s.Else != nil {
			g.w.Branch(mips.Beq, cond, mips.Zero, elseLabel, "condition false, jump to else")
		} else {
			g.w.Branch(mips.Beq, cond, mips.Zero, exitLabel, "condition false, jump to exit")
		}
		g.regs.Release(cond)

		if err := g.genNested(ctx, s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			g.w.B(exitLabel, "leave if")
			g.w.Label(elseLabel)
			if err := g.genNested(ctx, s.Else); err != nil {
				return err
			}
		}
		g.w.Label(exitLabel)
		return nil

	case *ast.Return:
		fn := s.Func
		if fn == nil {
			fn = ctx.fn
		}
		if fn == nil || fn != ctx.fn {
			return fmt.Errorf("%w: return not matched to the enclosing function", ErrMissingDecoration)
		}
		g.w.Comment("RETURN")
		if s.Expr != nil {
			r, err := g.genExpr(ctx, s.Expr)
			if err != nil {
				return err
			}
			g.w.Move(mips.V0, r, "move return value")
			g.regs.Release(r)
		}
		return g.emitReturn(ctx, fn)

	case *ast.Assign:
		return g.genAssign(ctx, s)

	case *ast.ExprStmt:
		r, err := g.genExpr(ctx, s.Expr)
		if err != nil {
			return err
		}
		g.regs.Release(r)
		return nil
	}
	return fmt.Errorf("%w: statement %T", ErrUnsupported, stmt)
}

func (g *Generator) genAssign(ctx context, s *ast.Assign) error {
	t := s.LHS.Type()
	if err := checkType(t); err != nil {
		return fmt.Errorf("assignment to %s: %w", s.LHS, err)
	}
	if !ast.Addressable(s.LHS) {
		return fmt.Errorf("%w: cannot assign to %s", ErrUnsupported, s.LHS)
	}

	g.w.Comment("ASSIGN %s", s)
	lhs, err := g.genExpr(ctx.with(Address), s.LHS)
	if err != nil {
		return err
	}
	rhs, err := g.genExpr(ctx.with(Value), s.RHS)
	if err != nil {
		return err
	}

	switch {
	case ast.IsAggregate(t):
		tmp, err := g.regs.Acquire()
		if err != nil {
			return err
		}
		for i := 0; i < ast.Words(t); i++ {
			g.w.Load(mips.Lw, tmp, 4*i, rhs, "copy word")
			g.w.Store(mips.Sw, tmp, 4*i, lhs, "copy word")
		}
		g.regs.Release(tmp)
	case t.Size() == 1:
		g.w.Store(mips.Sb, rhs, 0, lhs, "assign byte value")
	default:
		g.w.Store(mips.Sw, rhs, 0, lhs, "assign value")
	}
	g.regs.Release(rhs)
	g.regs.Release(lhs)
	return nil
}

// load replaces the address in r with the value of type t stored there.
func (g *Generator) load(r mips.Register, t ast.Type, comment string) {
	if t.Size() == 1 {
		g.w.Load(mips.Lb, r, 0, r, comment)
	} else {
		g.w.Load(mips.Lw, r, 0, r, comment)
	}
}

// scale multiplies r by size in place. Sizes 0 and 1 leave r untouched.
func (g *Generator) scale(r mips.Register, size int) error {
	if size <= 1 {
		return nil
	}
	if size&(size-1) == 0 {
		g.w.Shift(mips.Sll, r, r, bits.TrailingZeros(uint(size)), fmt.Sprintf("multiply by element size %d", size))
		return nil
	}
	tmp, err := g.regs.Acquire()
	if err != nil {
		return err
	}
	g.w.ArithImm(mips.Addi, tmp, mips.Zero, size, "element size")
	g.w.MulDiv(mips.Mult, r, tmp, fmt.Sprintf("multiply by element size %d", size))
	g.w.MoveFrom(mips.Mflo, r, "load scaled value")
	g.regs.Release(tmp)
	return nil
}
