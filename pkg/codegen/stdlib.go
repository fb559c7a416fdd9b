package codegen

import (
	"minic/pkg/ast"
	"minic/pkg/mips"
)

// trap is a built-in function implemented by a single syscall. arg is the
// width used to stage the one argument into $a0; empty for no argument.
type trap struct {
	fn   *ast.FunDecl
	code int
	arg  mips.LoadOp
	what string
}

var stdlibTraps = []trap{
	{ast.PrintC, 11, mips.Lb, "print char"},
	{ast.PrintS, 4, mips.Lw, "print string"},
	{ast.PrintI, 1, mips.Lw, "print int"},
	{ast.ReadC, 12, "", "read char"},
	{ast.ReadI, 5, "", "read int"},
	{ast.Alloc, 9, mips.Lw, "heap alloc"},
}

func (g *Generator) trapBody(tr trap) func(context) error {
	return func(ctx context) error {
		g.w.ArithImm(mips.Addi, mips.V0, mips.Zero, tr.code, "code for "+tr.what)
		if tr.arg != "" {
			param := tr.fn.Params[0]
			addr, _, err := g.mem.RetrieveFunctionArgumentAddress(ctx.scope, tr.fn, param)
			if err != nil {
				return err
			}
			g.w.Load(tr.arg, mips.A0, 0, addr, "load argument: "+param.Name)
			g.regs.Release(addr)
		}
		g.w.Syscall(tr.what)
		return nil
	}
}
