package codegen

import (
	"fmt"

	"minic/pkg/ast"
	"minic/pkg/mips"
)

// genExpr evaluates e into a freshly acquired scratch register. The caller
// owns the result and must release it. Only location expressions honour
// Address mode; everything else evaluates its operands by value.
func (g *Generator) genExpr(ctx context, e ast.Expr) (mips.Register, error) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		r, err := g.regs.Acquire()
		if err != nil {
			return mips.None, err
		}
		v := n.Value
		if v >= -0x8000 && v <= 0x7fff {
			g.w.ArithImm(mips.Addi, r, mips.Zero, int(v), "load integer")
		} else {
			g.w.Lui(r, int(uint32(v)>>16), "load integer upper half")
			g.w.LogicImm(mips.Ori, r, r, int(uint32(v)&0xffff), "load integer lower half")
		}
		return r, nil

	case *ast.ChrLiteral:
		r, err := g.regs.Acquire()
		if err != nil {
			return mips.None, err
		}
		g.w.ArithImm(mips.Addi, r, mips.Zero, int(n.Value), "load char "+n.String())
		return r, nil

	case *ast.StrLiteral:
		g.mem.PutStringConstant(n.Value)
		return g.mem.RetrieveStringConstant(n.Value)

	case *ast.SizeOfExpr:
		if err := checkType(n.Of); err != nil {
			return mips.None, err
		}
		r, err := g.regs.Acquire()
		if err != nil {
			return mips.None, err
		}
		g.w.ArithImm(mips.Addi, r, mips.Zero, n.Of.Size(), "size of "+n.Of.String())
		return r, nil

	case *ast.TypecastExpr:
		return g.genExpr(ctx, n.Expr)

	case *ast.VarExpr:
		return g.genVarExpr(ctx, n)

	case *ast.FunCallExpr:
		return g.genCall(ctx, n)

	case *ast.BinOp:
		return g.genBinOp(ctx.with(Value), n)

	case *ast.ArrayAccessExpr:
		return g.genArrayAccess(ctx, n)

	case *ast.FieldAccessExpr:
		return g.genFieldAccess(ctx, n)

	case *ast.ValueAtExpr:
		pt := n.Ptr.Type()
		if pt == nil {
			return mips.None, fmt.Errorf("%w: %s has no type", ErrMissingDecoration, n.Ptr)
		}
		elem, ok := ast.ElemOf(pt)
		if !ok {
			return mips.None, fmt.Errorf("%w: dereference of %s", ErrUnsupported, pt)
		}
		addr, err := g.genExpr(ctx.with(Value), n.Ptr)
		if err != nil {
			return mips.None, err
		}
		if ctx.mode == Value && !ast.IsAggregate(elem) && elem.Size() > 0 {
			g.load(addr, elem, "dereference pointer value")
		}
		return addr, nil
	}
	return mips.None, fmt.Errorf("%w: expression %T", ErrUnsupported, e)
}

func (g *Generator) genVarExpr(ctx context, v *ast.VarExpr) (mips.Register, error) {
	if v.Decl == nil {
		return mips.None, fmt.Errorf("%w: variable %s is unresolved", ErrMissingDecoration, v.Name)
	}
	if err := checkType(v.Decl.Type); err != nil {
		return mips.None, fmt.Errorf("variable %s: %w", v.Name, err)
	}

	var (
		addr  mips.Register
		found bool
		err   error
	)
	if ctx.fn != nil {
		addr, found, err = g.mem.RetrieveFunctionArgumentAddress(ctx.scope, ctx.fn, v.Decl)
		if err != nil {
			return mips.None, err
		}
	}
	if !found {
		if addr, err = g.mem.RetrieveVariableAddress(ctx.scope, v.Decl, mips.None); err != nil {
			return mips.None, err
		}
	}

	t := v.Decl.Type
	if ctx.mode == Value && !ast.IsAggregate(t) {
		g.load(addr, t, "load variable value: "+v.Name)
	}
	return addr, nil
}

func (g *Generator) genCall(ctx context, call *ast.FunCallExpr) (mips.Register, error) {
	fn := call.Decl
	if fn == nil {
		return mips.None, fmt.Errorf("%w: call to %s is unresolved", ErrMissingDecoration, call.Name)
	}
	if len(call.Args) != len(fn.Params) {
		return mips.None, fmt.Errorf("%w: %s takes %d arguments, call has %d",
			ErrMissingDecoration, fn.Name, len(fn.Params), len(call.Args))
	}

	g.w.Comment("FUNCALL %s", call)
	scope := g.mem.Open(ctx.scope)
	defer g.mem.Close(scope)

	spName := fmt.Sprintf("$sp%d", g.labels.next())
	if err := g.saveStackPointer(scope, spName); err != nil {
		return mips.None, err
	}

	inner := ctx.in(scope).with(Value)
	for i, arg := range call.Args {
		param := fn.Params[i]
		if err := checkType(param.Type); err != nil {
			return mips.None, fmt.Errorf("parameter %s of %s: %w", param.Name, fn.Name, err)
		}
		if ast.IsAggregate(param.Type) {
			return mips.None, fmt.Errorf("%w: parameter %s of %s has aggregate type %s",
				ErrUnsupported, param.Name, fn.Name, param.Type)
		}

		if g.mem.ContainsVariable(scope, param) {
			// the same parameter is already being pushed further out: a
			// call nested in an argument of a call to the same function
			r, err := g.genExpr(inner, arg)
			if err != nil {
				return mips.None, err
			}
			if param.Type.Size() == 1 {
				g.w.Store(mips.Sb, r, 0, mips.SP, "re-declare argument: "+param.Name)
			} else {
				g.w.Store(mips.Sw, r, 0, mips.SP, "re-declare argument: "+param.Name)
			}
			g.regs.Release(r)
			if err := g.mem.ExpandStack(scope, max(1, ast.Words(param.Type))); err != nil {
				return mips.None, err
			}
			continue
		}

		if err := g.mem.DeclareVariable(scope, param, 1); err != nil {
			return mips.None, err
		}
		r, err := g.genExpr(inner, arg)
		if err != nil {
			return mips.None, err
		}
		if err := g.mem.PutVariable(scope, param, r, mips.None); err != nil {
			return mips.None, err
		}
		g.regs.Release(r)
	}

	g.w.Jump(mips.Jal, fn.Name, "call "+fn.Name)
	r, err := g.regs.Acquire()
	if err != nil {
		return mips.None, err
	}
	g.w.Move(r, mips.V0, "move return value to scratch register")
	if err := g.mem.RetrieveRegister(scope, spName, mips.SP); err != nil {
		return mips.None, err
	}
	return r, nil
}

func (g *Generator) genBinOp(ctx context, b *ast.BinOp) (mips.Register, error) {
	lt, rt := b.LHS.Type(), b.RHS.Type()
	if lt == nil || rt == nil {
		return mips.None, fmt.Errorf("%w: operand of %s has no type", ErrMissingDecoration, b)
	}

	lhs, err := g.genExpr(ctx, b.LHS)
	if err != nil {
		return mips.None, err
	}

	switch b.Op {
	case ast.And:
		return lhs, g.genShortCircuit(ctx, b, lhs, "and", mips.Beq)
	case ast.Or:
		return lhs, g.genShortCircuit(ctx, b, lhs, "or", mips.Bne)
	}

	rhs, err := g.genExpr(ctx, b.RHS)
	if err != nil {
		return mips.None, err
	}

	switch b.Op {
	case ast.Add, ast.Sub:
		if elem, ok := ast.ElemOf(lt); ok {
			if _, rptr := ast.ElemOf(rt); !rptr {
				err = g.scale(rhs, elem.Size())
			}
		} else if elem, ok := ast.ElemOf(rt); ok && b.Op == ast.Add {
			err = g.scale(lhs, elem.Size())
		}
		if err != nil {
			return mips.None, err
		}
		if b.Op == ast.Add {
			g.w.Arith(mips.Add, lhs, lhs, rhs, "operator +")
		} else {
			g.w.Arith(mips.Sub, lhs, lhs, rhs, "operator -")
		}
	case ast.Mul:
		g.w.MulDiv(mips.Mult, lhs, rhs, "operator *")
		g.w.MoveFrom(mips.Mflo, lhs, "load lower 32 bit result")
	case ast.Div:
		g.w.MulDiv(mips.Div, lhs, rhs, "operator /")
		g.w.MoveFrom(mips.Mflo, lhs, "load div quotient")
	case ast.Mod:
		g.w.MulDiv(mips.Div, lhs, rhs, "operator %")
		g.w.MoveFrom(mips.Mfhi, lhs, "load div remainder")
	case ast.Gt:
		g.w.Set(mips.Sgt, lhs, lhs, rhs, "operator >")
	case ast.Lt:
		g.w.Set(mips.Slt, lhs, lhs, rhs, "operator <")
	case ast.Ge:
		g.w.Set(mips.Sge, lhs, lhs, rhs, "operator >=")
	case ast.Le:
		g.w.Set(mips.Sle, lhs, lhs, rhs, "operator <=")
	case ast.Eq:
		g.w.Set(mips.Seq, lhs, lhs, rhs, "operator ==")
	case ast.Ne:
		g.w.Set(mips.Sne, lhs, lhs, rhs, "operator !=")
	default:
		return mips.None, fmt.Errorf("%w: operator %s", ErrUnsupported, b.Op)
	}
	g.regs.Release(rhs)
	return lhs, nil
}

// genShortCircuit finishes && (decide on Beq, the left side is false) or
// || (decide on Bne, the left side is true). The result in lhs is 0 or 1.
func (g *Generator) genShortCircuit(ctx context, b *ast.BinOp, lhs mips.Register, name string, decide mips.BranchOp) error {
	n := g.labels.next()
	decided := fmt.Sprintf("%s.false.%d", name, n)
	exit := fmt.Sprintf("%s.exit.%d", name, n)
	outcome, other := 0, 1
	if decide == mips.Bne {
		decided = fmt.Sprintf("%s.true.%d", name, n)
		outcome, other = 1, 0
	}

	g.w.Branch(decide, lhs, mips.Zero, decided, "operator "+b.Op.String()+" lhs decides")
	rhs, err := g.genExpr(ctx, b.RHS)
	if err != nil {
		return err
	}
	g.w.Branch(decide, rhs, mips.Zero, decided, "rhs decides")
	g.regs.Release(rhs)
	g.w.ArithImm(mips.Addi, lhs, mips.Zero, other, "outcome when neither side decides")
	g.w.B(exit, "exit "+b.Op.String())
	g.w.Label(decided)
	g.w.ArithImm(mips.Addi, lhs, mips.Zero, outcome, "decided outcome")
	g.w.Label(exit)
	return nil
}

func (g *Generator) genArrayAccess(ctx context, a *ast.ArrayAccessExpr) (mips.Register, error) {
	bt := a.Array.Type()
	if bt == nil {
		return mips.None, fmt.Errorf("%w: %s has no type", ErrMissingDecoration, a.Array)
	}
	elem, ok := ast.ElemOf(bt)
	if !ok {
		return mips.None, fmt.Errorf("%w: indexing %s", ErrUnsupported, bt)
	}

	g.w.Comment("ARRAY ACCESS %s", a)
	var (
		base mips.Register
		err  error
	)
	if ctx.mode == Address && ast.Addressable(a.Array) {
		if base, err = g.genExpr(ctx, a.Array); err != nil {
			return mips.None, err
		}
		if ast.IsPointer(bt) {
			g.w.Load(mips.Lw, base, 0, base, "load pointer address value")
		}
	} else if base, err = g.genExpr(ctx.with(Value), a.Array); err != nil {
		return mips.None, err
	}

	idx, err := g.genExpr(ctx.with(Value), a.Index)
	if err != nil {
		return mips.None, err
	}
	if err := g.scale(idx, elem.Size()); err != nil {
		return mips.None, err
	}
	g.w.Arith(mips.Add, base, base, idx, "find address of element")
	g.regs.Release(idx)

	if ctx.mode == Value && !ast.IsAggregate(elem) {
		g.load(base, elem, "load array element value")
	}
	return base, nil
}

func (g *Generator) genFieldAccess(ctx context, f *ast.FieldAccessExpr) (mips.Register, error) {
	v, ok := f.Struct.(*ast.VarExpr)
	if !ok {
		return mips.None, fmt.Errorf("%w: %s is not a variable", ErrInvalidFieldAccess, f.Struct)
	}
	if v.Decl == nil {
		return mips.None, fmt.Errorf("%w: variable %s is unresolved", ErrMissingDecoration, v.Name)
	}
	st, ok := v.Decl.Type.(*ast.StructType)
	if !ok {
		return mips.None, fmt.Errorf("%w: %s has type %s", ErrInvalidFieldAccess, v.Name, v.Decl.Type)
	}
	if st.Decl == nil {
		return mips.None, fmt.Errorf("%w: struct %s has no declaration", ErrMissingDecoration, st.Name)
	}
	field, offset, ok := st.Field(f.Field)
	if !ok {
		return mips.None, fmt.Errorf("%w: %s has no field %s", ErrUnknownField, st, f.Field)
	}

	g.w.Comment("STRUCT ACCESS %s", f)
	addr, err := g.genExpr(ctx.with(Address), v)
	if err != nil {
		return mips.None, err
	}
	g.w.ArithImm(mips.Addi, addr, addr, offset, "find field address: "+f.Field)
	if ctx.mode == Value && !ast.IsAggregate(field.Type) {
		g.load(addr, field.Type, "load field value")
	}
	return addr, nil
}
