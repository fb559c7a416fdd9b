package codegen

import (
	"bytes"
	"strings"
	"testing"

	"minic/pkg/ast"
	"minic/pkg/mips"
	"minic/pkg/sim"
)

// runProgram generates, assembles and executes prog, returning its output.
func runProgram(t *testing.T, prog *ast.Program, stdin string) (string, sim.Result) {
	t.Helper()
	assembly, err := GenerateString(prog, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	machine, err := sim.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assemble failed: %v\nAssembly:\n%s", err, assembly)
	}

	var out bytes.Buffer
	res, err := sim.Run(machine, sim.Config{
		MaxSteps: 200000,
		Stdin:    strings.NewReader(stdin),
		Stdout:   &out,
	})
	if err != nil {
		t.Fatalf("Run failed: %v\nOutput so far: %q", err, out.String())
	}

	// the entry function's epilogue unwinds everything
	if got := uint32(res.Regs[mips.SP]); got != sim.StackTop {
		t.Errorf("stack not unwound: $sp = 0x%08x, want 0x%08x", got, sim.StackTop)
	}
	if got := uint32(res.Regs[mips.FP]); got != sim.StackTop {
		t.Errorf("frame pointer not restored: $fp = 0x%08x", got)
	}
	return out.String(), res
}

func printI(e ast.Expr) ast.Stmt { return do(call(ast.PrintI, e)) }
func printS(s string) ast.Stmt   { return do(call(ast.PrintS, str(s))) }

func TestE2E_Factorial(t *testing.T) {
	// int fact(int n) { if (n <= 1) { return 1; } return n * fact(n - 1); }
	n := decl(ast.Int, "n")
	fact := fun(ast.Int, "fact", n)
	fact.Body = block(nil,
		&ast.If{Cond: bin(ref(n), ast.Le, num(1)), Then: block(nil, ret(num(1)))},
		ret(bin(ref(n), ast.Mul, call(fact, bin(ref(n), ast.Sub, num(1))))),
	)
	main := mainWith(nil,
		printI(call(fact, num(5))),
		do(call(ast.PrintC, chr('\n'))),
		printI(call(fact, num(10))),
	)

	out, res := runProgram(t, &ast.Program{Funcs: []*ast.FunDecl{fact, main}}, "")
	if out != "120\n3628800" {
		t.Errorf("output = %q", out)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestE2E_Fibonacci(t *testing.T) {
	// two recursive calls in one expression keep the left result live
	// across the right call
	n := decl(ast.Int, "n")
	fib := fun(ast.Int, "fib", n)
	fib.Body = block(nil,
		&ast.If{Cond: bin(ref(n), ast.Lt, num(2)), Then: ret(ref(n))},
		ret(bin(
			call(fib, bin(ref(n), ast.Sub, num(1))),
			ast.Add,
			call(fib, bin(ref(n), ast.Sub, num(2))),
		)),
	)
	main := mainWith(nil, printI(call(fib, num(10))))

	out, _ := runProgram(t, &ast.Program{Funcs: []*ast.FunDecl{fib, main}}, "")
	if out != "55" {
		t.Errorf("fib(10) printed %q, want 55", out)
	}
}

func TestE2E_NestedCalls(t *testing.T) {
	a := decl(ast.Int, "a")
	b := decl(ast.Int, "b")
	sub := fun(ast.Int, "sub", a, b)
	sub.Body = block(nil, ret(bin(ref(a), ast.Sub, ref(b))))

	x := decl(ast.Int, "x")
	inc := fun(ast.Int, "inc", x)
	inc.Body = block(nil, ret(bin(ref(x), ast.Add, num(1))))

	main := mainWith(nil,
		printI(call(sub, num(10), call(sub, num(5), num(2)))),
		printS(" "),
		printI(call(sub, call(sub, num(5), num(2)), num(10))),
		printS(" "),
		printI(call(inc, call(inc, call(inc, num(1))))),
	)

	out, _ := runProgram(t, &ast.Program{Funcs: []*ast.FunDecl{sub, inc, main}}, "")
	if out != "7 -7 4" {
		t.Errorf("output = %q, want %q", out, "7 -7 4")
	}
}

func TestE2E_GlobalArrayLoop(t *testing.T) {
	arr := decl(ast.Array(ast.Int, 5), "arr")
	total := decl(ast.Int, "total")
	i := decl(ast.Int, "i")
	p := decl(ast.Ptr(ast.Int), "p")

	main := mainWith([]*ast.VarDecl{i, p},
		assign(ref(i), num(0)),
		&ast.While{
			Cond: bin(ref(i), ast.Lt, num(5)),
			Body: block(nil,
				assign(index(ref(arr), ref(i)), bin(ref(i), ast.Mul, ref(i))),
				assign(ref(total), bin(ref(total), ast.Add, index(ref(arr), ref(i)))),
				assign(ref(i), bin(ref(i), ast.Add, num(1))),
			),
		},
		printI(ref(total)),
		printS(","),
		assign(ref(p), bin(ref(arr), ast.Add, num(3))),
		printI(deref(ref(p))),
		printS(","),
		printI(index(ref(p), num(1))),
	)

	prog := &ast.Program{Vars: []*ast.VarDecl{arr, total}, Funcs: []*ast.FunDecl{main}}
	out, _ := runProgram(t, prog, "")
	if out != "30,9,16" {
		t.Errorf("output = %q, want %q", out, "30,9,16")
	}
}

func TestE2E_StructsAndHeap(t *testing.T) {
	sd, st := pointStruct()
	p := decl(st, "p")
	q := decl(st, "q")
	ip := decl(ast.Ptr(ast.Int), "ip")

	main := mainWith([]*ast.VarDecl{p, q, ip},
		assign(field(ref(p), "x"), num(3)),
		assign(field(ref(p), "y"), num(4)),
		assign(ref(q), ref(p)),
		assign(field(ref(p), "x"), num(100)),
		printI(field(ref(q), "x")),
		printS(" "),
		printI(bin(field(ref(p), "x"), ast.Add, field(ref(q), "y"))),
		printS(" "),
		printI(&ast.SizeOfExpr{Of: st}),
		printS(" "),
		assign(ref(ip), &ast.TypecastExpr{To: ast.Ptr(ast.Int), Expr: call(ast.Alloc, num(8))}),
		assign(deref(ref(ip)), bin(field(ref(q), "x"), ast.Mul, field(ref(q), "y"))),
		assign(index(ref(ip), num(1)), bin(deref(ref(ip)), ast.Add, num(1))),
		printI(index(ref(ip), num(1))),
	)

	prog := &ast.Program{Structs: []*ast.StructTypeDecl{sd}, Funcs: []*ast.FunDecl{main}}
	out, _ := runProgram(t, prog, "")
	if out != "3 104 8 13" {
		t.Errorf("output = %q, want %q", out, "3 104 8 13")
	}
}

func TestE2E_Chars(t *testing.T) {
	buf := decl(ast.Array(ast.Char, 4), "buf")
	s := decl(ast.Ptr(ast.Char), "s")

	main := mainWith([]*ast.VarDecl{buf, s},
		assign(index(ref(buf), num(0)), chr('o')),
		assign(index(ref(buf), num(1)), chr('k')),
		assign(index(ref(buf), num(2)), chr(0)),
		do(call(ast.PrintS, ref(buf))),
		assign(ref(s), str(" abc")),
		&ast.While{
			Cond: bin(deref(ref(s)), ast.Ne, chr(0)),
			Body: block(nil,
				do(call(ast.PrintC, deref(ref(s)))),
				assign(ref(s), bin(ref(s), ast.Add, num(1))),
			),
		},
	)

	out, _ := runProgram(t, &ast.Program{Funcs: []*ast.FunDecl{main}}, "")
	if out != "ok abc" {
		t.Errorf("output = %q, want %q", out, "ok abc")
	}
}

func TestE2E_ShortCircuit(t *testing.T) {
	side := decl(ast.Int, "side")
	bump := fun(ast.Int, "bump")
	bump.Body = block(nil,
		assign(ref(side), bin(ref(side), ast.Add, num(1))),
		ret(num(1)),
	)

	c := decl(ast.Char, "c")
	yesNo := func(cond ast.Expr) ast.Stmt {
		return &ast.If{Cond: cond, Then: printS("y"), Else: printS("n")}
	}
	main := mainWith([]*ast.VarDecl{c},
		assign(ref(c), call(ast.ReadC)),
		yesNo(bin(bin(ref(c), ast.Eq, chr('a')), ast.And, call(bump))),
		yesNo(bin(num(0), ast.And, call(bump))),
		yesNo(bin(num(1), ast.Or, call(bump))),
		yesNo(bin(num(0), ast.Or, num(0))),
		yesNo(bin(num(0), ast.Or, call(bump))),
		printI(ref(side)),
	)

	prog := &ast.Program{Vars: []*ast.VarDecl{side}, Funcs: []*ast.FunDecl{bump, main}}
	out, _ := runProgram(t, prog, "a")
	if out != "ynyny2" {
		t.Errorf("output = %q, want %q", out, "ynyny2")
	}
}

func TestE2E_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expr
		want string
	}{
		{"Div", bin(num(-7), ast.Div, num(2)), "-3"},
		{"Mod", bin(num(-7), ast.Mod, num(2)), "-1"},
		{"Precedence", bin(num(2), ast.Add, bin(num(3), ast.Mul, num(4))), "14"},
		{"Large", num(100000), "100000"},
		{"Negative", num(-70000), "-70000"},
		{"Compare", bin(bin(num(3), ast.Ge, num(3)), ast.Add, bin(num(3), ast.Gt, num(3))), "1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, _ := runProgram(t, &ast.Program{Funcs: []*ast.FunDecl{mainWith(nil, printI(tc.expr))}}, "")
			if out != tc.want {
				t.Errorf("printed %q, want %q", out, tc.want)
			}
		})
	}
}

func TestE2E_ReadInt(t *testing.T) {
	main := mainWith(nil, printI(bin(call(ast.ReadI), ast.Add, num(1))))
	out, _ := runProgram(t, &ast.Program{Funcs: []*ast.FunDecl{main}}, "41\n")
	if out != "42" {
		t.Errorf("output = %q, want 42", out)
	}
}
