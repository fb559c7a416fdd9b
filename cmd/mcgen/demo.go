package main

import "minic/pkg/ast"

// demoProgram is the decorated tree a front-end would hand over for:
//
//	int fact(int n) {
//	    if (n <= 1) { return 1; }
//	    return n * fact(n - 1);
//	}
//
//	int is_prime(int n) {
//	    int d;
//	    d = 2;
//	    while (d * d <= n) {
//	        if (n % d == 0) { return 0; }
//	        d = d + 1;
//	    }
//	    return n >= 2;
//	}
//
//	void main() {
//	    int i;
//	    print_s("factorials:");
//	    i = 1;
//	    while (i <= 6) { print_c(' '); print_i(fact(i)); i = i + 1; }
//	    print_c('\n');
//	    print_s("primes:");
//	    i = 0;
//	    while (i < 20) {
//	        if (is_prime(i)) { print_c(' '); print_i(i); }
//	        i = i + 1;
//	    }
//	    print_c('\n');
//	}
func demoProgram() *ast.Program {
	ref := func(d *ast.VarDecl) *ast.VarExpr { return &ast.VarExpr{Name: d.Name, Decl: d} }
	num := func(n int32) *ast.IntLiteral { return &ast.IntLiteral{Value: n} }
	bin := func(l ast.Expr, op ast.Op, r ast.Expr) *ast.BinOp { return &ast.BinOp{LHS: l, Op: op, RHS: r} }
	call := func(f *ast.FunDecl, args ...ast.Expr) *ast.ExprStmt {
		return &ast.ExprStmt{Expr: &ast.FunCallExpr{Name: f.Name, Args: args, Decl: f}}
	}
	printC := func(c byte) ast.Stmt { return call(ast.PrintC, &ast.ChrLiteral{Value: c}) }

	// fact
	n := &ast.VarDecl{Type: ast.Int, Name: "n"}
	fact := &ast.FunDecl{Type: ast.Int, Name: "fact", Params: []*ast.VarDecl{n}}
	fact.Body = &ast.Block{Stmts: []ast.Stmt{
		&ast.If{
			Cond: bin(ref(n), ast.Le, num(1)),
			Then: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Expr: num(1), Func: fact}}},
		},
		&ast.Return{
			Expr: bin(ref(n), ast.Mul, &ast.FunCallExpr{Name: "fact", Args: []ast.Expr{bin(ref(n), ast.Sub, num(1))}, Decl: fact}),
			Func: fact,
		},
	}}

	// is_prime
	m := &ast.VarDecl{Type: ast.Int, Name: "n"}
	d := &ast.VarDecl{Type: ast.Int, Name: "d"}
	isPrime := &ast.FunDecl{Type: ast.Int, Name: "is_prime", Params: []*ast.VarDecl{m}}
	isPrime.Body = &ast.Block{
		Vars: []*ast.VarDecl{d},
		Stmts: []ast.Stmt{
			&ast.Assign{LHS: ref(d), RHS: num(2)},
			&ast.While{
				Cond: bin(bin(ref(d), ast.Mul, ref(d)), ast.Le, ref(m)),
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.If{
						Cond: bin(bin(ref(m), ast.Mod, ref(d)), ast.Eq, num(0)),
						Then: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Expr: num(0), Func: isPrime}}},
					},
					&ast.Assign{LHS: ref(d), RHS: bin(ref(d), ast.Add, num(1))},
				}},
			},
			&ast.Return{Expr: bin(ref(m), ast.Ge, num(2)), Func: isPrime},
		},
	}

	// main
	i := &ast.VarDecl{Type: ast.Int, Name: "i"}
	entry := &ast.FunDecl{Type: ast.Void, Name: "main"}
	entry.Body = &ast.Block{
		Vars: []*ast.VarDecl{i},
		Stmts: []ast.Stmt{
			call(ast.PrintS, &ast.StrLiteral{Value: "factorials:"}),
			&ast.Assign{LHS: ref(i), RHS: num(1)},
			&ast.While{
				Cond: bin(ref(i), ast.Le, num(6)),
				Body: &ast.Block{Stmts: []ast.Stmt{
					printC(' '),
					call(ast.PrintI, &ast.FunCallExpr{Name: "fact", Args: []ast.Expr{ref(i)}, Decl: fact}),
					&ast.Assign{LHS: ref(i), RHS: bin(ref(i), ast.Add, num(1))},
				}},
			},
			printC('\n'),
			call(ast.PrintS, &ast.StrLiteral{Value: "primes:"}),
			&ast.Assign{LHS: ref(i), RHS: num(0)},
			&ast.While{
				Cond: bin(ref(i), ast.Lt, num(20)),
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.If{
						Cond: &ast.FunCallExpr{Name: "is_prime", Args: []ast.Expr{ref(i)}, Decl: isPrime},
						Then: &ast.Block{Stmts: []ast.Stmt{printC(' '), call(ast.PrintI, ref(i))}},
					},
					&ast.Assign{LHS: ref(i), RHS: bin(ref(i), ast.Add, num(1))},
				}},
			},
			printC('\n'),
		},
	}

	return &ast.Program{Funcs: []*ast.FunDecl{fact, isPrime, entry}}
}

const demoOutput = "factorials: 1 2 6 24 120 720\nprimes: 2 3 5 7 11 13 17 19\n"
