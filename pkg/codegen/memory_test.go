package codegen

import (
	"errors"
	"strings"
	"testing"

	"minic/pkg/ast"
	"minic/pkg/mips"
)

type memFixture struct {
	out    strings.Builder
	w      *mips.Writer
	regs   *RegisterAllocator
	labels labeler
	mem    *Memory
}

func newMemFixture() *memFixture {
	f := &memFixture{}
	f.w = mips.NewWriter(&f.out)
	f.regs = NewRegisterAllocator(f.w, 0)
	f.mem = newMemory(f.w, f.regs, &f.labels)
	return f
}

func (f *memFixture) code(t *testing.T) string {
	t.Helper()
	if err := f.w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return f.out.String()
}

func TestMemory_FrameOffsets(t *testing.T) {
	f := newMemFixture()
	a := &ast.VarDecl{Type: ast.Int, Name: "a"}
	arr := &ast.VarDecl{Type: ast.Array(ast.Int, 3), Name: "arr"}
	b := &ast.VarDecl{Type: ast.Char, Name: "b"}

	outer := f.mem.Open(Global)
	if err := f.mem.DeclareVariable(outer, a, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.mem.DeclareVariable(outer, arr, 3); err != nil {
		t.Fatal(err)
	}
	if got := f.mem.StackWordSizeSoFar(outer); got != 4 {
		t.Errorf("StackWordSizeSoFar(outer) = %d; want 4", got)
	}

	inner := f.mem.Open(outer)
	if err := f.mem.DeclareVariable(inner, b, 1); err != nil {
		t.Fatal(err)
	}
	if got := f.mem.StackWordSizeSoFar(inner); got != 5 {
		t.Errorf("StackWordSizeSoFar(inner) = %d; want 5", got)
	}
	if !f.mem.ContainsVariable(inner, a) || f.mem.ContainsVariable(outer, b) {
		t.Error("ContainsVariable should see ancestors but not descendants")
	}

	for _, d := range []*ast.VarDecl{a, arr, b} {
		r, err := f.mem.RetrieveVariableAddress(inner, d, mips.None)
		if err != nil {
			t.Fatalf("RetrieveVariableAddress(%s) failed: %v", d.Name, err)
		}
		f.regs.Release(r)
	}
	f.mem.Close(inner)
	f.mem.Close(outer)

	code := f.code(t)
	assertContains(t, code, "addi $sp,$sp,-12\t# add space for declared variable: arr")
	assertContains(t, code, "addi $t9,$fp,0\t# find variable address in stack: a")
	// arr covers words 1..3 and is addressed at its lowest word
	assertContains(t, code, "addi $t9,$fp,-12\t# find variable address in stack: arr")
	// b sits in the inner frame, above the four outer words
	assertContains(t, code, "addi $t9,$fp,-16\t# find variable address in stack: b")
}

func TestMemory_Globals(t *testing.T) {
	f := newMemFixture()
	g := &ast.VarDecl{Type: ast.Array(ast.Int, 2), Name: "g"}

	if err := f.mem.DeclareVariable(Global, g, 2); err != nil {
		t.Fatal(err)
	}
	if err := f.mem.DeclareVariable(Global, g, 2); !errors.Is(err, ErrAlreadyDeclared) {
		t.Errorf("expected ErrAlreadyDeclared, got %v", err)
	}

	idx, _ := f.regs.Acquire()
	addr, err := f.mem.RetrieveVariableAddress(Global, g, idx)
	if err != nil {
		t.Fatal(err)
	}
	f.regs.Release(addr)
	if f.regs.Live() != 0 {
		t.Errorf("index register not released: %d live", f.regs.Live())
	}

	if _, err := f.mem.RetrieveVariableAddress(Global, &ast.VarDecl{Type: ast.Int, Name: "g"}, mips.None); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("lookup is by declaration identity, expected ErrNotDeclared, got %v", err)
	}

	code := f.code(t)
	assertContains(t, code, "\t.align 2\nvar.g.0: .space 8\n")
	assertContains(t, code, "la $t8,var.g.0")
	assertContains(t, code, "sll $t9,$t9,2\t# multiply offset by 4")
	assertContains(t, code, "add $t8,$t8,$t9")
}

func TestMemory_GlobalSegmentErrors(t *testing.T) {
	f := newMemFixture()
	fn := &ast.FunDecl{Type: ast.Void, Name: "f", Params: []*ast.VarDecl{{Type: ast.Int, Name: "x"}}}

	checks := map[string]error{
		"PutRegister":      f.mem.PutRegister(Global, mips.T0, "$t0"),
		"RetrieveRegister": f.mem.RetrieveRegister(Global, "$t0", mips.T0),
		"ExpandStack":      f.mem.ExpandStack(Global, 1),
		"ShrinkStack":      f.mem.ShrinkStack(Global, 1),
	}
	_, _, err := f.mem.RetrieveFunctionArgumentAddress(Global, fn, fn.Params[0])
	checks["RetrieveFunctionArgumentAddress"] = err

	for name, err := range checks {
		if !errors.Is(err, ErrGlobalSegment) {
			t.Errorf("%s: expected ErrGlobalSegment, got %v", name, err)
		}
	}
}

func TestMemory_RegisterDumps(t *testing.T) {
	f := newMemFixture()
	outer := f.mem.Open(Global)
	if err := f.mem.PutRegister(outer, mips.RA, "$raF"); err != nil {
		t.Fatal(err)
	}
	// a second put under the same name reuses the slot
	if err := f.mem.PutRegister(outer, mips.RA, "$raF"); err != nil {
		t.Fatal(err)
	}
	if got := f.mem.StackWordSizeSoFar(outer); got != 1 {
		t.Errorf("expected one slot, got %d", got)
	}

	inner := f.mem.Open(outer)
	if err := f.mem.RetrieveRegister(inner, "$raF", mips.RA); err != nil {
		t.Errorf("dump should be visible from a nested frame: %v", err)
	}
	if err := f.mem.RetrieveRegister(inner, "$sp9", mips.SP); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("expected ErrNotDeclared, got %v", err)
	}

	f.mem.Close(inner)
	if err := f.mem.PutRegister(inner, mips.T0, "$t0"); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("closed frame: expected ErrNotDeclared, got %v", err)
	}

	code := f.code(t)
	assertContains(t, code, "addi $s7,$fp,0\t# find register in stack: $raF")
	assertContains(t, code, "sw $ra,0($s7)")
	assertContains(t, code, "addi $s6,$fp,0\t# find register in stack: $raF")
	assertContains(t, code, "lw $ra,0($s6)")
	if n := strings.Count(code, "add space for dumped register: $raF"); n != 1 {
		t.Errorf("slot reserved %d times", n)
	}
}

func TestMemory_StringConstants(t *testing.T) {
	f := newMemFixture()
	l1 := f.mem.PutStringConstant("hi")
	l2 := f.mem.PutStringConstant("there\n")
	l3 := f.mem.PutStringConstant("hi")
	if l1 != l3 || l1 == l2 {
		t.Errorf("labels %s %s %s: identical contents should share one label", l1, l2, l3)
	}

	r, err := f.mem.RetrieveStringConstant("there\n")
	if err != nil {
		t.Fatal(err)
	}
	f.regs.Release(r)
	if _, err := f.mem.RetrieveStringConstant("never interned"); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("expected ErrNotDeclared, got %v", err)
	}

	code := f.code(t)
	if n := strings.Count(code, ".asciiz \"hi\""); n != 1 {
		t.Errorf("expected one declaration of \"hi\", got %d", n)
	}
	assertContains(t, code, l2+": .asciiz \"there\\n\"")
	assertContains(t, code, "la $t9,"+l2)
}

func TestMemory_FunctionArguments(t *testing.T) {
	f := newMemFixture()
	x := &ast.VarDecl{Type: ast.Int, Name: "x"}
	y := &ast.VarDecl{Type: ast.Int, Name: "y"}
	z := &ast.VarDecl{Type: ast.Int, Name: "z"}
	fn := &ast.FunDecl{Type: ast.Int, Name: "f", Params: []*ast.VarDecl{x, y, z}}
	s := f.mem.Open(Global)

	for _, p := range fn.Params {
		r, ok, err := f.mem.RetrieveFunctionArgumentAddress(s, fn, p)
		if err != nil || !ok {
			t.Fatalf("argument %s: ok=%v err=%v", p.Name, ok, err)
		}
		f.regs.Release(r)
	}
	other := &ast.VarDecl{Type: ast.Int, Name: "x"}
	if _, ok, err := f.mem.RetrieveFunctionArgumentAddress(s, fn, other); ok || err != nil {
		t.Errorf("a different declaration with the same name is not a parameter: ok=%v err=%v", ok, err)
	}

	code := f.code(t)
	assertContains(t, code, "addi $t9,$fp,12\t# find address of argument: x")
	assertContains(t, code, "addi $t9,$fp,8\t# find address of argument: y")
	assertContains(t, code, "addi $t9,$fp,4\t# find address of argument: z")
}
