package mips

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func assertContains(t *testing.T, code, expected string) {
	t.Helper()
	if !strings.Contains(code, expected) {
		t.Errorf("Expected code to contain %q, but it didn't.\nCode:\n%s", expected, code)
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestWriter_DataBeforeText(t *testing.T) {
	var out closeRecorder
	w := NewWriter(&out)
	w.Header(Data)
	w.Header(Text)
	w.Move(FP, SP, "initialize frame pointer")
	w.DeclareString("str.0", "hi\n")
	w.Label("main")
	w.ArithImm(Addi, V0, Zero, 10, "exit")
	w.Syscall("exit")

	if out.Len() != 0 {
		t.Fatal("nothing should be written before Finalize")
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !out.closed {
		t.Error("Finalize should close an io.Closer sink")
	}

	code := out.String()
	data := strings.Index(code, ".data")
	text := strings.Index(code, ".text")
	if data < 0 || text < 0 || data > text {
		t.Fatalf("expected .data before .text:\n%s", code)
	}
	if strings.Index(code, "str.0:") > text {
		t.Error("string declaration ended up in the text section")
	}
	assertContains(t, code, "str.0: .asciiz \"hi\\n\"\n")
	assertContains(t, code, "\tmove $fp,$sp\t# initialize frame pointer\n")
	assertContains(t, code, "\nmain:\n")
	assertContains(t, code, "\taddi $v0,$zero,10\t# exit\n")
	assertContains(t, code, "\tsyscall\t# exit\n")
}

func TestWriter_InstructionShapes(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	w.Arith(Add, T0, T1, T2, "a")
	w.MulDiv(Div, T0, T1, "b")
	w.MoveFrom(Mfhi, T0, "c")
	w.Logic(Or, T0, T0, T1, "d")
	w.LogicImm(Ori, T0, T0, 0xff, "e")
	w.Shift(Sll, T0, T0, 2, "f")
	w.Lui(T0, 1, "g")
	w.Set(Sge, T0, T0, T1, "h")
	w.Branch(Bne, T0, Zero, "or.true.3", "i")
	w.B("if.exit.4", "j")
	w.Jump(Jal, "fact", "k")
	w.JumpReg(RA, "l")
	w.Load(Lb, T0, 0, T0, "m")
	w.Store(Sw, T1, -8, FP, "n")
	w.LoadAddress(T0, "str.1", "o")
	w.Comment("IF %d", 4)
	w.Align(2)
	w.DeclareSpace("var.g.2", 3)
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	code := out.String()
	for _, want := range []string{
		"add $t0,$t1,$t2\t# a",
		"div $t0,$t1\t# b",
		"mfhi $t0\t# c",
		"or $t0,$t0,$t1\t# d",
		"ori $t0,$t0,255\t# e",
		"sll $t0,$t0,2\t# f",
		"lui $t0,1\t# g",
		"sge $t0,$t0,$t1\t# h",
		"bne $t0,$zero,or.true.3\t# i",
		"b if.exit.4\t# j",
		"jal fact\t# k",
		"jr $ra\t# l",
		"lb $t0,0($t0)\t# m",
		"sw $t1,-8($fp)\t# n",
		"la $t0,str.1\t# o",
		"\t# IF 4\n",
		"\t.align 2\n",
		"var.g.2: .space 12\n",
	} {
		assertContains(t, code, want)
	}
}

func TestWriter_FinalizeTwice(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize: got %v, want ErrFinalized", err)
	}
}

func TestWriter_EmitAfterFinalizePanics(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic when emitting after Finalize")
		}
	}()
	w.Syscall("too late")
}

func TestEscapeRoundTrip(t *testing.T) {
	in := "tab\there \"quoted\" back\\slash\nnul\x00"
	esc := Escape(in)
	if strings.ContainsAny(esc, "\n\t\x00") {
		t.Errorf("Escape left raw control characters: %q", esc)
	}
	out, err := Unescape(esc)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("Unescape(Escape(x)) = %q, want %q", out, in)
	}
	if _, err := Unescape(`bad\q`); err == nil {
		t.Error("expected error for unknown escape")
	}
}

func TestRegisters(t *testing.T) {
	if len(Pool) != 14 {
		t.Errorf("pool has %d registers, want 14", len(Pool))
	}
	for _, r := range []Register{TempFP, TempSP, TempVal1, TempVal2, SP, FP, RA, V0, Zero, A0} {
		if r.IsPool() {
			t.Errorf("%s must not be in the pool", r)
		}
	}
	tests := map[string]Register{"$sp": SP, "$29": SP, "$t9": T9, "$zero": Zero, "$0": Zero, "$s8": FP}
	for in, want := range tests {
		got, err := ParseRegister(in)
		if err != nil || got != want {
			t.Errorf("ParseRegister(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"sp", "$32", "$x1"} {
		if _, err := ParseRegister(bad); err == nil {
			t.Errorf("ParseRegister(%q) should fail", bad)
		}
	}
}
