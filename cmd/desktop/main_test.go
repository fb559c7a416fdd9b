package main

import (
	"strings"
	"testing"

	"minic/pkg/sim"
)

// echo reads an integer, prints it doubled, then reads a char and prints it.
const echoSource = `
.data
prompt: .asciiz "n? "

.text
main:
	la $a0,prompt
	addi $v0,$zero,4
	syscall
	addi $v0,$zero,5
	syscall
	add $a0,$v0,$v0
	addi $v0,$zero,1
	syscall
	addi $v0,$zero,12
	syscall
	move $a0,$v0
	addi $v0,$zero,11
	syscall
	addi $v0,$zero,10
	syscall
`

func newTestGame(t *testing.T, src string) *Game {
	t.Helper()
	prog, err := sim.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return newGame(prog, 100)
}

func TestGame_BlocksOnInput(t *testing.T) {
	g := newTestGame(t, echoSource)

	g.run(1000)
	if !g.waiting() {
		t.Fatalf("expected the program to wait for input, status %q", g.status())
	}
	if g.out.String() != "n? " {
		t.Errorf("console = %q", g.out.String())
	}
	steps := g.cpu.Steps
	g.run(1000)
	if g.cpu.Steps != steps {
		t.Errorf("cpu advanced while waiting: %d -> %d", steps, g.cpu.Steps)
	}

	g.submit("21")
	g.run(1000)
	if !g.waiting() {
		t.Fatalf("expected a second wait for the char read")
	}
	g.submit("z")
	g.run(1000)

	if !g.cpu.Halted || g.err != nil {
		t.Fatalf("expected a clean halt, status %q", g.status())
	}
	if got, want := g.out.String(), "n? 21\n42z\nz"; got != want {
		t.Errorf("console = %q, want %q", got, want)
	}
	if !strings.HasPrefix(g.status(), "halted") {
		t.Errorf("status = %q", g.status())
	}
}

func TestGame_ConsoleTail(t *testing.T) {
	g := newTestGame(t, echoSource)
	g.out.WriteString("a\nb\nc\n")
	g.line = []rune("xy")

	got := g.consoleLines(2)
	if len(got) != 2 || got[0] != "c" || got[1] != "xy_" {
		t.Errorf("consoleLines(2) = %q", got)
	}
}

func TestGame_Fault(t *testing.T) {
	g := newTestGame(t, ".text\nmain:\n\tlw $t0,1($zero)\n")
	g.run(10)
	if g.err == nil || !g.cpu.Halted {
		t.Fatalf("expected a fault, status %q", g.status())
	}
	if !strings.Contains(g.status(), "unaligned") {
		t.Errorf("status = %q", g.status())
	}
}

func TestGame_Render(t *testing.T) {
	g := newTestGame(t, echoSource)
	g.run(1000)
	g.render()

	if got := g.frame.RGBAAt(0, 0); got != bgColor {
		t.Errorf("corner pixel = %v, want background %v", got, bgColor)
	}
	lit := func(x0, x1, y0, y1 int) bool {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				if g.frame.RGBAAt(x, y) != bgColor {
					return true
				}
			}
		}
		return false
	}
	if !lit(0, consoleW, 0, lineHeight+2) {
		t.Error("console pane is empty")
	}
	if !lit(consoleW, screenW, 0, lineHeight+2) {
		t.Error("register pane is empty")
	}
}
