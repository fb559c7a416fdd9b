// Command desktop runs an assembled program in a window, showing its console
// output next to the live register file.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"minic/pkg/mips"
	"minic/pkg/sim"
)

const (
	screenW    = 640
	screenH    = 416
	lineHeight = 13
	consoleW   = 420
)

var (
	bgColor     = color.RGBA{0x10, 0x10, 0x18, 0xff}
	fgColor     = color.RGBA{0xd0, 0xd0, 0xd0, 0xff}
	dimColor    = color.RGBA{0x80, 0x80, 0x80, 0xff}
	statusColor = color.RGBA{0xff, 0xc0, 0x40, 0xff}
)

type Game struct {
	cpu    *sim.CPU
	out    *bytes.Buffer // console: program output plus echoed input
	stdin  *bytes.Buffer // committed lines not yet consumed
	line   []rune        // line being typed
	speed  int
	paused bool
	err    error

	frame  *image.RGBA   // text is rasterized here each frame
	canvas *ebiten.Image // reused upload target for frame
}

func newGame(prog *sim.Program, speed int) *Game {
	g := &Game{
		cpu:   sim.NewCPU(prog),
		out:   &bytes.Buffer{},
		stdin: &bytes.Buffer{},
		speed: speed,
		frame: image.NewRGBA(image.Rect(0, 0, screenW, screenH)),
	}
	g.cpu.Output = g.out
	g.cpu.Input = bufio.NewReader(g.stdin)
	return g
}

// waiting reports whether the next instruction would read input that has
// not been typed yet.
func (g *Game) waiting() bool {
	return g.cpu.ReadsInput() && g.stdin.Len() == 0 && g.cpu.Input.Buffered() == 0
}

// submit commits a typed line to the program's stdin, echoing it.
func (g *Game) submit(line string) {
	g.stdin.WriteString(line)
	g.stdin.WriteByte('\n')
	g.out.WriteString(line)
	g.out.WriteByte('\n')
}

// run executes up to n instructions, stopping early once the program halts,
// faults or blocks on input.
func (g *Game) run(n int) {
	for i := 0; i < n; i++ {
		if g.cpu.Halted || g.waiting() {
			return
		}
		if err := g.cpu.Step(); err != nil {
			g.err = err
			return
		}
	}
}

func (g *Game) Update() error {
	for _, r := range ebiten.AppendInputChars(nil) {
		if r >= ' ' && r < 0x7f {
			g.line = append(g.line, r)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) && len(g.line) > 0 {
		g.line = g.line[:len(g.line)-1]
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.submit(string(g.line))
		g.line = g.line[:0]
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		g.paused = !g.paused
	}

	n := g.speed
	if g.paused {
		n = 0
		if inpututil.IsKeyJustPressed(ebiten.KeyF10) {
			n = 1
		}
	}
	g.run(n)
	return nil
}

// drawText rasterizes s into the frame with its top-left corner at x, y.
func (g *Game) drawText(s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  g.frame,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
	}
	ascent := basicfont.Face7x13.Ascent
	for i, line := range strings.Split(s, "\n") {
		d.Dot = fixed.P(x, y+ascent+i*lineHeight)
		d.DrawString(line)
	}
}

// consoleLines returns the tail of the console that fits on screen, with the
// pending input line and cursor appended.
func (g *Game) consoleLines(rows int) []string {
	all := strings.Split(g.out.String()+string(g.line)+"_", "\n")
	if len(all) > rows {
		all = all[len(all)-rows:]
	}
	return all
}

func (g *Game) status() string {
	switch {
	case g.err != nil:
		return g.err.Error()
	case g.cpu.Halted:
		return fmt.Sprintf("halted, exit code %d", g.cpu.ExitCode)
	case g.waiting():
		return "waiting for input"
	case g.paused:
		return "paused (F5 resume, F10 step)"
	}
	return "running (F5 pause)"
}

// render redraws the whole frame from the machine state.
func (g *Game) render() {
	draw.Draw(g.frame, g.frame.Bounds(), image.NewUniform(bgColor), image.Point{}, draw.Src)

	rows := screenH/lineHeight - 2
	g.drawText(strings.Join(g.consoleLines(rows), "\n"), 4, 2, fgColor)
	g.drawText(g.status(), 4, screenH-lineHeight-2, statusColor)

	var b strings.Builder
	fmt.Fprintf(&b, "pc    0x%08x\n", g.cpu.PC)
	fmt.Fprintf(&b, "steps %d\n", g.cpu.Steps)
	if in, ok := g.cpu.Next(); ok {
		fmt.Fprintf(&b, "next  %s\n", in)
	} else {
		b.WriteString("next  -\n")
	}
	fmt.Fprintf(&b, "hi %d lo %d\n\n", g.cpu.HI, g.cpu.LO)
	for r := mips.Register(1); r < mips.NumRegisters; r++ {
		fmt.Fprintf(&b, "%-5s %d\n", r, g.cpu.Regs[r])
	}
	g.drawText(b.String(), consoleW, 2, dimColor)
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.render()
	if g.canvas == nil {
		g.canvas = ebiten.NewImage(screenW, screenH)
	}
	g.canvas.WritePixels(g.frame.Pix)
	screen.DrawImage(g.canvas, nil)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW, screenH
}

func main() {
	speed := flag.Int("speed", 2000, "instructions executed per frame")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [-speed n] <file.s>")
		os.Exit(2)
	}

	source, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}
	prog, err := sim.Assemble(string(source))
	if err != nil {
		log.Fatalf("Assembly failed: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenW*2, screenH*2)
	ebiten.SetWindowTitle("minic - " + flag.Arg(0))

	if err := ebiten.RunGame(newGame(prog, *speed)); err != nil {
		log.Fatal(err)
	}
}
