// Command mcgen lowers the built-in demo program to MIPS assembly and can
// run the result on the simulator.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"minic/pkg/codegen"
	"minic/pkg/sim"
)

func main() {
	outPath := flag.String("out", "", "write assembly to this file (default: stdout)")
	run := flag.Bool("run", false, "run the generated program on the simulator")
	pool := flag.Int("pool", 0, "number of scratch registers (default: all)")
	entry := flag.String("entry", "main", "entry function")
	steps := flag.Int("steps", sim.DefaultMaxSteps, "instruction limit when running")
	flag.Parse()

	opts := &codegen.Options{PoolSize: *pool, Entry: *entry}
	assembly, err := codegen.GenerateString(demoProgram(), opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(assembly), 0o644); err != nil {
			log.Fatalf("failed to write %q: %v", *outPath, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %d lines -> %s\n", strings.Count(assembly, "\n"), *outPath)
	} else if !*run {
		fmt.Print(assembly)
	}

	if !*run {
		return
	}
	res, err := runAssembly(assembly, os.Stdin, os.Stdout, *steps)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run error:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\nrun complete: exit=%d steps=%d\n", res.ExitCode, res.Steps)
}

func runAssembly(assembly string, in io.Reader, out io.Writer, steps int) (sim.Result, error) {
	prog, err := sim.Assemble(assembly)
	if err != nil {
		return sim.Result{}, fmt.Errorf("assemble: %w", err)
	}
	return sim.Run(prog, sim.Config{MaxSteps: steps, Stdin: in, Stdout: out})
}
