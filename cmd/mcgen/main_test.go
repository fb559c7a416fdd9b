package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"minic/pkg/codegen"
	"minic/pkg/sim"
)

func TestDemoProgram(t *testing.T) {
	assembly, err := codegen.GenerateString(demoProgram(), nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var out bytes.Buffer
	res, err := runAssembly(assembly, strings.NewReader(""), &out, sim.DefaultMaxSteps)
	if err != nil {
		t.Fatalf("run failed: %v\nAssembly:\n%s", err, assembly)
	}
	if out.String() != demoOutput {
		t.Errorf("output = %q, want %q", out.String(), demoOutput)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestDemoProgram_SmallPool(t *testing.T) {
	// three registers are enough for the deepest expression in the demo
	assembly, err := codegen.GenerateString(demoProgram(), &codegen.Options{PoolSize: 3})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	var out bytes.Buffer
	if _, err := runAssembly(assembly, nil, &out, sim.DefaultMaxSteps); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.String() != demoOutput {
		t.Errorf("output = %q, want %q", out.String(), demoOutput)
	}

	if _, err := codegen.GenerateString(demoProgram(), &codegen.Options{PoolSize: 1}); !errors.Is(err, codegen.ErrRegistersExhausted) {
		t.Errorf("expected ErrRegistersExhausted with one register, got %v", err)
	}
}

func TestRunAssembly_StepLimit(t *testing.T) {
	assembly, err := codegen.GenerateString(demoProgram(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runAssembly(assembly, nil, nil, 50); !errors.Is(err, sim.ErrStepLimit) {
		t.Errorf("expected ErrStepLimit, got %v", err)
	}
	if _, err := runAssembly("frob $t0", nil, nil, 50); err == nil || !strings.Contains(err.Error(), "assemble") {
		t.Errorf("expected an assemble error, got %v", err)
	}
}
