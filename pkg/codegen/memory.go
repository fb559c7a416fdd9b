package codegen

import (
	"fmt"

	"minic/pkg/ast"
	"minic/pkg/mips"
)

// Scope identifies a frame record in the Memory arena. Global is the data
// segment; every other scope is a stack frame.
type Scope int

const Global Scope = 0

// frame is one stack region. Offsets are in words below the frame pointer
// that was live when the frame was opened, shifted by base.
type frame struct {
	parent Scope
	base   int
	size   int
	vars   map[*ast.VarDecl]int
	words  map[*ast.VarDecl]int
	regs   map[string]int
	closed bool
}

// labeler numbers every generated label from one shared counter.
type labeler struct {
	n int
}

func (l *labeler) next() int {
	n := l.n
	l.n++
	return n
}

// Memory resolves declarations and register dumps to addresses across the
// global segment and a chain of stack frames.
type Memory struct {
	w      *mips.Writer
	regs   *RegisterAllocator
	labels *labeler

	frames  []frame
	globals map[*ast.VarDecl]string
	strs    map[string]string
}

func newMemory(w *mips.Writer, regs *RegisterAllocator, labels *labeler) *Memory {
	return &Memory{
		w:       w,
		regs:    regs,
		labels:  labels,
		frames:  []frame{{parent: -1}},
		globals: make(map[*ast.VarDecl]string),
		strs:    make(map[string]string),
	}
}

// Open starts a frame nested under parent. Its base is everything already
// live on the stack in the parent chain.
func (m *Memory) Open(parent Scope) Scope {
	m.frames = append(m.frames, frame{
		parent: parent,
		base:   m.StackWordSizeSoFar(parent),
		vars:   make(map[*ast.VarDecl]int),
		words:  make(map[*ast.VarDecl]int),
		regs:   make(map[string]int),
	})
	return Scope(len(m.frames) - 1)
}

// Close delinks s. Reclaiming its stack space is up to the caller.
func (m *Memory) Close(s Scope) {
	if s != Global {
		m.frames[s].closed = true
	}
}

func (m *Memory) frame(s Scope) (*frame, error) {
	if s < 0 || int(s) >= len(m.frames) {
		return nil, fmt.Errorf("%w: scope %d", ErrNotDeclared, s)
	}
	f := &m.frames[s]
	if f.closed {
		return nil, fmt.Errorf("%w: scope %d is closed", ErrNotDeclared, s)
	}
	return f, nil
}

// StackWordSizeSoFar is the live word count of s and all its ancestors.
func (m *Memory) StackWordSizeSoFar(s Scope) int {
	total := 0
	for s > Global {
		f := &m.frames[s]
		total += f.size
		s = f.parent
	}
	return total
}

// ContainsVariable reports whether decl is owned by s or an ancestor.
func (m *Memory) ContainsVariable(s Scope, decl *ast.VarDecl) bool {
	for ; s != Global; s = m.frames[s].parent {
		if _, ok := m.frames[s].vars[decl]; ok {
			return true
		}
	}
	_, ok := m.globals[decl]
	return ok
}

// PutStringConstant interns a string literal in the data segment.
// Identical contents share one label.
func (m *Memory) PutStringConstant(value string) string {
	if label, ok := m.strs[value]; ok {
		return label
	}
	label := fmt.Sprintf("str.%d", m.labels.next())
	m.strs[value] = label
	m.w.DeclareString(label, value)
	return label
}

// RetrieveStringConstant loads the address of an interned literal.
func (m *Memory) RetrieveStringConstant(value string) (mips.Register, error) {
	label, ok := m.strs[value]
	if !ok {
		return mips.None, fmt.Errorf("%w: string literal %q", ErrNotDeclared, value)
	}
	r, err := m.regs.Acquire()
	if err != nil {
		return mips.None, err
	}
	m.w.LoadAddress(r, label, "load str literal location: "+label)
	return r, nil
}

// DeclareVariable reserves words of storage for decl in s. In the global
// segment it emits a zeroed data slot; in a frame it grows the stack.
func (m *Memory) DeclareVariable(s Scope, decl *ast.VarDecl, words int) error {
	if s == Global {
		if _, ok := m.globals[decl]; ok {
			return fmt.Errorf("%w: global %s", ErrAlreadyDeclared, decl.Name)
		}
		label := fmt.Sprintf("var.%s.%d", decl.Name, m.labels.next())
		m.globals[decl] = label
		m.w.Align(2)
		m.w.DeclareSpace(label, words)
		return nil
	}

	f, err := m.frame(s)
	if err != nil {
		return err
	}
	if _, ok := f.vars[decl]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeclared, decl.Name)
	}
	f.vars[decl] = f.size
	f.words[decl] = words
	m.w.ArithImm(mips.Addi, mips.SP, mips.SP, -4*words, "add space for declared variable: "+decl.Name)
	f.size += words
	return nil
}

// RetrieveVariableAddress loads the address of decl, plus index words when
// index is not mips.None. The index register is released.
func (m *Memory) RetrieveVariableAddress(s Scope, decl *ast.VarDecl, index mips.Register) (mips.Register, error) {
	for s != Global {
		f, err := m.frame(s)
		if err != nil {
			return mips.None, err
		}
		if off, ok := f.vars[decl]; ok {
			// multi-word locals are addressed at their lowest word
			disp := -4 * (off + f.words[decl] - 1 + f.base)
			r, err := m.regs.Acquire()
			if err != nil {
				return mips.None, err
			}
			m.w.ArithImm(mips.Addi, r, mips.FP, disp, "find variable address in stack: "+decl.Name)
			m.addIndex(r, index)
			return r, nil
		}
		s = f.parent
	}

	label, ok := m.globals[decl]
	if !ok {
		return mips.None, fmt.Errorf("%w: variable %s", ErrNotDeclared, decl.Name)
	}
	r, err := m.regs.Acquire()
	if err != nil {
		return mips.None, err
	}
	m.w.LoadAddress(r, label, "load variable address: "+label)
	m.addIndex(r, index)
	return r, nil
}

func (m *Memory) addIndex(addr, index mips.Register) {
	if index == mips.None {
		return
	}
	m.w.Shift(mips.Sll, index, index, 2, "multiply offset by 4")
	m.w.Arith(mips.Add, addr, addr, index, "calculate offset address")
	m.regs.Release(index)
}

// PutVariable stores value into decl (at index words, if given), using a
// byte store when decl's type is one byte wide.
func (m *Memory) PutVariable(s Scope, decl *ast.VarDecl, value, index mips.Register) error {
	addr, err := m.RetrieveVariableAddress(s, decl, index)
	if err != nil {
		return err
	}
	if decl.Type.Size() == 1 {
		m.w.Store(mips.Sb, value, 0, addr, "store byte value in variable: "+decl.Name)
	} else {
		m.w.Store(mips.Sw, value, 0, addr, "store value in variable: "+decl.Name)
	}
	m.regs.Release(addr)
	return nil
}

// RetrieveFunctionArgumentAddress loads the address of a parameter of fn
// while generating fn's body. Arguments live above the frame pointer, the
// last one nearest. ok is false when param is not one of fn's parameters.
func (m *Memory) RetrieveFunctionArgumentAddress(s Scope, fn *ast.FunDecl, param *ast.VarDecl) (r mips.Register, ok bool, err error) {
	if s == Global {
		return mips.None, false, fmt.Errorf("%w: argument %s has no frame", ErrGlobalSegment, param.Name)
	}
	idx, ok := fn.ParamIndex(param)
	if !ok {
		return mips.None, false, nil
	}
	r, err = m.regs.Acquire()
	if err != nil {
		return mips.None, false, err
	}
	m.w.ArithImm(mips.Addi, r, mips.FP, 4*(len(fn.Params)-idx), "find address of argument: "+param.Name)
	return r, true, nil
}

// PutRegister saves value under name in s, reserving a slot the first time
// the name is seen in this frame.
func (m *Memory) PutRegister(s Scope, value mips.Register, name string) error {
	if s == Global {
		return fmt.Errorf("%w: register dump %s", ErrGlobalSegment, name)
	}
	f, err := m.frame(s)
	if err != nil {
		return err
	}
	off, ok := f.regs[name]
	if !ok {
		off = f.size
		f.regs[name] = off
		m.w.ArithImm(mips.Addi, mips.SP, mips.SP, -4, "add space for dumped register: "+name)
		f.size++
	}
	m.w.ArithImm(mips.Addi, mips.TempVal2, mips.FP, -4*(off+f.base), "find register in stack: "+name)
	m.w.Store(mips.Sw, value, 0, mips.TempVal2, "update value of register: "+name)
	return nil
}

// RetrieveRegister restores the dump called name into target, searching s
// and then its ancestors.
func (m *Memory) RetrieveRegister(s Scope, name string, target mips.Register) error {
	if s == Global {
		return fmt.Errorf("%w: register dump %s", ErrGlobalSegment, name)
	}
	for s != Global {
		f, err := m.frame(s)
		if err != nil {
			return err
		}
		if off, ok := f.regs[name]; ok {
			m.w.ArithImm(mips.Addi, mips.TempVal1, mips.FP, -4*(off+f.base), "find register in stack: "+name)
			m.w.Load(mips.Lw, target, 0, mips.TempVal1, "restore register value: "+name)
			return nil
		}
		s = f.parent
	}
	return fmt.Errorf("%w: register dump %s", ErrNotDeclared, name)
}

// ExpandStack grows s by words without a declaration.
func (m *Memory) ExpandStack(s Scope, words int) error {
	f, err := m.stackFrame(s, "expand")
	if err != nil {
		return err
	}
	m.w.ArithImm(mips.Addi, mips.SP, mips.SP, -4*words, "expand stack")
	f.size += words
	return nil
}

// ShrinkStack undoes ExpandStack.
func (m *Memory) ShrinkStack(s Scope, words int) error {
	f, err := m.stackFrame(s, "shrink")
	if err != nil {
		return err
	}
	m.w.ArithImm(mips.Addi, mips.SP, mips.SP, 4*words, "shrink stack")
	f.size -= words
	return nil
}

func (m *Memory) stackFrame(s Scope, op string) (*frame, error) {
	if s == Global {
		return nil, fmt.Errorf("%w: %s stack", ErrGlobalSegment, op)
	}
	return m.frame(s)
}
