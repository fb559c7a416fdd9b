package ast

// Built-in functions every program may call. Their bodies are supplied by
// the code generator; the front-end resolves calls against these
// declarations.
var (
	PrintC = &FunDecl{Type: Void, Name: "print_c", Params: []*VarDecl{{Type: Char, Name: "c"}}}
	PrintS = &FunDecl{Type: Void, Name: "print_s", Params: []*VarDecl{{Type: Ptr(Char), Name: "s"}}}
	PrintI = &FunDecl{Type: Void, Name: "print_i", Params: []*VarDecl{{Type: Int, Name: "i"}}}
	ReadC  = &FunDecl{Type: Char, Name: "read_c"}
	ReadI  = &FunDecl{Type: Int, Name: "read_i"}
	Alloc  = &FunDecl{Type: Ptr(Void), Name: "alloc", Params: []*VarDecl{{Type: Int, Name: "size"}}}
)

// Stdlib lists the built-in functions in emission order.
var Stdlib = []*FunDecl{PrintC, PrintS, PrintI, ReadC, ReadI, Alloc}

// LookupStdlib returns the built-in function with the given name.
func LookupStdlib(name string) (*FunDecl, bool) {
	for _, f := range Stdlib {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}
