package ast

// Inspect traverses the tree rooted at n in depth-first order. It calls f for
// each node; if f returns false the children of that node are skipped.
// Type annotations are visited as well.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}

	switch n := n.(type) {
	case *File:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}

	// types
	case *NamedType:
	case *PointerType:
		Inspect(n.Elem, f)
	case *ArrayType:
		Inspect(n.Elem, f)

	// expressions
	case *Literal, *Ident:
	case *Binary:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *Unary:
		Inspect(n.Operand, f)
	case *Call:
		Inspect(n.Func, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *Index:
		Inspect(n.Base, f)
		Inspect(n.Index, f)
	case *Member:
		Inspect(n.Base, f)
	case *NamespaceAccess:
		Inspect(n.Namespace, f)
	case *ArrayAlloc:
		Inspect(n.Elem, f)
		Inspect(n.Count, f)
	case *Cast:
		Inspect(n.Type, f)
		Inspect(n.Value, f)
	case *Syscall:
		Inspect(n.Number, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}

	// statements
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}
	case *Assign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *VarDecl:
		Inspect(n.Type, f)
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *If:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *While:
		Inspect(n.Cond, f)
		Inspect(n.Body, f)
	case *Return:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *FuncDecl:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		if n.Result != nil {
			Inspect(n.Result, f)
		}
		Inspect(n.Body, f)
	case *Param:
		Inspect(n.Type, f)
	case *LayoutDecl:
		for _, fd := range n.Fields {
			Inspect(fd, f)
		}
	case *Field:
		Inspect(n.Type, f)
	case *NamespaceDecl:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}
	case *Import:
	case *ExprStmt:
		Inspect(n.X, f)
	}
}

// PathTo returns the chain of nodes enclosing the byte offset, outermost
// first. The last element is the innermost node whose range contains offset.
func PathTo(root Node, offset int) []Node {
	var path []Node
	Inspect(root, func(n Node) bool {
		if !n.Range().Contains(offset) {
			return false
		}
		path = append(path, n)
		return true
	})
	return path
}
