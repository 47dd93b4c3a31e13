package jit

// Method-level synchronization (spec.md §4.6: "the epilog reverses it and
// returns. Method-level synchronization wraps the body in monitor-enter/
// exit for synchronized methods"). Grounded on the selector's existing
// MonitorEnterStmt/MonitorExitStmt lowering (isel.go), which already
// knows how to call into rt.Monitor's Enter/Exit contract by name — this
// pass only has to decide where those statements belong when the method
// itself, rather than explicit bytecode, demands them.

// wrapSynchronized prepends a monitor-enter to the entry block and a
// monitor-exit before every return/athrow path, for a method whose
// AccSynchronized flag is set. Runs after translateUnit, since it
// operates on the same Stmts lists the bytecode translator produced.
func wrapSynchronized(cu *CompilationUnit) {
	if !cu.Method.IsSynchronized() {
		return
	}

	lockExpr := monitorTarget(cu)

	cu.Entry.Stmts = append([]Statement{&MonitorEnterStmt{Expr: lockExpr}}, cu.Entry.Stmts...)

	for _, bb := range cu.Blocks() {
		bb.Stmts = insertExitBeforeTerminator(bb.Stmts, lockExpr)
	}
}

// monitorTarget is the receiver for an instance method's monitor, or a
// class-identity placeholder for a static one (the JVM locks the
// Class object itself in that case).
func monitorTarget(cu *CompilationUnit) Expression {
	if cu.Method.IsStatic() {
		return &ValueExpr{T: TRef, Value: 0}
	}
	return &LocalExpr{T: TRef, Index: 0}
}

// insertExitBeforeTerminator inserts a MonitorExitStmt immediately before
// a trailing ReturnStmt or AThrowStmt, leaving every other statement
// list untouched (a block that merely falls through to another block
// inside the same method never needs its own exit).
func insertExitBeforeTerminator(stmts []Statement, lockExpr Expression) []Statement {
	if len(stmts) == 0 {
		return stmts
	}
	switch stmts[len(stmts)-1].(type) {
	case *ReturnStmt, *AThrowStmt:
		out := make([]Statement, 0, len(stmts)+1)
		out = append(out, stmts[:len(stmts)-1]...)
		out = append(out, &MonitorExitStmt{Expr: lockExpr}, stmts[len(stmts)-1])
		return out
	default:
		return stmts
	}
}
