/*
Package placement implements the filter-then-rank policy that binds a
pending instance to a worker.

No library in the retrieved corpus provides a sandboxed expression
evaluator, and the control plane must not evaluate operator-supplied
expressions in the host language (that would let a placement requirement
execute arbitrary Go). So this package hand-writes a minimal lexer, parser
and tree-walking evaluator for a small boolean/arithmetic/comparison
grammar over a fixed symbol table — numbers, strings, identifiers, member
access (tags.zone), the operators + - * and /, comparisons, and &&/||/!. There is
no function call syntax, no loops, no assignment: the grammar cannot reach
outside the symbol table it's handed.
*/
package placement
