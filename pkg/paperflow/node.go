package paperflow

// END is the terminal node identifier.
const END = "__end__"

// NodeFunc does the work of one node. It returns the state to hand to the
// next node. With a pointer state type nodes may mutate in place and
// return the same pointer.
type NodeFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc picks the next node from the state after a node ran. It must
// return a node ID or END.
type RouterFunc[S any] func(ctx Context, state S) string
