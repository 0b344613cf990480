package coverage

import (
	"strings"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Walker iterates, depth-first and pre-order, over the descendants of a scope
// whose full name starts with a filter. The scope itself is a container and
// is never yielded. Children of non-matching nodes are still explored.
//
// A Walker is single use:
//
//	w := NewWalker(db.Top(), "tb.dut")
//	for w.Next() {
//		inst := w.Instance()
//		...
//	}
type Walker struct {
	filter string
	stack  []vdb.Instance
	cur    vdb.Instance
}

// NewWalker creates a walker over the descendants of scope. An empty filter
// matches every instance.
func NewWalker(scope vdb.Instance, filter string) *Walker {
	w := &Walker{filter: filter}
	if scope != nil {
		w.push(scope)
	}
	return w
}

// push stacks the children of inst so the first child is popped first.
func (w *Walker) push(inst vdb.Instance) {
	children := inst.Children()
	for i := len(children) - 1; i >= 0; i-- {
		w.stack = append(w.stack, children[i])
	}
}

// Next advances to the next matching instance. It returns false once the
// hierarchy is exhausted.
func (w *Walker) Next() bool {
	for len(w.stack) > 0 {
		n := len(w.stack) - 1
		inst := w.stack[n]
		w.stack[n] = nil
		w.stack = w.stack[:n]

		w.push(inst)
		if strings.HasPrefix(inst.FullName(), w.filter) {
			w.cur = inst
			return true
		}
	}
	w.cur = nil
	return false
}

// Instance returns the instance the last successful Next stopped at.
func (w *Walker) Instance() vdb.Instance {
	return w.cur
}

// Walk calls visit for every matching descendant of scope and stops at the
// first error.
func Walk(scope vdb.Instance, filter string, visit func(vdb.Instance) error) error {
	w := NewWalker(scope, filter)
	for w.Next() {
		if err := visit(w.Instance()); err != nil {
			return err
		}
	}
	return nil
}
