package document

import (
	"sync"

	"github.com/bassista/go_docstore/internal/logger"
)

// notifier runs posted functions one at a time, in post order, on its own
// goroutine. The goroutine exits when the backlog is empty and is started
// again by the next post.
type notifier struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

func (n *notifier) post(fns ...func()) {
	if len(fns) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, fns...)
	if !n.running {
		n.running = true
		go n.run()
	}
}

func (n *notifier) run() {
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.running = false
			n.mu.Unlock()
			return
		}
		fn := n.pending[0]
		n.pending[0] = nil
		n.pending = n.pending[1:]
		n.mu.Unlock()

		call(fn)
	}
}

// call runs fn and contains a panicking handler so later notifications
// are still delivered.
func call(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithComponent("docmgr").Errorf("completion handler panicked: %v", rec)
		}
	}()
	fn()
}
