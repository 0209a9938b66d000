// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import "sync"

// Notifier is a small pub/sub layer over table writes. Observers register a
// callback for the set of tables their read touches; the callback fires
// synchronously after a committed write to any of them, which is what lets
// the UI layer re-run reads reactively without polling the store.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	tables map[string]struct{}
	fn     func(table string)
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]subscription)}
}

// Subscribe registers fn for writes to any of tables and returns an
// unsubscribe function. An empty table list subscribes to every table.
func (n *Notifier) Subscribe(tables []string, fn func(table string)) (unsubscribe func()) {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = subscription{tables: set, fn: fn}
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// notify fires callbacks subscribed to table. Callbacks run synchronously on
// the writer's goroutine; they must not write back into the store.
func (n *Notifier) notify(table string) {
	n.mu.Lock()
	fns := make([]func(string), 0, len(n.subs))
	for _, sub := range n.subs {
		if len(sub.tables) == 0 {
			fns = append(fns, sub.fn)
			continue
		}
		if _, ok := sub.tables[table]; ok {
			fns = append(fns, sub.fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(table)
	}
}
