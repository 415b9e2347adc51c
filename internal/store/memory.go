package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Backend is an in-process signaling store. It holds the shared data;
// independent handles obtained through Connect share the data but have
// their own subscriptions and disconnect hooks, mirroring the topology
// of a remote store with multiple connections. The relay serves this
// same backend over WebSocket.
type Backend struct {
	mu       sync.Mutex
	values   map[string]json.RawMessage
	seq      uint64
	watchers map[*watcher]struct{}
}

type watcher struct {
	path     string
	children bool
	sub      *Subscription
}

// NewBackend creates an empty in-memory store backend.
func NewBackend() *Backend {
	return &Backend{
		values:   make(map[string]json.RawMessage),
		watchers: make(map[*watcher]struct{}),
	}
}

// Connect returns a new handle onto the backend, with its own
// subscription set and disconnect hooks.
func (b *Backend) Connect() *Memory {
	return &Memory{backend: b}
}

// isUnder reports whether path lies strictly beneath prefix.
func isUnder(path, prefix string) bool {
	return strings.HasPrefix(path, prefix+"/")
}

// set writes a document and notifies watchers.
func (b *Backend) set(path string, data json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, existed := b.values[path]
	b.values[path] = data
	b.notifyLocked(path, !existed)
}

// push appends to the collection at path under a key that sorts after
// every previously generated key, preserving append order on replay.
func (b *Backend) push(path string, data json.RawMessage) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	key := fmt.Sprintf("k%012d", b.seq)
	b.values[path+"/"+key] = data
	b.notifyLocked(path+"/"+key, true)
	return key
}

// get returns the snapshot at path.
func (b *Backend) get(path string) (json.RawMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.snapshotLocked(path)
	return data, data != nil
}

// delete removes path and everything beneath it.
func (b *Backend) delete(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for p := range b.values {
		if p == path || isUnder(p, path) {
			delete(b.values, p)
			removed = true
		}
	}
	if removed {
		b.notifyLocked(path, false)
	}
}

// notifyLocked fans a change at path out to affected watchers. A value
// watcher is affected when its path equals the changed path, contains
// it, or lies beneath it; it always receives a fresh snapshot of its
// own path (latest value wins). A child watcher fires only for the
// creation of a direct child.
func (b *Backend) notifyLocked(path string, created bool) {
	for w := range b.watchers {
		if w.children {
			parent, key, ok := splitChild(path)
			if ok && created && parent == w.path {
				w.sub.emit(Event{Path: w.path, Key: key, Data: b.values[path]})
			}
			continue
		}
		if w.path == path || isUnder(path, w.path) || isUnder(w.path, path) {
			w.sub.emit(Event{Path: w.path, Data: b.snapshotLocked(w.path)})
		}
	}
}

// splitChild splits a path into its parent collection and child key.
func splitChild(path string) (parent, key string, ok bool) {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

// snapshotLocked builds the JSON document visible at path: the exact
// value if one exists, otherwise an object assembled from children,
// otherwise nil.
func (b *Backend) snapshotLocked(path string) json.RawMessage {
	if v, ok := b.values[path]; ok {
		return v
	}

	children := make(map[string]json.RawMessage)
	for p := range b.values {
		if !isUnder(p, path) {
			continue
		}
		rest := p[len(path)+1:]
		name := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			name = rest[:i]
		}
		if _, ok := children[name]; !ok {
			children[name] = b.snapshotLocked(path + "/" + name)
		}
	}
	if len(children) == 0 {
		return nil
	}

	data, err := json.Marshal(children)
	if err != nil {
		return nil
	}
	return data
}

// watch registers a value watcher and emits the initial snapshot.
func (b *Backend) watch(path string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := &watcher{path: path}
	w.sub = newSubscription(func() { b.removeWatcher(w) })
	b.watchers[w] = struct{}{}
	w.sub.emit(Event{Path: path, Data: b.snapshotLocked(path)})
	return w.sub
}

// watchChildren registers a child watcher and replays existing children
// in append order.
func (b *Backend) watchChildren(path string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := &watcher{path: path, children: true}
	w.sub = newSubscription(func() { b.removeWatcher(w) })
	b.watchers[w] = struct{}{}

	var keys []string
	for p := range b.values {
		if parent, key, ok := splitChild(p); ok && parent == path {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		w.sub.emit(Event{Path: path, Key: key, Data: b.values[path+"/"+key]})
	}
	return w.sub
}

func (b *Backend) removeWatcher(w *watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, w)
}

// Memory is one connected handle onto a Backend. It implements Store.
type Memory struct {
	backend *Backend

	mu     sync.Mutex
	closed bool
	hooks  []string
	subs   []*Subscription
}

var _ Store = (*Memory)(nil)

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	if err := m.check(); err != nil {
		return err
	}
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	m.backend.set(path, data)
	return nil
}

func (m *Memory) Push(ctx context.Context, path string, value any) (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	data, err := marshalValue(value)
	if err != nil {
		return "", err
	}
	return m.backend.push(path, data), nil
}

func (m *Memory) Get(ctx context.Context, path string, dest any) (bool, error) {
	if err := m.check(); err != nil {
		return false, err
	}
	data, ok := m.backend.get(path)
	if !ok {
		return false, nil
	}
	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return true, fmt.Errorf("decode value at %s: %w", path, err)
		}
	}
	return true, nil
}

func (m *Memory) Watch(ctx context.Context, path string) (*Subscription, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	sub := m.backend.watch(path)
	m.track(sub)
	return sub, nil
}

func (m *Memory) WatchChildren(ctx context.Context, path string) (*Subscription, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	sub := m.backend.watchChildren(path)
	m.track(sub)
	return sub, nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := m.check(); err != nil {
		return err
	}
	m.backend.delete(path)
	return nil
}

func (m *Memory) OnDisconnect(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.hooks = append(m.hooks, path)
	return nil
}

// Close fires the handle's disconnect hooks and cancels its
// subscriptions. Closing an already-closed handle is a no-op.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	hooks := m.hooks
	subs := m.subs
	m.hooks = nil
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	for _, path := range hooks {
		m.backend.delete(path)
	}
	return nil
}

func (m *Memory) check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) track(sub *Subscription) {
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
}
