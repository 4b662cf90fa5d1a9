package guard

import (
	"github.com/haulstack/console-gateway/internal/session"
)

// Watcher re-runs the decision on every session change and emits the verdict
// to the UI's navigation stream. Consecutive identical actions are collapsed:
// a re-render with unchanged inputs must not re-issue navigation.
type Watcher struct {
	store    *session.Store
	required []string
	path     string

	sub     chan session.Snapshot
	actions chan Action
	done    chan struct{}
}

func NewWatcher(store *session.Store, required []string, currentPath string) *Watcher {
	return &Watcher{
		store:    store,
		required: required,
		path:     currentPath,
		sub:      make(chan session.Snapshot, 16),
		actions:  make(chan Action, 16),
		done:     make(chan struct{}),
	}
}

// Actions yields each distinct verdict at most once per state transition,
// starting with the verdict for the current state.
func (w *Watcher) Actions() <-chan Action {
	return w.actions
}

func (w *Watcher) Start() {
	w.store.Subscribe(w.sub)
	last := Decide(w.store.Snapshot(), w.required, w.path)
	w.emit(last)
	go func() {
		for {
			select {
			case snap := <-w.sub:
				action := Decide(snap, w.required, w.path)
				if action == last {
					continue
				}
				last = action
				w.emit(action)
			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) Close() {
	w.store.Unsubscribe(w.sub)
	close(w.done)
}

func (w *Watcher) emit(a Action) {
	select {
	case w.actions <- a:
	default:
	}
}
