// Package tasks keeps the local task collection consistent with the remote
// store. Toggle and delete are applied optimistically and rolled back by
// operation id when the remote call fails.
package tasks

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"todo/internal/api"
	"todo/internal/apierr"
	"todo/internal/auth"
	"todo/internal/logging"
	"todo/internal/service"
)

const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
)

// Remote is the part of the API client the syncer needs.
type Remote interface {
	ListTodos(ctx context.Context) ([]api.Todo, error)
	CreateTodo(ctx context.Context, in api.CreateTodoRequest) (api.Todo, error)
	UpdateTodo(ctx context.Context, id string, in api.UpdateTodoRequest) (api.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}

type opKind int

const (
	opToggle opKind = iota
	opDelete
)

func (k opKind) String() string {
	if k == opDelete {
		return "delete"
	}
	return "toggle"
}

// pendingOp is the rollback record of an optimistic update in flight.
type pendingOp struct {
	kind     opKind
	taskID   string
	previous service.Task
	index    int
}

type listener struct {
	id int
	fn func([]service.Task)
}

// Syncer owns the canonical task collection of the current session.
// Canonical order is insertion order with new tasks first.
type Syncer struct {
	remote Remote
	log    log.FieldLogger

	mu         sync.Mutex
	tasks      []service.Task
	editTarget string
	pending    map[uint64]pendingOp
	nextOp     uint64
	// gen changes on Reset; results of calls issued before it are dropped.
	gen      uint64
	userID   string // owner of the collection; empty outside a session
	watchers []listener
	nextID   int
}

// NewSyncer returns an empty syncer.
func NewSyncer(remote Remote, logger log.FieldLogger) *Syncer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{
		remote:  remote,
		log:     logger,
		pending: make(map[uint64]pendingOp),
	}
}

// Subscribe registers fn for collection changes and returns a function that removes it.
func (s *Syncer) Subscribe(fn func([]service.Task)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers = append(s.watchers, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.watchers {
			if l.id == id {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				return
			}
		}
	}
}

// changedLocked captures the collection and listeners for a notification
// that must run after the lock is released.
func (s *Syncer) changedLocked() func() {
	snap := s.copyLocked()
	watchers := append([]listener(nil), s.watchers...)
	return func() {
		for _, l := range watchers {
			l.fn(snap)
		}
	}
}

func (s *Syncer) copyLocked() []service.Task {
	out := make([]service.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *Syncer) indexLocked(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Syncer) hasPendingLocked(id string) bool {
	for _, op := range s.pending {
		if op.taskID == id {
			return true
		}
	}
	return false
}

// Tasks returns a copy of the collection in canonical order.
func (s *Syncer) Tasks() []service.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Get returns the task with the given id.
func (s *Syncer) Get(id string) (service.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.tasks[i], true
	}
	return service.Task{}, false
}

// Pending returns the number of optimistic operations awaiting confirmation.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Load replaces the collection with the remote one. On failure the
// collection is left empty.
func (s *Syncer) Load(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	todos, err := s.remote.ListTodos(ctx)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.tasks = nil
	} else {
		s.tasks = make([]service.Task, 0, len(todos))
		for _, t := range todos {
			s.tasks = append(s.tasks, t.ToTask())
		}
	}
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()

	if err != nil {
		return err
	}
	s.log.WithField("count", len(todos)).Debug("tasks loaded")
	return nil
}

// Create adds a task, or replaces the edit target when one is set.
// The collection only changes after the remote store confirms.
func (s *Syncer) Create(ctx context.Context, input service.TaskInput) (service.Task, error) {
	const op = "create task"
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" {
		return service.Task{}, apierr.Validation(op, "title required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return service.Task{}, apierr.Validation(op, "title too long")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return service.Task{}, apierr.Validation(op, "description too long")
	}

	s.mu.Lock()
	gen := s.gen
	target := s.editTarget
	s.mu.Unlock()

	if target != "" {
		return s.replace(ctx, gen, target, title, description)
	}

	todo, err := s.remote.CreateTodo(ctx, api.CreateTodoRequest{Title: title, Description: description})
	if err != nil {
		return service.Task{}, err
	}
	task := todo.ToTask()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return task, nil
	}
	s.tasks = append([]service.Task{task}, s.tasks...)
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()
	return task, nil
}

func (s *Syncer) replace(ctx context.Context, gen uint64, id, title, description string) (service.Task, error) {
	todo, err := s.remote.UpdateTodo(ctx, id, api.UpdateTodoRequest{Title: &title, Description: &description})
	if err != nil {
		return service.Task{}, err
	}
	task := todo.ToTask()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return task, nil
	}
	if i := s.indexLocked(id); i >= 0 {
		s.tasks[i] = task
	}
	if s.editTarget == id {
		s.editTarget = ""
	}
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()
	return task, nil
}

// Toggle flips completion locally, then asks the remote store to confirm.
// An unknown id is a no-op. On failure the task gets back the exact value
// it had before this flip.
func (s *Syncer) Toggle(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	previous := s.tasks[i]
	want := !previous.Completed
	s.tasks[i].Completed = want
	opID := s.begin(pendingOp{kind: opToggle, taskID: id, previous: previous, index: i})
	gen := s.gen
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()

	todo, err := s.remote.UpdateTodo(ctx, id, api.UpdateTodoRequest{Completed: &want})

	s.mu.Lock()
	delete(s.pending, opID)
	if gen != s.gen {
		s.mu.Unlock()
		return err
	}
	i = s.indexLocked(id)
	if err != nil {
		if i >= 0 {
			s.tasks[i].Completed = previous.Completed
		}
		s.log.WithFields(log.Fields{"op": opID, "task": id}).Debug("toggle rolled back")
	} else if i >= 0 && !s.hasPendingLocked(id) {
		s.tasks[i] = todo.ToTask()
	}
	notify = s.changedLocked()
	s.mu.Unlock()
	notify()
	return err
}

// Delete removes a task locally, then asks the remote store to confirm.
// An unknown id is a no-op. On failure the task is put back at its former
// position unless it has reappeared in the meantime.
func (s *Syncer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	previous := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	opID := s.begin(pendingOp{kind: opDelete, taskID: id, previous: previous, index: i})
	gen := s.gen
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()

	err := s.remote.DeleteTodo(ctx, id)

	s.mu.Lock()
	delete(s.pending, opID)
	if gen != s.gen {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		if s.indexLocked(id) < 0 {
			at := min(i, len(s.tasks))
			s.tasks = append(s.tasks[:at:at], append([]service.Task{previous}, s.tasks[at:]...)...)
		}
		s.log.WithFields(log.Fields{"op": opID, "task": id}).Debug("delete rolled back")
	} else if s.editTarget == id {
		s.editTarget = ""
	}
	notify = s.changedLocked()
	s.mu.Unlock()
	notify()
	return err
}

func (s *Syncer) begin(op pendingOp) uint64 {
	s.nextOp++
	s.pending[s.nextOp] = op
	s.log.WithFields(log.Fields{"op": s.nextOp, "kind": op.kind, "task": op.taskID}).Debug("optimistic update applied")
	return s.nextOp
}

// Edit selects the task the next Create replaces.
func (s *Syncer) Edit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return apierr.ErrTaskNotFound
	}
	s.editTarget = id
	return nil
}

// CancelEdit clears the edit target.
func (s *Syncer) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editTarget = ""
}

// EditTarget returns the task selected for editing.
func (s *Syncer) EditTarget() (service.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editTarget == "" {
		return service.Task{}, false
	}
	if i := s.indexLocked(s.editTarget); i >= 0 {
		return s.tasks[i], true
	}
	return service.Task{}, false
}

// Reset discards the collection, the edit target and every pending record.
// Calls still in flight settle without touching the new state.
func (s *Syncer) Reset() {
	s.mu.Lock()
	s.gen++
	s.tasks = nil
	s.editTarget = ""
	s.pending = make(map[uint64]pendingOp)
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()
}

// HandleAuthState loads the collection when a session starts and discards
// it when the session ends. A session for a different user discards the
// previous collection before loading.
func (s *Syncer) HandleAuthState(ctx context.Context, snap auth.Snapshot) error {
	var userID string
	if snap.State == auth.StateAuthenticated && snap.User != nil {
		userID = snap.User.ID
	}

	s.mu.Lock()
	prev := s.userID
	if snap.State != auth.StateAuthenticating {
		s.userID = userID
	}
	s.mu.Unlock()

	switch snap.State {
	case auth.StateAuthenticated:
		if userID == prev {
			return nil
		}
		if prev != "" {
			s.Reset()
		}
		return s.Load(ctx)
	case auth.StateUnauthenticated:
		s.Reset()
	}
	return nil
}
