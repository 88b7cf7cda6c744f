package service

import (
	"sync"
	"sync/atomic"

	"nport-service/domain"
)

// Task is the cancellation flag and partial-result accumulator of one
// streaming request. The producing goroutine appends groups, any goroutine
// may flip the cancel flag, readers may snapshot the accumulated groups at
// any time.
type Task struct {
	id        string
	cancelled atomic.Bool
	finished  atomic.Bool

	lock           sync.Mutex
	cik            string
	registrantName string
	latestDate     string
	groups         []domain.FilingGroup
}

func newTask(id string) *Task {
	return &Task{id: id}
}

func (t *Task) Id() string {
	return t.id
}

func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

func (t *Task) Finished() bool {
	return t.finished.Load()
}

func (t *Task) finish() {
	t.finished.Store(true)
}

func (t *Task) setMetadata(cik string, registrantName string, latestDate string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.cik = cik
	t.registrantName = registrantName
	t.latestDate = latestDate
}

func (t *Task) addGroup(group domain.FilingGroup) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.groups = append(t.groups, group)
}

func (t *Task) Groups() []domain.FilingGroup {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]domain.FilingGroup(nil), t.groups...)
}

// PartialResult snapshots whatever the task has accumulated so far. Useful
// after cancellation, when the stream has already gone silent.
func (t *Task) PartialResult() *domain.FundResult {
	t.lock.Lock()
	defer t.lock.Unlock()
	return &domain.FundResult{
		Cik:            t.cik,
		RegistrantName: t.registrantName,
		LatestDate:     t.latestDate,
		FilingGroups:   append([]domain.FilingGroup(nil), t.groups...),
		Partial:        true,
	}
}

// Tasks is a bounded registry of streaming tasks. Terminal tasks are kept
// around so a client can still cancel-then-fetch the partial result; the
// oldest terminal task is evicted once the registry is over capacity.
type Tasks struct {
	capacity int

	lock  sync.Mutex
	tasks map[string]*Task
	order []string
}

func NewTasks(capacity int) *Tasks {
	return &Tasks{
		capacity: capacity,
		tasks:    make(map[string]*Task),
	}
}

func (r *Tasks) Register(id string) *Task {
	r.lock.Lock()
	defer r.lock.Unlock()

	task := newTask(id)
	r.evictLocked()
	r.tasks[id] = task
	r.order = append(r.order, id)
	return task
}

func (r *Tasks) Get(id string) (*Task, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

func (r *Tasks) Cancel(id string) bool {
	r.lock.Lock()
	task, ok := r.tasks[id]
	r.lock.Unlock()
	if !ok {
		return false
	}
	task.Cancel()
	return true
}

func (r *Tasks) Size() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.tasks)
}

func (r *Tasks) evictLocked() {
	if len(r.tasks) < r.capacity {
		return
	}
	for i, id := range r.order {
		task := r.tasks[id]
		if task == nil || task.Finished() || task.Cancelled() {
			delete(r.tasks, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
