package api

import (
	"testing"

	"smpcore/kernel"
	"smpcore/kernel/cpuset"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	sys, err := kernel.NewSystem(kernel.Config{
		Processors: 2,
		Schedulers: []kernel.SchedulerConfig{
			{Name: "A", Policy: kernel.PolicyFixedPriority, MaxPriority: 255, Processors: cpuset.Of(0)},
			{Name: "B", Policy: kernel.PolicyFixedPriority, MaxPriority: 127, Processors: cpuset.Of(1)},
		},
	})
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	return New(sys)
}

func mustTask(t *testing.T, m *Manager, name string, prio Priority, sched ID) ID {
	t.Helper()
	var id ID
	if st := m.TaskCreate(name, prio, TaskOptions{Scheduler: sched}, &id); st != Successful {
		t.Fatalf("TaskCreate(%s) = %v, want %v", name, st, Successful)
	}
	if st := m.TaskStart(id); st != Successful {
		t.Fatalf("TaskStart(%s) = %v, want %v", name, st, Successful)
	}
	return id
}

func schedulerIDs(t *testing.T, m *Manager) (a, b ID) {
	t.Helper()
	if st := m.IdentifyScheduler("A", &a); st != Successful {
		t.Fatalf("IdentifyScheduler(A) = %v, want %v", st, Successful)
	}
	if st := m.IdentifyScheduler("B", &b); st != Successful {
		t.Fatalf("IdentifyScheduler(B) = %v, want %v", st, Successful)
	}
	return a, b
}

func TestIdentifyScheduler(t *testing.T) {
	m := newManager(t)
	a, b := schedulerIDs(t, m)
	if a != 0x0F010001 || b != 0x0F010002 {
		t.Fatalf("IDs = %#x, %#x, want 0x0f010001, 0x0f010002", a, b)
	}
	var id ID
	if st := m.IdentifyScheduler("C", &id); st != InvalidName {
		t.Fatalf("IdentifyScheduler(C) = %v, want %v", st, InvalidName)
	}
	if st := m.IdentifyScheduler("A", nil); st != InvalidAddress {
		t.Fatalf("IdentifyScheduler(nil) = %v, want %v", st, InvalidAddress)
	}
}

func TestIdentifyByProcessor(t *testing.T) {
	m := newManager(t)
	_, b := schedulerIDs(t, m)
	var id ID
	if st := m.IdentifyByProcessor(9, nil); st != InvalidAddress {
		t.Fatalf("IdentifyByProcessor(9, nil) = %v, want %v", st, InvalidAddress)
	}
	if st := m.IdentifyByProcessor(9, &id); st != InvalidName {
		t.Fatalf("IdentifyByProcessor(9) = %v, want %v", st, InvalidName)
	}
	if st := m.IdentifyByProcessor(1, &id); st != Successful || id != b {
		t.Fatalf("IdentifyByProcessor(1) = %v, %#x, want %v, %#x", st, id, Successful, b)
	}
}

func TestIdentifyByProcessorSet(t *testing.T) {
	m := newManager(t)
	_, b := schedulerIDs(t, m)
	var id ID
	tests := []struct {
		name string
		size int
		set  []byte
		want Status
	}{
		{"nil set", 8, nil, InvalidAddress},
		{"zero size", 0, make([]byte, 8), InvalidName},
		{"negative size", -8, make([]byte, 8), InvalidSize},
		{"partial word", 4, make([]byte, 8), InvalidSize},
		{"empty", 8, make([]byte, 8), InvalidName},
		{"both", 8, []byte{0x03, 0, 0, 0, 0, 0, 0, 0}, Successful},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IdentifyByProcessorSet(tt.size, tt.set, &id); got != tt.want {
				t.Fatalf("IdentifyByProcessorSet() = %v, want %v", got, tt.want)
			}
		})
	}
	if id != b {
		t.Fatalf("id = %#x, want %#x", id, b)
	}
}

func TestSchedulerQueries(t *testing.T) {
	m := newManager(t)
	a, b := schedulerIDs(t, m)
	var p Priority
	if st := m.GetMaximumPriority(b, &p); st != Successful || p != 127 {
		t.Fatalf("GetMaximumPriority(B) = %v, %d, want %v, 127", st, p, Successful)
	}
	if st := m.GetMaximumPriority(a+5, &p); st != InvalidID {
		t.Fatalf("GetMaximumPriority(bad) = %v, want %v", st, InvalidID)
	}
	set := make([]byte, 8)
	if st := m.GetProcessorSet(b, len(set), set); st != Successful || set[0] != 0x02 {
		t.Fatalf("GetProcessorSet(B) = %v, %#x, want %v, 0x02", st, set[0], Successful)
	}
	if st := m.GetProcessorSet(b, 0, set); st != InvalidSize {
		t.Fatalf("GetProcessorSet(B, 0) = %v, want %v", st, InvalidSize)
	}
	if st := m.AddProcessor(a+5, 1); st != InvalidID {
		t.Fatalf("AddProcessor(bad) = %v, want %v", st, InvalidID)
	}
	if st := m.AddProcessor(a, 1); st != ResourceInUse {
		t.Fatalf("AddProcessor(A, 1) = %v, want %v", st, ResourceInUse)
	}
	if st := m.RemoveProcessor(a, 1); st != InvalidNumber {
		t.Fatalf("RemoveProcessor(A, 1) = %v, want %v", st, InvalidNumber)
	}
}

func TestTaskCreateValidationOrder(t *testing.T) {
	m := newManager(t)
	var id ID
	tests := []struct {
		name string
		task string
		prio Priority
		opts TaskOptions
		id   *ID
		want Status
	}{
		{"name first", "", 0, TaskOptions{Scheduler: 1}, nil, InvalidName},
		{"address", "t", 0, TaskOptions{Scheduler: 1}, nil, InvalidAddress},
		{"scheduler", "t", 0, TaskOptions{Scheduler: 1}, &id, InvalidID},
		{"priority", "t", 0, TaskOptions{}, &id, InvalidPriority},
		{"above maximum", "t", 256, TaskOptions{}, &id, InvalidPriority},
		{"ok", "t", 10, TaskOptions{}, &id, Successful},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.TaskCreate(tt.task, tt.prio, tt.opts, tt.id); got != tt.want {
				t.Fatalf("TaskCreate() = %v, want %v", got, tt.want)
			}
		})
	}
	if id != 0x0A010001 {
		t.Fatalf("id = %#x, want 0x0a010001", id)
	}
}

func TestSetTaskSchedulerValidationOrder(t *testing.T) {
	m := newManager(t)
	a, b := schedulerIDs(t, m)
	task := mustTask(t, m, "t", 10, a)

	if st := m.SetTaskScheduler(0, 0, 0); st != InvalidID {
		t.Fatalf("SetTaskScheduler(bad sched) = %v, want %v", st, InvalidID)
	}
	if st := m.SetTaskScheduler(0, b, 200); st != InvalidPriority {
		t.Fatalf("SetTaskScheduler(bad prio) = %v, want %v", st, InvalidPriority)
	}
	if st := m.SetTaskScheduler(0, b, 20); st != InvalidID {
		t.Fatalf("SetTaskScheduler(bad task) = %v, want %v", st, InvalidID)
	}
	if st := m.SetTaskScheduler(task, b, 20); st != Successful {
		t.Fatalf("SetTaskScheduler() = %v, want %v", st, Successful)
	}
	var home ID
	m.TaskGetScheduler(task, &home)
	if home != b {
		t.Fatalf("TaskGetScheduler() = %#x, want %#x", home, b)
	}
	var p Priority
	if st := m.TaskGetPriority(task, b, &p); st != Successful || p != 20 {
		t.Fatalf("TaskGetPriority(B) = %v, %d, want %v, 20", st, p, Successful)
	}
	if st := m.TaskGetPriority(task, a, &p); st != NotDefined {
		t.Fatalf("TaskGetPriority(A) = %v, want %v", st, NotDefined)
	}
}

func TestTaskPriorityAndState(t *testing.T) {
	m := newManager(t)
	a, _ := schedulerIDs(t, m)
	task := mustTask(t, m, "t", 10, a)
	var old Priority
	if st := m.TaskSetPriority(task, 5, nil); st != InvalidAddress {
		t.Fatalf("TaskSetPriority(nil) = %v, want %v", st, InvalidAddress)
	}
	if st := m.TaskSetPriority(task, CurrentPriority, &old); st != Successful || old != 10 {
		t.Fatalf("TaskSetPriority(current) = %v, %d, want %v, 10", st, old, Successful)
	}
	if st := m.TaskSetPriority(task, 5, &old); st != Successful || old != 10 {
		t.Fatalf("TaskSetPriority(5) = %v, %d, want %v, 10", st, old, Successful)
	}
	if st := m.TaskSuspend(task); st != Successful {
		t.Fatalf("TaskSuspend() = %v, want %v", st, Successful)
	}
	if st := m.TaskSuspend(task); st != AlreadySuspended {
		t.Fatalf("TaskSuspend() again = %v, want %v", st, AlreadySuspended)
	}
	if st := m.TaskResume(task); st != Successful {
		t.Fatalf("TaskResume() = %v, want %v", st, Successful)
	}
	if st := m.TaskResume(task); st != IncorrectState {
		t.Fatalf("TaskResume() again = %v, want %v", st, IncorrectState)
	}
	if st := m.ReleaseJob(task, 0); st != InvalidNumber {
		t.Fatalf("ReleaseJob(0) = %v, want %v", st, InvalidNumber)
	}
	if st := m.TaskYield(task + 1); st != InvalidID {
		t.Fatalf("TaskYield(bad) = %v, want %v", st, InvalidID)
	}
}

func TestTaskAffinity(t *testing.T) {
	m := newManager(t)
	a, _ := schedulerIDs(t, m)
	task := mustTask(t, m, "t", 10, a)

	if st := m.TaskSetAffinity(task, 1, []byte{0xFF}); st != InvalidNumber {
		t.Fatalf("TaskSetAffinity(0xff) = %v, want %v", st, InvalidNumber)
	}
	if st := m.TaskSetAffinity(task, 1, []byte{0x01}); st != Successful {
		t.Fatalf("TaskSetAffinity({0}) = %v, want %v", st, Successful)
	}
	if st := m.TaskSetAffinity(task, 1, []byte{0x02}); st != InvalidNumber {
		t.Fatalf("TaskSetAffinity({1}) = %v, want %v", st, InvalidNumber)
	}
	buf := make([]byte, 1)
	if st := m.TaskGetAffinity(task, 1, buf); st != Successful || buf[0] != 0x01 {
		t.Fatalf("TaskGetAffinity() = %v, %#x, want %v, 0x01", st, buf[0], Successful)
	}
	if st := m.TaskGetAffinity(task, 1, nil); st != InvalidAddress {
		t.Fatalf("TaskGetAffinity(nil) = %v, want %v", st, InvalidAddress)
	}
}

func TestSemaphoreCreateValidation(t *testing.T) {
	m := newManager(t)
	var id ID
	tests := []struct {
		name  string
		count uint32
		attr  Attribute
		want  Status
	}{
		{"both kinds", 1, Binary | SimpleBinary, NotDefined},
		{"counting inherit", 1, Counting | PriorityOrder | Inherit, NotDefined},
		{"fifo inherit", 1, Binary | Inherit, NotDefined},
		{"two protocols", 1, Binary | PriorityOrder | Inherit | Ceiling, NotDefined},
		{"binary count", 2, Binary, InvalidNumber},
		{"simple count", 2, SimpleBinary, InvalidNumber},
		{"counting", 7, Counting, Successful},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.SemaphoreCreate("s", tt.count, tt.attr, 0, 0, &id); got != tt.want {
				t.Fatalf("SemaphoreCreate() = %v, want %v", got, tt.want)
			}
		})
	}
	if st := m.SemaphoreCreate("", 0, Counting, 0, 0, nil); st != InvalidName {
		t.Fatalf("SemaphoreCreate(no name) = %v, want %v", st, InvalidName)
	}
	if st := m.SemaphoreCreate("s", 0, Counting, 0, 0, nil); st != InvalidAddress {
		t.Fatalf("SemaphoreCreate(nil id) = %v, want %v", st, InvalidAddress)
	}
	if st := m.SemaphoreCreate("s", 1, Binary|PriorityOrder|Ceiling, 0, 0, &id); st != InvalidPriority {
		t.Fatalf("SemaphoreCreate(ceiling 0) = %v, want %v", st, InvalidPriority)
	}
}

func TestSemaphoreDirectives(t *testing.T) {
	m := newManager(t)
	a, _ := schedulerIDs(t, m)
	x := mustTask(t, m, "x", 10, a)
	y := mustTask(t, m, "y", 11, a)

	var simple, mutex ID
	m.SemaphoreCreate("simple", 1, SimpleBinary, 0, 0, &simple)
	m.SemaphoreCreate("mutex", 1, Binary|PriorityOrder|Inherit, 0, 0, &mutex)

	if st := m.SemaphoreRelease(simple, 0); st != Unsatisfied {
		t.Fatalf("SemaphoreRelease(simple at max) = %v, want %v", st, Unsatisfied)
	}
	w, st := m.SemaphoreObtain(mutex, x, true, 0)
	if st != Successful {
		t.Fatalf("SemaphoreObtain() = %v, want %v", st, Successful)
	}
	if got, ok := w.Status(); !ok || got != Successful {
		t.Fatalf("Wait.Status() = %v, %v, want %v, true", got, ok, Successful)
	}
	w, _ = m.SemaphoreObtain(mutex, y, false, 0)
	if got, _ := w.Status(); got != Unsatisfied {
		t.Fatalf("polling obtain = %v, want %v", got, Unsatisfied)
	}
	if st := m.SemaphoreRelease(mutex, y); st != NotOwnerOfResource {
		t.Fatalf("SemaphoreRelease(y) = %v, want %v", st, NotOwnerOfResource)
	}
	if st := m.SemaphoreFlush(mutex); st != Successful {
		t.Fatalf("SemaphoreFlush(mutex) = %v, want %v", st, Successful)
	}
	if st := m.SemaphoreDelete(mutex); st != ResourceInUse {
		t.Fatalf("SemaphoreDelete(owned) = %v, want %v", st, ResourceInUse)
	}

	w, _ = m.SemaphoreObtain(mutex, y, true, 0)
	waiters, _ := m.SemaphoreWaiters(mutex)
	if len(waiters) != 1 || waiters[0] != y {
		t.Fatalf("SemaphoreWaiters() = %v, want [%#x]", waiters, y)
	}
	m.SemaphoreRelease(mutex, x)
	if got, ok := w.Status(); !ok || got != Successful {
		t.Fatalf("handed-over Wait.Status() = %v, %v, want %v, true", got, ok, Successful)
	}
	if _, st := m.SemaphoreObtain(mutex, 0, true, 0); st != InvalidID {
		t.Fatalf("SemaphoreObtain(bad task) = %v, want %v", st, InvalidID)
	}
}

func TestSetResourceCeilingPriority(t *testing.T) {
	m := newManager(t)
	a, b := schedulerIDs(t, m)
	var mrsp, counting ID
	if st := m.SemaphoreCreate("r", 1, Binary|PriorityOrder|MultiprocessorResourceSharing, 3, a, &mrsp); st != Successful {
		t.Fatalf("SemaphoreCreate(mrsp) = %v, want %v", st, Successful)
	}
	m.SemaphoreCreate("c", 0, Counting, 0, 0, &counting)

	var old Priority
	if st := m.SetResourceCeilingPriority(mrsp, b, 4, nil); st != InvalidAddress {
		t.Fatalf("SetResourceCeilingPriority(nil) = %v, want %v", st, InvalidAddress)
	}
	if st := m.SetResourceCeilingPriority(mrsp, 0, 4, &old); st != InvalidID {
		t.Fatalf("SetResourceCeilingPriority(bad sched) = %v, want %v", st, InvalidID)
	}
	if st := m.SetResourceCeilingPriority(0, b, 4, &old); st != InvalidID {
		t.Fatalf("SetResourceCeilingPriority(bad sem) = %v, want %v", st, InvalidID)
	}
	if st := m.SetResourceCeilingPriority(counting, b, 4, &old); st != NotDefined {
		t.Fatalf("SetResourceCeilingPriority(counting) = %v, want %v", st, NotDefined)
	}
	old = 99
	if st := m.SetResourceCeilingPriority(mrsp, b, 200, &old); st != InvalidPriority || old != 99 {
		t.Fatalf("SetResourceCeilingPriority(200) = %v, %d, want %v, 99", st, old, InvalidPriority)
	}
	if st := m.SetResourceCeilingPriority(mrsp, b, 4, &old); st != Successful || old != 3 {
		t.Fatalf("SetResourceCeilingPriority(B, 4) = %v, %d, want %v, 3", st, old, Successful)
	}
	if st := m.SetResourceCeilingPriority(mrsp, b, CurrentPriority, &old); st != Successful || old != 4 {
		t.Fatalf("SetResourceCeilingPriority(current) = %v, %d, want %v, 4", st, old, Successful)
	}
}

func TestMrsPDeadlockIsIncorrectState(t *testing.T) {
	m := newManager(t)
	a, b := schedulerIDs(t, m)
	x := mustTask(t, m, "x", 10, a)
	y := mustTask(t, m, "y", 10, b)
	var r1, r2 ID
	m.SemaphoreCreate("r1", 1, Binary|PriorityOrder|MultiprocessorResourceSharing, 1, a, &r1)
	m.SemaphoreCreate("r2", 1, Binary|PriorityOrder|MultiprocessorResourceSharing, 1, a, &r2)

	m.SemaphoreObtain(r1, x, true, 0)
	m.SemaphoreObtain(r2, y, true, 0)
	m.SemaphoreObtain(r2, x, true, 0)
	w, _ := m.SemaphoreObtain(r1, y, true, 0)
	if got, ok := w.Status(); !ok || got != IncorrectState {
		t.Fatalf("Wait.Status() = %v, %v, want %v, true", got, ok, IncorrectState)
	}
	if st := m.SemaphoreFlush(r1); st != NotDefined {
		t.Fatalf("SemaphoreFlush(mrsp) = %v, want %v", st, NotDefined)
	}
}
