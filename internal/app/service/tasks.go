package service

import (
	"context"
	"sync"
)

// TaskKind identifica la tarea por sala. Una sala tiene a lo sumo una
// tarea viva por tipo; arrancar otra cancela la anterior.
type TaskKind int

const (
	TaskTransfer TaskKind = iota
	TaskEmptyCheck
	TaskRenameGuard
)

func (k TaskKind) String() string {
	switch k {
	case TaskTransfer:
		return "transfer"
	case TaskEmptyCheck:
		return "empty_check"
	case TaskRenameGuard:
		return "rename_guard"
	}
	return "task"
}

type taskHandle struct {
	cancel context.CancelFunc
	seq    uint64
}

// Tasks supervisa las goroutines por sala. Transfer y monitor de sala
// vacía son mutuamente excluyentes: arrancar una cancela la otra.
type Tasks struct {
	root context.Context

	mu     sync.Mutex
	seq    uint64
	byKey  map[string]map[TaskKind]taskHandle
	closed bool
}

func NewTasks(root context.Context) *Tasks {
	return &Tasks{root: root, byKey: map[string]map[TaskKind]taskHandle{}}
}

// Start lanza run en su propia goroutine bajo el contexto raíz.
// Cancel-and-replace: una tarea previa del mismo tipo muere primero.
func (t *Tasks) Start(key string, kind TaskKind, run func(ctx context.Context)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if kinds, ok := t.byKey[key]; ok {
		if h, ok := kinds[kind]; ok {
			h.cancel()
		}
		// exclusión transfer/monitor de vacía
		switch kind {
		case TaskEmptyCheck:
			if h, ok := kinds[TaskTransfer]; ok {
				h.cancel()
				delete(kinds, TaskTransfer)
			}
		case TaskTransfer:
			if h, ok := kinds[TaskEmptyCheck]; ok {
				h.cancel()
				delete(kinds, TaskEmptyCheck)
			}
		}
	} else {
		t.byKey[key] = map[TaskKind]taskHandle{}
	}

	ctx, cancel := context.WithCancel(t.root)
	t.seq++
	seq := t.seq
	t.byKey[key][kind] = taskHandle{cancel: cancel, seq: seq}
	t.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			t.mu.Lock()
			// sólo borrar si nadie nos reemplazó
			if kinds, ok := t.byKey[key]; ok {
				if h, ok := kinds[kind]; ok && h.seq == seq {
					delete(kinds, kind)
					if len(kinds) == 0 {
						delete(t.byKey, key)
					}
				}
			}
			t.mu.Unlock()
		}()
		run(ctx)
	}()
}

func (t *Tasks) Cancel(key string, kind TaskKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if kinds, ok := t.byKey[key]; ok {
		if h, ok := kinds[kind]; ok {
			h.cancel()
			delete(kinds, kind)
			if len(kinds) == 0 {
				delete(t.byKey, key)
			}
		}
	}
}

// CancelAllFor cancela todas las tareas de una sala.
func (t *Tasks) CancelAllFor(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if kinds, ok := t.byKey[key]; ok {
		for _, h := range kinds {
			h.cancel()
		}
		delete(t.byKey, key)
	}
}

func (t *Tasks) Has(key string, kind TaskKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds, ok := t.byKey[key]
	if !ok {
		return false
	}
	_, ok = kinds[kind]
	return ok
}

// Shutdown cancela todo y rechaza nuevos Start.
func (t *Tasks) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, kinds := range t.byKey {
		for _, h := range kinds {
			h.cancel()
		}
		delete(t.byKey, key)
	}
}
