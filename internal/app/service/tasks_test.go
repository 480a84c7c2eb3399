package service

import (
	"context"
	"testing"
	"time"
)

func waitDone(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout esperando %s", what)
	}
}

func TestTasksCancelAndReplace(t *testing.T) {
	ts := NewTasks(context.Background())
	defer ts.Shutdown()

	first := make(chan struct{})
	ts.Start("vc-1", TaskEmptyCheck, func(ctx context.Context) {
		<-ctx.Done()
		close(first)
	})
	if !ts.Has("vc-1", TaskEmptyCheck) {
		t.Fatal("tarea recién arrancada no figura")
	}

	second := make(chan struct{})
	ts.Start("vc-1", TaskEmptyCheck, func(ctx context.Context) {
		<-ctx.Done()
		close(second)
	})
	waitDone(t, first, "cancelación de la tarea reemplazada")

	ts.Cancel("vc-1", TaskEmptyCheck)
	waitDone(t, second, "cancelación explícita")
}

func TestTasksTransferEmptyCheckExclusion(t *testing.T) {
	ts := NewTasks(context.Background())
	defer ts.Shutdown()

	transferDone := make(chan struct{})
	ts.Start("vc-1", TaskTransfer, func(ctx context.Context) {
		<-ctx.Done()
		close(transferDone)
	})
	emptyDone := make(chan struct{})
	ts.Start("vc-1", TaskEmptyCheck, func(ctx context.Context) {
		<-ctx.Done()
		close(emptyDone)
	})

	waitDone(t, transferDone, "transfer cancelado por el monitor de vacía")
	if ts.Has("vc-1", TaskTransfer) {
		t.Fatal("transfer tendría que haber salido del mapa")
	}
	if !ts.Has("vc-1", TaskEmptyCheck) {
		t.Fatal("el monitor de vacía tiene que seguir vivo")
	}

	// y al revés: un transfer nuevo mata al monitor
	ts.Start("vc-1", TaskTransfer, func(ctx context.Context) { <-ctx.Done() })
	waitDone(t, emptyDone, "monitor cancelado por transfer")
	if ts.Has("vc-1", TaskEmptyCheck) {
		t.Fatal("el monitor tendría que haber salido del mapa")
	}
}

func TestTasksFinishedTaskSelfRemoves(t *testing.T) {
	ts := NewTasks(context.Background())
	defer ts.Shutdown()

	done := make(chan struct{})
	ts.Start("vc-1", TaskRenameGuard, func(ctx context.Context) { close(done) })
	waitDone(t, done, "tarea corta")

	deadline := time.Now().Add(2 * time.Second)
	for ts.Has("vc-1", TaskRenameGuard) {
		if time.Now().After(deadline) {
			t.Fatal("tarea terminada sigue registrada")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTasksShutdownRejectsStarts(t *testing.T) {
	ts := NewTasks(context.Background())

	running := make(chan struct{})
	ts.Start("vc-1", TaskEmptyCheck, func(ctx context.Context) {
		<-ctx.Done()
		close(running)
	})
	ts.Shutdown()
	waitDone(t, running, "shutdown")

	ran := make(chan struct{})
	ts.Start("vc-2", TaskEmptyCheck, func(ctx context.Context) { close(ran) })
	select {
	case <-ran:
		t.Fatal("Start después de Shutdown no puede correr")
	case <-time.After(50 * time.Millisecond):
	}
}
