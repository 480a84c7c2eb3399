package service

import (
	"testing"
	"time"
)

func TestCooldownsAllowOncePerWindow(t *testing.T) {
	c := NewCooldowns(time.Hour)
	if !c.Allow("u1") {
		t.Fatal("primer uso tiene que pasar")
	}
	if c.Allow("u1") {
		t.Fatal("segundo uso dentro de la ventana tiene que rebotar")
	}
	if !c.Allow("u2") {
		t.Fatal("el cooldown es por usuario")
	}
}

func TestCooldownsReset(t *testing.T) {
	c := NewCooldowns(time.Hour)
	c.Allow("u1")
	c.Reset("u1")
	if !c.Allow("u1") {
		t.Fatal("Reset tiene que liberar el cooldown")
	}
}

func TestCooldownsPrune(t *testing.T) {
	c := NewCooldowns(20 * time.Millisecond)
	c.Allow("u1")
	c.Allow("u2")
	if n := c.Prune(); n != 0 {
		t.Fatalf("Prune inmediato descartó %d", n)
	}
	time.Sleep(40 * time.Millisecond)
	if n := c.Prune(); n != 2 {
		t.Fatalf("Prune tras recarga descartó %d, esperaba 2", n)
	}
	c.mu.Lock()
	left := len(c.byUser)
	c.mu.Unlock()
	if left != 0 {
		t.Fatalf("quedaron %d limiters", left)
	}
}
