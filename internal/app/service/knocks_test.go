package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

func TestKnockRejectionOrder(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	rm := lockedRoom("vc-1", "u1")
	rm.Bans = []string{"baneado"}
	st.reg.Put(rm)

	if err := st.knocks.Knock(ctx, "nope", "u2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("sala inexistente: %v", err)
	}
	if err := st.knocks.Knock(ctx, "vc-1", "u1"); !errors.Is(err, domain.ErrAlreadyOwner) {
		t.Fatalf("owner: %v", err)
	}
	if err := st.knocks.Knock(ctx, "vc-1", "baneado"); !errors.Is(err, domain.ErrBanned) {
		t.Fatalf("baneado: %v", err)
	}

	// overwrite persistente existente -> ya tiene acceso
	_ = st.platform.GrantMember(ctx, "vc-1", "vip", false)
	if err := st.knocks.Knock(ctx, "vc-1", "vip"); !errors.Is(err, domain.ErrAlreadyGranted) {
		t.Fatalf("vip: %v", err)
	}

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock válido: %v", err)
	}
	if err := st.knocks.Knock(ctx, "vc-1", "u2"); !errors.Is(err, domain.ErrDuplicateKnock) {
		t.Fatalf("duplicado: %v", err)
	}

	abierta := lockedRoom("vc-2", "u9")
	abierta.Mode = domain.ModeUnlocked
	st.reg.Put(abierta)
	if err := st.knocks.Knock(ctx, "vc-2", "u2"); !errors.Is(err, domain.ErrInvalidMode) {
		t.Fatalf("sala abierta no admite knock: %v", err)
	}
}

func TestKnockCooldown(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))
	st.reg.Put(lockedRoom("vc-9", "u9"))

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("primer knock: %v", err)
	}
	// el cooldown es por usuario, no por sala
	if err := st.knocks.Knock(ctx, "vc-9", "u2"); !errors.Is(err, domain.ErrKnockCooldown) {
		t.Fatalf("cooldown cruzando salas: %v", err)
	}

	// deny no libera el cooldown
	if _, err := st.knocks.Deny(ctx, "vc-1"); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if err := st.knocks.Knock(ctx, "vc-9", "u2"); !errors.Is(err, domain.ErrKnockCooldown) {
		t.Fatalf("deny no tendría que resetear el cooldown: %v", err)
	}
}

func TestKnockAcceptFIFO(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))

	for _, u := range []string{"u2", "u3", "u4"} {
		if err := st.knocks.Knock(ctx, "vc-1", u); err != nil {
			t.Fatalf("knock %s: %v", u, err)
		}
	}
	if n := st.knocks.QueueLen("vc-1"); n != 3 {
		t.Fatalf("QueueLen = %d", n)
	}

	for _, want := range []string{"u2", "u3"} {
		got, err := st.knocks.Accept(ctx, "vc-1")
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if got != want {
			t.Fatalf("accept sacó %s, esperaba %s", got, want)
		}
		if !st.platform.hasGrant("vc-1", got) {
			t.Fatalf("%s aceptado sin overwrite", got)
		}
	}

	got, err := st.knocks.Deny(ctx, "vc-1")
	if err != nil || got != "u4" {
		t.Fatalf("deny = %s, %v", got, err)
	}
	if st.platform.hasGrant("vc-1", "u4") {
		t.Fatal("denegado no recibe overwrite")
	}

	if _, err := st.knocks.Accept(ctx, "vc-1"); !errors.Is(err, domain.ErrQueueEmpty) {
		t.Fatalf("cola vacía: %v", err)
	}
}

func TestKnockAcceptResetsCooldown(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))
	st.reg.Put(lockedRoom("vc-9", "u9"))

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock: %v", err)
	}
	if _, err := st.knocks.Accept(ctx, "vc-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// aceptado: puede volver a tocar en otra sala sin esperar
	if err := st.knocks.Knock(ctx, "vc-9", "u2"); err != nil {
		t.Fatalf("knock post-accept: %v", err)
	}
}

func TestKnockAcceptGrantFailureKeepsPlace(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock: %v", err)
	}

	st.platform.mu.Lock()
	st.platform.failGrant = true
	st.platform.mu.Unlock()
	if _, err := st.knocks.Accept(ctx, "vc-1"); err == nil {
		t.Fatal("accept con grant roto tiene que fallar")
	}
	// el fallo fue de la plataforma: u2 sigue primero en la cola
	if next, ok := st.knocks.Peek("vc-1"); !ok || next != "u2" {
		t.Fatalf("Peek = %q, %v", next, ok)
	}

	st.platform.mu.Lock()
	st.platform.failGrant = false
	st.platform.mu.Unlock()
	uid, err := st.knocks.Accept(ctx, "vc-1")
	if err != nil || uid != "u2" {
		t.Fatalf("reintento de accept: uid=%q err=%v", uid, err)
	}
	if !st.platform.hasGrant("vc-1", "u2") {
		t.Fatal("u2 tendría que tener acceso tras el accept")
	}
}

func TestKnockOwnerPingThrottle(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))
	st.knocks.pingEvery = time.Hour

	for _, u := range []string{"u2", "u3", "u4"} {
		if err := st.knocks.Knock(ctx, "vc-1", u); err != nil {
			t.Fatalf("knock %s: %v", u, err)
		}
	}
	if got := st.notif.pingCount(); got != 1 {
		t.Fatalf("pings = %d, la ráfaga tenía que pingear una vez", got)
	}
}

func TestKnockMutedRoomSkipsPing(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	rm := lockedRoom("vc-1", "u1")
	rm.MuteKnockPings = true
	st.reg.Put(rm)

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock: %v", err)
	}
	if got := st.notif.pingCount(); got != 0 {
		t.Fatalf("sala muteada pingeó %d veces", got)
	}
}

func TestGrantExpiryRevokesIfNeverJoined(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))
	st.knocks.grantTTL = 30 * time.Millisecond

	// canal existe pero el aceptado nunca entra
	st.platform.setVerify("vc-1", existsWith(Member{ID: "u1"}))

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock: %v", err)
	}
	if _, err := st.knocks.Accept(ctx, "vc-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !st.platform.hasGrant("vc-1", "u2") {
		t.Fatal("grant recién dado")
	}

	deadline := time.Now().Add(2 * time.Second)
	for st.platform.hasGrant("vc-1", "u2") {
		if time.Now().After(deadline) {
			t.Fatal("el grant vencido nunca se revocó")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGrantConsumedOnJoinSurvives(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))
	st.knocks.grantTTL = 30 * time.Millisecond

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock: %v", err)
	}
	if _, err := st.knocks.Accept(ctx, "vc-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	st.knocks.ConsumeGrant("vc-1", "u2")

	time.Sleep(80 * time.Millisecond)
	if !st.platform.hasGrant("vc-1", "u2") {
		t.Fatal("grant consumido no tiene que expirar")
	}
}

func TestKnockRemoveUserAndGC(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))

	if err := st.knocks.Knock(ctx, "vc-1", "u2"); err != nil {
		t.Fatalf("knock: %v", err)
	}
	st.knocks.RemoveUser(ctx, "u2")
	if n := st.knocks.QueueLen("vc-1"); n != 0 {
		t.Fatalf("QueueLen tras RemoveUser = %d", n)
	}

	// sala que desaparece del registro -> GC barre su cola
	if err := st.knocks.Knock(ctx, "vc-1", "u3"); err != nil {
		t.Fatalf("knock: %v", err)
	}
	st.reg.Remove("vc-1")
	if n := st.knocks.GC(); n == 0 {
		t.Fatal("GC no barrió la sala huérfana")
	}
	if n := st.knocks.QueueLen("vc-1"); n != 0 {
		t.Fatalf("cola huérfana quedó con %d", n)
	}
}
