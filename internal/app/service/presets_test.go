package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

func newPresets(st *testStack) *PresetService {
	return NewPresetService(st.presets, st.reg, st.platform, st.saver)
}

func TestPresetSaveRequiresRoom(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	ctx := context.Background()

	err := ps.Save(ctx, "g1", "u1", "default", "", 0, 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("sin sala: %v", err)
	}

	st.reg.Put(lockedRoom("vc-1", "u1"))
	if err := ps.Save(ctx, "g1", "u1", "default", "mi sala", 5, 64000); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, err := st.presets.Get(ctx, "u1", "default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.UserLimit != 5 || p.Bitrate != 64000 {
		t.Fatalf("preset = %+v", p)
	}
}

func TestPresetSaveCapturesBans(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	ctx := context.Background()

	rm := lockedRoom("vc-1", "u1")
	rm.Bans = []string{"malo1", "malo2"}
	st.reg.Put(rm)

	if err := ps.Save(ctx, "g1", "u1", "estricto", "", 0, 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, _ := st.presets.Get(ctx, "u1", "estricto")
	if len(p.Bans) != 2 {
		t.Fatalf("bans capturados = %v", p.Bans)
	}
}

func TestPresetLimit(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))

	for i := 0; i < domain.MaxPresetsPerUser; i++ {
		if err := ps.Save(ctx, "g1", "u1", fmt.Sprintf("p%d", i), "", 0, 0); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if err := ps.Save(ctx, "g1", "u1", "uno-mas", "", 0, 0); !errors.Is(err, domain.ErrPresetLimit) {
		t.Fatalf("tope: %v", err)
	}
	// sobreescribir uno existente no cuenta contra el tope
	if err := ps.Save(ctx, "g1", "u1", "p0", "", 3, 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestPresetNameValidation(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	st.reg.Put(lockedRoom("vc-1", "u1"))

	err := ps.Save(context.Background(), "g1", "u1", "no/vale", "", 0, 0)
	if !errors.Is(err, domain.ErrPresetName) {
		t.Fatalf("nombre inválido: %v", err)
	}
}

func TestPresetApplyMergesBans(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	ctx := context.Background()

	rm := lockedRoom("vc-1", "u1")
	rm.Bans = []string{"viejo"}
	st.reg.Put(rm)
	_ = st.presets.Upsert(ctx, "u1", domain.Preset{
		Name:     "duro",
		RoomName: "bunker",
		Bans:     []string{"viejo", "nuevo"},
	})

	if _, err := ps.Apply(ctx, "g1", "u1", "duro"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := st.reg.Get("vc-1")
	if !got.Banned("viejo") || !got.Banned("nuevo") {
		t.Fatalf("bans = %v", got.Bans)
	}
	if len(got.Bans) != 2 {
		t.Fatalf("bans duplicados: %v", got.Bans)
	}
	name, _ := st.platform.ChannelName(ctx, "vc-1")
	if !strings.Contains(name, "bunker") || !domain.HasLockPrefix(name) {
		t.Fatalf("nombre aplicado = %q", name)
	}
}

func TestPresetApplyClampsBitrate(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))
	_ = st.presets.Upsert(ctx, "u1", domain.Preset{Name: "turbo", Bitrate: 999999})

	p, err := ps.Apply(ctx, "g1", "u1", "turbo")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if p.Bitrate > 96000 {
		t.Fatalf("bitrate sin clamp: %d", p.Bitrate)
	}
}

func TestPresetDeleteAndList(t *testing.T) {
	st := newTestStack(t)
	ps := newPresets(st)
	ctx := context.Background()
	st.reg.Put(lockedRoom("vc-1", "u1"))

	_ = ps.Save(ctx, "g1", "u1", "uno", "", 0, 0)
	_ = ps.Save(ctx, "g1", "u1", "dos", "", 0, 0)

	names, err := ps.List(ctx, "u1")
	if err != nil || len(names) != 2 {
		t.Fatalf("List = %v, %v", names, err)
	}
	if err := ps.Delete(ctx, "u1", "uno"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ps.Delete(ctx, "u1", "uno"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete repetido: %v", err)
	}
}
