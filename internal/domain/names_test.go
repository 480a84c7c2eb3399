package domain

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Jose", "jose"},
		{"  JoSe_99  ", "jose_99"},
		{"a b-c", "ab-c"},
		{"💀💀💀", "fb"},
		{"", "fb"},
		{strings.Repeat("a", 30), strings.Repeat("a", 20)},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in, "fb"); got != c.want {
			t.Errorf("SanitizeName(%q) = %q, esperaba %q", c.in, got, c.want)
		}
	}
}

func TestFallbackName(t *testing.T) {
	if got := FallbackName("123456789"); got != "user-6789" {
		t.Fatalf("FallbackName = %q", got)
	}
	if got := FallbackName("42"); got != "user-42" {
		t.Fatalf("FallbackName corto = %q", got)
	}
}

func TestRoomChannelName(t *testing.T) {
	if got := RoomChannelName("jose", false); got != "jose's VC" {
		t.Fatalf("unlocked = %q", got)
	}
	locked := RoomChannelName("jose", true)
	if !HasLockPrefix(locked) {
		t.Fatalf("locked sin candado: %q", locked)
	}
	if StripLockPrefix(locked) != "jose's VC" {
		t.Fatalf("strip = %q", StripLockPrefix(locked))
	}
}

func TestValidatePresetName(t *testing.T) {
	if err := ValidatePresetName("Mi Preset-1_ok"); err != nil {
		t.Fatalf("nombre válido rechazado: %v", err)
	}
	for _, bad := range []string{"", "💀", "a/b", strings.Repeat("a", 51)} {
		if err := ValidatePresetName(bad); err == nil {
			t.Errorf("nombre %q tendría que fallar", bad)
		}
	}
}
