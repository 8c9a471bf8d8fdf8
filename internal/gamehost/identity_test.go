package gamehost

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestOfflineID(t *testing.T) {
	a := OfflineID("Alice")
	if a != OfflineID("Alice") {
		t.Fatalf("not deterministic")
	}
	if a == OfflineID("alice") {
		t.Fatalf("offline ids are case sensitive")
	}
	if a.Version() != 3 || a.Variant() != uuid.RFC4122 {
		t.Fatalf("version=%d variant=%v", a.Version(), a.Variant())
	}
}

func TestValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"Al": false, "Alice": true, "a_b_c": true, "has space": false,
		"seventeen_chars__": false, "sixteen_chars___": true, "名前名前": false,
	} {
		if got := ValidName(name); got != want {
			t.Fatalf("ValidName(%q)=%v want %v", name, got, want)
		}
	}
}

func TestToANSI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"§aGreen§r text", "\x1b[92mGreen\x1b[0m text"},
		{"§Bupper", "\x1b[96mupper\x1b[0m"},
		{"§kobf", "obf"},
		{"a\nb", "a\r\nb"},
		{"a\r\nb", "a\r\nb"},
		{"trailing§", "trailing"},
	}
	for _, tt := range tests {
		if got := ToANSI(tt.in); got != tt.want {
			t.Fatalf("ToANSI(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeLine(t *testing.T) {
	got := sanitizeLine(" move\tworld 1 2 3\x00\x1b\r\n")
	if got != "move world 1 2 3" {
		t.Fatalf("got %q", got)
	}
	if strings.ContainsAny(sanitizeLine("a\u200bb"), "\u200b") {
		t.Fatalf("format rune kept")
	}
}
