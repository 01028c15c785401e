package relay

import (
	"strings"
	"testing"
)

func TestRegistryBuildAndLookup(t *testing.T) {
	b := NewRegistryBuilder("general")
	b.Register(Descriptor{Name: "General", Description: "general conversation"}, &stubProvider{name: "general"})
	b.Register(Descriptor{Name: "calendar", Description: "scheduling"}, &stubProvider{name: "calendar"})
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !r.Has("calendar") || !r.Has("CALENDAR") {
		t.Fatal("case-insensitive lookup failed")
	}
	if r.Has("weather") {
		t.Fatal("unregistered name reported present")
	}
	if r.Fallback() != "general" {
		t.Fatalf("fallback = %q", r.Fallback())
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "calendar" || names[1] != "general" {
		t.Fatalf("names = %v, want sorted", names)
	}

	p, ok := r.Provider("Calendar")
	if !ok || p.Name() != "calendar" {
		t.Fatalf("Provider lookup: %v %v", p, ok)
	}
}

func TestRegistryRejectsMissingFallback(t *testing.T) {
	b := NewRegistryBuilder("general")
	b.Register(Descriptor{Name: "calendar", Description: "scheduling"}, &stubProvider{name: "calendar"})
	if _, err := b.Build(); err == nil {
		t.Fatal("want error when fallback is unregistered")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	b := NewRegistryBuilder("general")
	b.Register(Descriptor{Name: "general", Description: "one"}, &stubProvider{name: "general"})
	b.Register(Descriptor{Name: "General", Description: "two"}, &stubProvider{name: "general"})
	if _, err := b.Build(); err == nil {
		t.Fatal("want duplicate registration error")
	}
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	b := NewRegistryBuilder("general")
	b.Register(Descriptor{Name: "  ", Description: "blank"}, &stubProvider{})
	if _, err := b.Build(); err == nil {
		t.Fatal("want empty-name error")
	}
}

func TestRegistryDescribe(t *testing.T) {
	b := NewRegistryBuilder("general")
	b.Register(Descriptor{Name: "general", Description: "general conversation"}, &stubProvider{name: "general"})
	b.Register(Descriptor{Name: "tutor", Description: "interactive study help"}, &stubProvider{name: "tutor"})
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := r.Describe()
	want := "- general: general conversation\n- tutor: interactive study help"
	if got != want {
		t.Fatalf("Describe:\n%q\nwant\n%q", got, want)
	}
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("unexpected trailing newline: %q", got)
	}
}
