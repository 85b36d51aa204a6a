package gpuexec

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if len(c.Preference) != 2 || c.Preference[0] != BackendExplicit || c.Preference[1] != BackendImmediate {
		t.Errorf("Preference = %v, want [explicit immediate]", c.Preference)
	}
	if c.FramesInFlight != 2 {
		t.Errorf("FramesInFlight = %d, want 2", c.FramesInFlight)
	}
	if c.FenceTimeout != 5*time.Second {
		t.Errorf("FenceTimeout = %v, want 5s", c.FenceTimeout)
	}
}

func TestWithFramesInFlightClamps(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{3, 3},
		{10, MaxFramesInFlight},
	}
	for _, tt := range tests {
		if got := NewConfig(WithFramesInFlight(tt.in)).FramesInFlight; got != tt.want {
			t.Errorf("WithFramesInFlight(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWithFenceTimeoutKeepsDefault(t *testing.T) {
	if got := NewConfig(WithFenceTimeout(0)).FenceTimeout; got != 5*time.Second {
		t.Errorf("WithFenceTimeout(0) = %v, want default", got)
	}
	if got := NewConfig(WithFenceTimeout(time.Second)).FenceTimeout; got != time.Second {
		t.Errorf("WithFenceTimeout(1s) = %v, want 1s", got)
	}
}

func TestWithPreferenceCopies(t *testing.T) {
	kinds := []BackendKind{BackendImmediate}
	c := NewConfig(WithPreference(kinds...))
	kinds[0] = BackendExplicit
	if c.Preference[0] != BackendImmediate {
		t.Error("WithPreference kept a reference to the caller's slice")
	}
}

func TestWithPoolCapacity(t *testing.T) {
	if got := NewConfig(WithPoolCapacity(-4)).PoolCapacity; got != DefaultConfig().PoolCapacity {
		t.Errorf("WithPoolCapacity(-4) = %d, want default", got)
	}
	if got := NewConfig(WithPoolCapacity(4)).PoolCapacity; got != 4 {
		t.Errorf("WithPoolCapacity(4) = %d, want 4", got)
	}
}

func TestBackendKindString(t *testing.T) {
	tests := []struct {
		kind BackendKind
		want string
	}{
		{BackendExplicit, "explicit"},
		{BackendImmediate, "immediate"},
		{BackendKind(9), "BackendKind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseBackendKind(t *testing.T) {
	for _, name := range []string{"explicit", "wgpu", "vulkan"} {
		if k, err := ParseBackendKind(name); err != nil || k != BackendExplicit {
			t.Errorf("ParseBackendKind(%q) = %v, %v", name, k, err)
		}
	}
	for _, name := range []string{"immediate", "opengl", "gl"} {
		if k, err := ParseBackendKind(name); err != nil || k != BackendImmediate {
			t.Errorf("ParseBackendKind(%q) = %v, %v", name, k, err)
		}
	}
	if _, err := ParseBackendKind("metal"); err == nil {
		t.Error("ParseBackendKind(metal) error = nil")
	}
}

func TestResolveCull(t *testing.T) {
	on := DefaultInitOptions()
	off := InitOptions{}
	tests := []struct {
		name string
		opts InitOptions
		in   CullFace
		want CullFace
	}{
		{"inherit enabled", on, CullDefault, CullBack},
		{"inherit disabled", off, CullDefault, CullNone},
		{"explicit front", on, CullFront, CullFront},
		{"explicit none", on, CullNone, CullNone},
		{"enabled without face", InitOptions{Culling: CullingOptions{Enabled: true}}, CullDefault, CullBack},
	}
	for _, tt := range tests {
		if got := tt.opts.ResolveCull(tt.in); got != tt.want {
			t.Errorf("%s: ResolveCull(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}
