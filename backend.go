package gpuexec

import "fmt"

// BackendKind identifies a backend family.
type BackendKind uint8

const (
	// BackendExplicit is a command-buffer API with explicit frame
	// synchronization (Vulkan through gogpu/wgpu HAL).
	BackendExplicit BackendKind = iota + 1

	// BackendImmediate is a single-context state machine API (OpenGL).
	BackendImmediate
)

// String returns the backend name.
func (k BackendKind) String() string {
	switch k {
	case BackendExplicit:
		return "explicit"
	case BackendImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("BackendKind(%d)", uint8(k))
	}
}

// ParseBackendKind parses the names returned by String.
func ParseBackendKind(s string) (BackendKind, error) {
	switch s {
	case "explicit", "wgpu", "vulkan":
		return BackendExplicit, nil
	case "immediate", "opengl", "gl":
		return BackendImmediate, nil
	default:
		return 0, fmt.Errorf("gpuexec: unknown backend %q", s)
	}
}
