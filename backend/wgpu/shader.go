package wgpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

type shader struct {
	r     *Renderer
	label string
	stage gpuexec.ShaderStage
	entry string

	mu        sync.Mutex
	module    hal.ShaderModule
	destroyed bool
}

var _ gpuexec.Shader = (*shader)(nil)

// NewShader creates a shader module. WGSL is compiled to SPIR-V with naga
// so compile errors are returned here; the SPIR-V is cached per source
// text. GLSL is not accepted.
func (r *Renderer) NewShader(desc gpuexec.ShaderDescriptor) (gpuexec.Shader, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	var words []uint32
	switch desc.Language {
	case gpuexec.ShaderLanguageSPIRV:
		w, err := spirvWords(desc.Code)
		if err != nil {
			return nil, fmt.Errorf("%w: shader %q: %w", gpuexec.ErrInvalidDescriptor, desc.Label, err)
		}
		words = w
	case gpuexec.ShaderLanguageWGSL:
		w, err := r.spirv.GetOrCompile(string(desc.Code), compileWGSL)
		if err != nil {
			return nil, fmt.Errorf("wgpu: compile shader %q: %w", desc.Label, err)
		}
		words = w
	default:
		return nil, fmt.Errorf("%w: shader %q: explicit backend accepts SPIR-V or WGSL, got %v",
			gpuexec.ErrInvalidDescriptor, desc.Label, desc.Language)
	}

	module, err := r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader module %q: %w", desc.Label, err)
	}
	return &shader{
		r:      r,
		label:  desc.Label,
		stage:  desc.Stage,
		entry:  desc.Entry(),
		module: module,
	}, nil
}

func compileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	return spirvWords(spirv)
}

// spirvWords converts a little-endian SPIR-V binary to words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a non-zero multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("SPIR-V magic %#08x, want %#08x", words[0], spirvMagic)
	}
	return words, nil
}

func (s *shader) Backend() gpuexec.BackendKind { return gpuexec.BackendExplicit }
func (s *shader) Label() string                { return s.label }
func (s *shader) Stage() gpuexec.ShaderStage   { return s.stage }

func (s *shader) handle() (hal.ShaderModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, fmt.Errorf("%w: shader %q", gpuexec.ErrDestroyed, s.label)
	}
	return s.module, nil
}

// Destroy releases the module. Pipelines already created keep working.
func (s *shader) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	module := s.module
	s.module = nil
	s.mu.Unlock()

	device := s.r.device
	s.r.destroyLater("shader "+s.label, func() { device.DestroyShaderModule(module) })
}

func (r *Renderer) ownShader(sh gpuexec.Shader, stage gpuexec.ShaderStage) (*shader, error) {
	s, ok := sh.(*shader)
	if !ok || s.r != r {
		return nil, fmt.Errorf("%w: shader %q", gpuexec.ErrForeignResource, sh.Label())
	}
	if s.stage != stage {
		return nil, fmt.Errorf("%w: shader %q is a %v shader, want %v", gpuexec.ErrInvalidDescriptor, s.label, s.stage, stage)
	}
	return s, nil
}
