package opengl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gpuexec"
)

type shader struct {
	r     *Renderer
	label string
	stage gpuexec.ShaderStage

	mu        sync.Mutex
	destroyed bool

	// Set once by NewShader, read on the GL goroutine.
	name uint32
}

var _ gpuexec.Shader = (*shader)(nil)

// NewShader compiles GLSL source on the GL goroutine and waits for the
// result, so compile errors carry the driver info log.
func (r *Renderer) NewShader(desc gpuexec.ShaderDescriptor) (gpuexec.Shader, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Language != gpuexec.ShaderLanguageGLSL {
		return nil, fmt.Errorf("%w: shader %q: immediate backend accepts GLSL, got %v",
			gpuexec.ErrInvalidDescriptor, desc.Label, desc.Language)
	}

	s := &shader{r: r, label: desc.Label, stage: desc.Stage}
	kind := uint32(glVertexShader)
	if desc.Stage == gpuexec.ShaderStageFragment {
		kind = glFragmentShader
	}
	source := string(desc.Code)
	err := r.sched.Do(func() error {
		gl := r.gl
		name := gl.CreateShader(kind)
		gl.ShaderSource(name, source)
		gl.CompileShader(name)
		if ok, log := gl.ShaderStatus(name); !ok {
			gl.DeleteShader(name)
			return fmt.Errorf("compile %v shader: %s", desc.Stage, strings.TrimSpace(log))
		}
		s.name = name
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opengl: shader %q: %w", desc.Label, r.mapErr(err))
	}
	return s, nil
}

func (s *shader) Backend() gpuexec.BackendKind { return gpuexec.BackendImmediate }
func (s *shader) Label() string                { return s.label }
func (s *shader) Stage() gpuexec.ShaderStage   { return s.stage }

// Destroy queues deletion. Programs already linked keep working.
func (s *shader) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()
	s.r.release(s)
}

func (s *shader) release(gl GL) {
	if s.name != 0 {
		gl.DeleteShader(s.name)
		s.name = 0
	}
}

func (r *Renderer) ownShader(sh gpuexec.Shader, stage gpuexec.ShaderStage) (*shader, error) {
	s, ok := sh.(*shader)
	if !ok || s.r != r {
		return nil, fmt.Errorf("%w: shader %T", gpuexec.ErrForeignResource, sh)
	}
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("shader %q: %w", s.label, gpuexec.ErrDestroyed)
	}
	if s.stage != stage {
		return nil, fmt.Errorf("%w: shader %q is a %v shader, want %v",
			gpuexec.ErrInvalidDescriptor, s.label, s.stage, stage)
	}
	return s, nil
}
