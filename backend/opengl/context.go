package opengl

import (
	"fmt"

	"github.com/gogpu/gpuexec"
)

// GLContext is the capability handle an immediate renderer needs from the
// host: a context that can be made current on the GL goroutine and a
// surface to swap.
type GLContext interface {
	MakeCurrent() error
	SwapBuffers() error
}

// FunctionTabler is optionally implemented by a GLContext that supplies
// its own function table instead of the registered loader.
type FunctionTabler interface {
	FunctionTable() GL
}

func resolveContext(handle any) (GLContext, error) {
	if handle == nil {
		return nil, fmt.Errorf("opengl: no capability handle: %w", gpuexec.ErrCapabilityAbsent)
	}
	glctx, ok := handle.(GLContext)
	if !ok {
		return nil, fmt.Errorf("opengl: handle %T is not a GLContext: %w", handle, gpuexec.ErrCapabilityAbsent)
	}
	return glctx, nil
}
