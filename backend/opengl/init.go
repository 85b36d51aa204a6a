package opengl

import "github.com/gogpu/gpuexec"

// init registers the immediate backend on package import.
func init() {
	gpuexec.Register(gpuexec.BackendImmediate, func(ctx gpuexec.Context, cfg gpuexec.Config) (gpuexec.Renderer, error) {
		r, err := New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}
