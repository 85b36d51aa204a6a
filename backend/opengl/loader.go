package opengl

import (
	"errors"
	"sync"
)

var (
	// ErrLoaderInUse is returned when a second renderer needs the
	// process-wide function loader while another renderer holds it.
	ErrLoaderInUse = errors.New("opengl: function loader in use by another renderer")

	// ErrNoLoader is returned when the context supplies no function
	// table and no loader was registered.
	ErrNoLoader = errors.New("opengl: no function loader registered")
)

// Loader resolves the GL function table. It runs on the GL goroutine
// with the context current.
type Loader func() (GL, error)

// The registered loader feeds raw function pointers into package-level
// state, so at most one renderer can use it at a time.
var (
	loaderMu    sync.Mutex
	loader      Loader
	loaderOwner *Renderer
)

// RegisterLoader installs the process-wide loader. The gogl subpackage
// calls it from init. A later call replaces the loader.
func RegisterLoader(l Loader) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	loader = l
}

// HasLoader reports whether a loader is registered.
func HasLoader() bool {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	return loader != nil
}

// acquireLoader claims the loader for r.
func acquireLoader(r *Renderer) (Loader, error) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	if loader == nil {
		return nil, ErrNoLoader
	}
	if loaderOwner != nil && loaderOwner != r {
		return nil, ErrLoaderInUse
	}
	loaderOwner = r
	return loader, nil
}

// releaseLoader gives the loader back if r holds it.
func releaseLoader(r *Renderer) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	if loaderOwner == r {
		loaderOwner = nil
	}
}
