package wgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Register the Vulkan HAL backend for OpenDevice.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// halProvider is implemented by capability handles exposing HAL objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// surfaceFormatter reports the format of the host surface.
// gpucontext.DeviceProvider implementations satisfy it.
type surfaceFormatter interface {
	SurfaceFormat() gputypes.TextureFormat
}

// Presenter is optionally implemented by capability handles that can show
// the main framebuffer. Present receives the color texture of the main
// framebuffer after the frames writing it were submitted.
type Presenter interface {
	Present(texture hal.Texture, width, height int) error
}

// DeviceHandle is a capability handle wrapping a HAL device and queue.
// It implements gpucontext.DeviceProvider so gogpu hosts can pass it
// through unchanged; the gpucontext device accessors return nil because
// the renderer only uses the HAL objects.
type DeviceHandle struct {
	device    hal.Device
	queue     hal.Queue
	format    gputypes.TextureFormat
	presenter Presenter
	release   func()
	info      gpucontext.AdapterInfo
}

var _ gpucontext.DeviceProvider = (*DeviceHandle)(nil)

// NewDeviceHandle wraps an existing device. format is the surface format;
// TextureFormatUndefined selects BGRA8Unorm. The caller keeps ownership
// of the device.
func NewDeviceHandle(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) *DeviceHandle {
	return &DeviceHandle{
		device: device,
		queue:  queue,
		format: format,
		info:   gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown},
	}
}

// WithPresenter returns h with p as presenter.
func (h *DeviceHandle) WithPresenter(p Presenter) *DeviceHandle {
	h.presenter = p
	return h
}

// HalDevice returns the hal.Device.
func (h *DeviceHandle) HalDevice() any { return h.device }

// HalQueue returns the hal.Queue.
func (h *DeviceHandle) HalQueue() any { return h.queue }

// Device returns nil: the handle exposes the device through HalDevice.
func (h *DeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil: the handle exposes the queue through HalQueue.
func (h *DeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil.
func (h *DeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns the surface format.
func (h *DeviceHandle) SurfaceFormat() gputypes.TextureFormat { return h.format }

// AdapterInfo describes the adapter the device was opened on. Wrapped
// devices report AdapterTypeUnknown.
func (h *DeviceHandle) AdapterInfo() gpucontext.AdapterInfo { return h.info }

// AdapterName returns the name of the adapter the device was opened on,
// or "" for wrapped devices.
func (h *DeviceHandle) AdapterName() string { return h.info.Name }

// Present forwards to the presenter, if any.
func (h *DeviceHandle) Present(texture hal.Texture, width, height int) error {
	if h.presenter == nil {
		return nil
	}
	return h.presenter.Present(texture, width, height)
}

// Release destroys a device opened by OpenDevice or OpenNoopDevice. It is
// a no-op for wrapped devices. Close every renderer using the handle first.
func (h *DeviceHandle) Release() {
	if h.release != nil {
		h.release()
		h.release = nil
	}
}

// OpenDevice opens a device on the first discrete or integrated Vulkan
// adapter, or on the first adapter when neither kind is present.
func OpenDevice() (*DeviceHandle, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available: %w", gpuexec.ErrCapabilityAbsent)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	return openOn(instance)
}

// OpenNoopDevice opens a device on the HAL no-op backend. Every call
// succeeds without touching a GPU, which suits tests and headless runs.
func OpenNoopDevice() (*DeviceHandle, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create noop instance: %w", err)
	}
	return openOn(instance)
}

func openOn(instance hal.Instance) (*DeviceHandle, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no GPU adapters found: %w", gpuexec.ErrCapabilityAbsent)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	info := gpucontext.AdapterInfo{Name: selected.Info.Name, Type: adapterType(selected.Info.DeviceType)}
	gpuexec.Logger().Info("wgpu: device opened", "adapter", info.Name, "type", info.Type)
	device := openDev.Device
	return &DeviceHandle{
		device: device,
		queue:  openDev.Queue,
		format: gputypes.TextureFormatBGRA8Unorm,
		info:   info,
		release: func() {
			device.Destroy()
			instance.Destroy()
		},
	}, nil
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// resolveHandle extracts the HAL objects from a capability handle.
func resolveHandle(handle any) (hal.Device, hal.Queue, gputypes.TextureFormat, Presenter, error) {
	if handle == nil {
		return nil, nil, gputypes.TextureFormatUndefined, nil, fmt.Errorf("wgpu: no capability handle: %w", gpuexec.ErrCapabilityAbsent)
	}
	hp, ok := handle.(halProvider)
	if !ok {
		return nil, nil, gputypes.TextureFormatUndefined, nil, fmt.Errorf("wgpu: handle %T does not expose HAL types: %w", handle, gpuexec.ErrCapabilityAbsent)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, gputypes.TextureFormatUndefined, nil, fmt.Errorf("wgpu: HalDevice is not hal.Device: %w", gpuexec.ErrCapabilityAbsent)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, gputypes.TextureFormatUndefined, nil, fmt.Errorf("wgpu: HalQueue is not hal.Queue: %w", gpuexec.ErrCapabilityAbsent)
	}

	format := gputypes.TextureFormatUndefined
	if sf, ok := handle.(surfaceFormatter); ok {
		format = sf.SurfaceFormat()
	}
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	presenter, _ := handle.(Presenter)
	return device, queue, format, presenter, nil
}
