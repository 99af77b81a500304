//go:build windows

package capture

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/reelcap/recorder/internal/logging"
	"github.com/reelcap/recorder/internal/window"
)

// Raw COM vtable plumbing for D3D11/DXGI. Pure Go, no CGO: a COM interface
// pointer is a pointer to a pointer to its vtable, so methods are plain
// function pointers invoked with SyscallN.

type comGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

const vtblQueryInterface = 0

// comCall invokes a COM vtable method at the given index.
func comCall(obj uintptr, vtableIdx int, args ...uintptr) (uintptr, error) {
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(comVtblFn(obj, vtableIdx), allArgs...)
	if int32(ret) < 0 {
		return ret, fmt.Errorf("COM vtable[%d] HRESULT 0x%08X", vtableIdx, uint32(ret))
	}
	return ret, nil
}

// comRelease calls IUnknown::Release (vtable index 2).
func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(comVtblFn(obj, 2), obj)
	}
}

// comVtblFn resolves a COM vtable function pointer by index.
func comVtblFn(obj uintptr, idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

var (
	d3d11DLL              = syscall.NewLazyDLL("d3d11.dll")
	procD3D11CreateDevice = d3d11DLL.NewProc("D3D11CreateDevice")
)

const (
	d3dDriverTypeHardware = 1
	d3dFeatureLevel11_0   = 0xb000
	d3d11SDKVersion       = 7

	d3d11CreateDeviceBGRASupport = 0x20

	d3d11UsageStaging  = 3
	d3d11CPUAccessRead = 0x20000
	dxgiFormatB8G8R8A8 = 87

	dxgiErrWaitTimeout   = 0x887A0027
	dxgiErrAccessLost    = 0x887A0026
	dxgiErrInvalidCall   = 0x887A0001
	dxgiErrDeviceRemoved = 0x887A0005
	dxgiErrDeviceReset   = 0x887A0007

	// COM vtable indices, fixed by the interface ABI.
	dxgiDeviceGetAdapter       = 7  // IDXGIDevice
	dxgiAdapterEnumOutputs     = 7  // IDXGIAdapter
	dxgiOutput1DuplicateOutput = 22 // IDXGIOutput1
	dxgiDuplGetDesc            = 7  // IDXGIOutputDuplication
	dxgiDuplAcquireNextFrame   = 8  // IDXGIOutputDuplication
	dxgiDuplReleaseFrame       = 14 // IDXGIOutputDuplication
	d3d11DeviceCreateTexture2D = 5  // ID3D11Device
	d3d11CtxMap                = 14 // ID3D11DeviceContext
	d3d11CtxUnmap              = 15 // ID3D11DeviceContext
	d3d11CtxCopyResource       = 47 // ID3D11DeviceContext
)

var (
	iidIDXGIDevice     = comGUID{0x54ec77fa, 0x1377, 0x44e6, [8]byte{0x8c, 0x32, 0x88, 0xfd, 0x5f, 0x44, 0xc8, 0x4c}}
	iidID3D11Texture2D = comGUID{0x6f15aaf2, 0xd208, 0x4e89, [8]byte{0x9a, 0xb4, 0x48, 0x95, 0x35, 0xd3, 0x4f, 0x9c}}
	iidIDXGIOutput1    = comGUID{0x00cddea8, 0x939b, 0x4b83, [8]byte{0xa3, 0x40, 0xa6, 0x85, 0x22, 0x66, 0x66, 0xcc}}
)

// d3d11Texture2DDesc matches D3D11_TEXTURE2D_DESC.
type d3d11Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32
	SampleQuality  uint32
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// d3d11MappedSubresource matches D3D11_MAPPED_SUBRESOURCE.
type d3d11MappedSubresource struct {
	PData      uintptr
	RowPitch   uint32
	DepthPitch uint32
}

type dxgiRational struct {
	Numerator   uint32
	Denominator uint32
}

// dxgiModeDesc matches DXGI_MODE_DESC.
type dxgiModeDesc struct {
	Width            uint32
	Height           uint32
	RefreshRate      dxgiRational
	Format           uint32
	ScanlineOrdering uint32
	Scaling          uint32
}

// dxgiOutDuplDesc matches DXGI_OUTDUPL_DESC.
type dxgiOutDuplDesc struct {
	ModeDesc                   dxgiModeDesc
	Rotation                   uint32
	DesktopImageInSystemMemory int32
}

// dxgiOutDuplFrameInfo matches DXGI_OUTDUPL_FRAME_INFO.
type dxgiOutDuplFrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerPositionX          int32
	PointerPositionY          int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// dxgiSource captures the desktop output via DXGI Desktop Duplication and
// crops each frame to the tracked window's client area. The crop size is
// fixed at Start so the encoder's dimensions never change; only the window's
// origin is re-resolved per frame.
type dxgiSource struct {
	cfg Config

	mu      sync.Mutex
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	device      uintptr // ID3D11Device
	context     uintptr // ID3D11DeviceContext
	duplication uintptr // IDXGIOutputDuplication
	staging     uintptr // ID3D11Texture2D, CPU-readable

	deskW int
	deskH int
}

func newDXGISource(cfg Config) *dxgiSource {
	return &dxgiSource{cfg: cfg}
}

func (c *dxgiSource) Start(target window.Info, onFrame func(Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrAlreadyStarted
	}
	if target.Width <= 0 || target.Height <= 0 {
		return fmt.Errorf("window %q has degenerate client area %dx%d",
			target.Title, target.Width, target.Height)
	}
	if err := c.initDXGI(); err != nil {
		return err
	}

	c.done = make(chan struct{})
	c.running.Store(true)
	c.wg.Add(1)
	go c.loop(target, onFrame)
	return nil
}

func (c *dxgiSource) initDXGI() error {
	var device, context uintptr
	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32

	hr, _, _ := procD3D11CreateDevice.Call(
		0, // pAdapter (NULL = default)
		uintptr(d3dDriverTypeHardware),
		0, // Software
		uintptr(d3d11CreateDeviceBGRASupport),
		uintptr(unsafe.Pointer(&featureLevel)),
		1,
		uintptr(d3d11SDKVersion),
		uintptr(unsafe.Pointer(&device)),
		uintptr(unsafe.Pointer(&actualLevel)),
		uintptr(unsafe.Pointer(&context)),
	)
	if int32(hr) < 0 {
		return fmt.Errorf("D3D11CreateDevice failed: 0x%08X", uint32(hr))
	}

	var dxgiDevice uintptr
	_, err := comCall(device, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIDevice)),
		uintptr(unsafe.Pointer(&dxgiDevice)),
	)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("QueryInterface IDXGIDevice: %w", err)
	}
	defer comRelease(dxgiDevice)

	var adapter uintptr
	_, err = comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter)))
	if err != nil {
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("IDXGIDevice::GetAdapter: %w", err)
	}
	defer comRelease(adapter)

	// Primary output only. Tracking a window that lives on a secondary
	// display falls through to the screenshot source.
	var output uintptr
	_, err = comCall(adapter, dxgiAdapterEnumOutputs,
		0,
		uintptr(unsafe.Pointer(&output)),
	)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("IDXGIAdapter::EnumOutputs: %w", err)
	}

	var output1 uintptr
	_, err = comCall(output, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIOutput1)),
		uintptr(unsafe.Pointer(&output1)),
	)
	comRelease(output)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("QueryInterface IDXGIOutput1: %w", err)
	}
	defer comRelease(output1)

	var duplication uintptr
	_, err = comCall(output1, dxgiOutput1DuplicateOutput,
		device,
		uintptr(unsafe.Pointer(&duplication)),
	)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("IDXGIOutput1::DuplicateOutput: %w", err)
	}

	// Dimensions come from GetDesc, not from probing AcquireNextFrame: the
	// first acquire can time out when the desktop is idle.
	var duplDesc dxgiOutDuplDesc
	hrDesc, _, _ := syscall.SyscallN(
		comVtblFn(duplication, dxgiDuplGetDesc),
		duplication,
		uintptr(unsafe.Pointer(&duplDesc)),
	)
	if int32(hrDesc) < 0 {
		comRelease(duplication)
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("IDXGIOutputDuplication::GetDesc failed: 0x%08X", uint32(hrDesc))
	}
	width := int(duplDesc.ModeDesc.Width)
	height := int(duplDesc.ModeDesc.Height)
	if width <= 0 || height <= 0 {
		comRelease(duplication)
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("invalid duplication dimensions: %dx%d", width, height)
	}
	// Rotated displays return textures in native orientation; the crop math
	// below assumes identity. Rare enough on gaming rigs to punt to the
	// screenshot source.
	if duplDesc.Rotation == 2 || duplDesc.Rotation == 4 {
		comRelease(duplication)
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("display rotation %d not supported", duplDesc.Rotation)
	}

	stagingDesc := d3d11Texture2DDesc{
		Width:          uint32(width),
		Height:         uint32(height),
		MipLevels:      1,
		ArraySize:      1,
		Format:         dxgiFormatB8G8R8A8,
		SampleCount:    1,
		Usage:          d3d11UsageStaging,
		CPUAccessFlags: d3d11CPUAccessRead,
	}
	var staging uintptr
	_, err = comCall(device, d3d11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&stagingDesc)),
		0, // pInitialData
		uintptr(unsafe.Pointer(&staging)),
	)
	if err != nil {
		comRelease(duplication)
		comRelease(context)
		comRelease(device)
		return fmt.Errorf("CreateTexture2D staging: %w", err)
	}

	c.device = device
	c.context = context
	c.duplication = duplication
	c.staging = staging
	c.deskW = width
	c.deskH = height

	logging.L("capture").Info("DXGI desktop duplication initialized",
		"width", width, "height", height)
	return nil
}

func (c *dxgiSource) loop(target window.Info, onFrame func(Frame)) {
	defer c.wg.Done()
	defer c.running.Store(false)

	// Duplication objects are only valid on the thread that drives them.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := logging.L("capture")
	cropW, cropH := target.Width, target.Height
	outW, outH := scaledDims(cropW, cropH, c.cfg.Scale)
	scaled := outW != cropW || outH != cropH

	pace := newPacer(c.cfg.TargetFPS)
	crop := make([]byte, cropW*cropH*4)
	started := time.Now()
	reinits := 0

	for {
		select {
		case <-c.done:
			return
		default:
		}

		ok, fatal := c.acquireInto(target, crop, cropW, cropH, pace)
		if gone, isGone := fatal.(windowGone); isGone {
			log.Info("window gone, capture stopping", logging.KeyError, gone.err)
			return
		}
		if fatal != nil {
			// Mode changes and device resets invalidate the duplication.
			// One rebuild attempt; a second failure ends the session.
			log.Warn("DXGI capture error", logging.KeyError, fatal)
			c.releaseDXGI()
			reinits++
			if reinits > 1 {
				log.Warn("giving up on DXGI after repeated failures")
				return
			}
			time.Sleep(200 * time.Millisecond)
			if err := c.initDXGI(); err != nil {
				log.Warn("DXGI reinit failed, capture stopping", logging.KeyError, err)
				return
			}
			continue
		}
		if !ok {
			continue
		}

		pix := make([]byte, outW*outH*4)
		if scaled {
			scaleBGRA(crop, cropW, cropH, pix, outW, outH)
		} else {
			copy(pix, crop)
		}
		onFrame(Frame{
			Pix:       pix,
			Width:     outW,
			Height:    outH,
			Timestamp: time.Since(started),
		})
	}
}

// windowGone distinguishes "tracked window exited" from duplication errors.
type windowGone struct{ err error }

func (w windowGone) Error() string { return w.err.Error() }

// acquireInto acquires the next desktop frame, crops the window region into
// dst and reports whether a frame was delivered. A non-nil fatal means the
// duplication needs rebuilding (or the window is gone, wrapped in windowGone).
func (c *dxgiSource) acquireInto(target window.Info, dst []byte, cropW, cropH int, pace *pacer) (bool, error) {
	var frameInfo dxgiOutDuplFrameInfo
	var resource uintptr

	// 50ms timeout keeps idle polling around 20/sec; a fresh frame returns
	// immediately regardless.
	hr, _, _ := syscall.SyscallN(
		comVtblFn(c.duplication, dxgiDuplAcquireNextFrame),
		c.duplication,
		uintptr(50),
		uintptr(unsafe.Pointer(&frameInfo)),
		uintptr(unsafe.Pointer(&resource)),
	)
	hresult := uint32(hr)

	if hresult == dxgiErrWaitTimeout {
		return false, nil
	}
	if hresult == dxgiErrAccessLost || hresult == dxgiErrInvalidCall ||
		hresult == dxgiErrDeviceRemoved || hresult == dxgiErrDeviceReset {
		return false, fmt.Errorf("duplication invalidated: 0x%08X", hresult)
	}
	if int32(hr) < 0 {
		return false, fmt.Errorf("AcquireNextFrame: 0x%08X", hresult)
	}

	releaseFrame := func() {
		syscall.SyscallN(comVtblFn(c.duplication, dxgiDuplReleaseFrame), c.duplication)
	}

	if frameInfo.AccumulatedFrames == 0 {
		comRelease(resource)
		releaseFrame()
		return false, nil
	}

	// Rate-limit before any pixel work.
	if !pace.allow(time.Now()) {
		comRelease(resource)
		releaseFrame()
		return false, nil
	}

	x, y, _, _, err := window.Bounds(target.Handle)
	if err != nil {
		comRelease(resource)
		releaseFrame()
		return false, windowGone{err}
	}
	// Clamp the crop origin so the fixed-size region stays on the desktop.
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+cropW > c.deskW {
		x = c.deskW - cropW
	}
	if y+cropH > c.deskH {
		y = c.deskH - cropH
	}
	if x < 0 || y < 0 {
		// Window larger than the desktop; crop the top-left portion.
		x, y = 0, 0
	}

	var texture uintptr
	_, err = comCall(resource, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&texture)),
	)
	comRelease(resource)
	if err != nil {
		releaseFrame()
		return false, fmt.Errorf("QueryInterface ID3D11Texture2D: %w", err)
	}

	// GPU-to-GPU copy into the CPU-readable staging texture. CopyResource is
	// void; failures surface at Map.
	syscall.SyscallN(
		comVtblFn(c.context, d3d11CtxCopyResource),
		c.context,
		c.staging,
		texture,
	)
	comRelease(texture)

	var mapped d3d11MappedSubresource
	hr, _, _ = syscall.SyscallN(
		comVtblFn(c.context, d3d11CtxMap),
		c.context,
		c.staging,
		0, // Subresource
		1, // D3D11_MAP_READ
		0, // Flags
		uintptr(unsafe.Pointer(&mapped)),
	)
	if int32(hr) < 0 {
		releaseFrame()
		return false, fmt.Errorf("Map staging texture: 0x%08X", uint32(hr))
	}

	rowPitch := int(mapped.RowPitch)
	rowBytes := cropW * 4
	maxH := cropH
	if y+maxH > c.deskH {
		maxH = c.deskH - y
	}
	for dy := 0; dy < maxH; dy++ {
		srcOff := uintptr((y+dy)*rowPitch + x*4)
		srcRow := unsafe.Slice((*byte)(unsafe.Pointer(mapped.PData+srcOff)), rowBytes)
		copy(dst[dy*rowBytes:(dy+1)*rowBytes], srcRow)
	}

	syscall.SyscallN(comVtblFn(c.context, d3d11CtxUnmap), c.context, c.staging, 0)
	releaseFrame()
	return true, nil
}

func (c *dxgiSource) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.wg.Wait()
	c.releaseDXGI()
}

func (c *dxgiSource) releaseDXGI() {
	if c.staging != 0 {
		comRelease(c.staging)
		c.staging = 0
	}
	if c.duplication != 0 {
		comRelease(c.duplication)
		c.duplication = 0
	}
	if c.context != 0 {
		comRelease(c.context)
		c.context = 0
	}
	if c.device != 0 {
		comRelease(c.device)
		c.device = 0
	}
}

func (c *dxgiSource) IsRunning() bool {
	return c.running.Load()
}
