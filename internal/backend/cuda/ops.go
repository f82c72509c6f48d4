//go:build cuda

package cuda

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/samcharles93/aqlm/internal/backend/cuda/native"
	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/tensor"
)

// Ops runs the quantized matvec kernels on one device stream. Codes and
// codebooks are uploaded once and cached for the lifetime of the Ops; the
// input and output vectors ride reusable pinned staging buffers.
type Ops struct {
	stream native.Stream

	mu        sync.Mutex
	codebooks map[*kernels.Codebook]native.DeviceBuffer
	codes     map[unsafe.Pointer]native.DeviceBuffer

	xHost native.HostBuffer
	yHost native.HostBuffer
	xDev  native.DeviceBuffer
	yDev  native.DeviceBuffer

	xCapBytes int
	yCapBytes int
	xDevBytes int
	yDevBytes int
}

func NewOps(stream native.Stream) *Ops {
	return &Ops{
		stream:    stream,
		codebooks: make(map[*kernels.Codebook]native.DeviceBuffer),
		codes:     make(map[unsafe.Pointer]native.DeviceBuffer),
	}
}

func (o *Ops) Name() string {
	return "cuda"
}

func (o *Ops) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	for _, buf := range o.codebooks {
		if e := buf.Free(); e != nil && err == nil {
			err = e
		}
	}
	o.codebooks = make(map[*kernels.Codebook]native.DeviceBuffer)
	for _, buf := range o.codes {
		if e := buf.Free(); e != nil && err == nil {
			err = e
		}
	}
	o.codes = make(map[unsafe.Pointer]native.DeviceBuffer)

	if e := o.xDev.Free(); e != nil && err == nil {
		err = e
	}
	if e := o.yDev.Free(); e != nil && err == nil {
		err = e
	}
	if e := o.xHost.Free(); e != nil && err == nil {
		err = e
	}
	if e := o.yHost.Free(); e != nil && err == nil {
		err = e
	}
	o.xCapBytes = 0
	o.yCapBytes = 0
	o.xDevBytes = 0
	o.yDevBytes = 0

	if e := o.stream.Destroy(); e != nil && err == nil {
		err = e
	}
	return err
}

func (o *Ops) Code1x16MatVec(dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error {
	return o.matvec(native.Code1x16MatVec, dst, codes, x, cb)
}

func (o *Ops) Code2x8MatVec(dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error {
	return o.matvec(native.Code2x8MatVec, dst, codes, x, cb)
}

type launchFunc func(codes, input, output, codebook native.DeviceBuffer, probM, probK int, stream native.Stream) error

func (o *Ops) matvec(launch launchFunc, dst []float32, codes []uint16, x []float32, cb *kernels.Codebook) error {
	m := len(dst)
	k := len(x)
	if m == 0 || k == 0 {
		return nil
	}
	kernels.CountLaunch()

	o.mu.Lock()
	defer o.mu.Unlock()

	devCB, err := o.deviceCodebook(cb)
	if err != nil {
		return err
	}
	devCodes, err := o.deviceCodes(codes)
	if err != nil {
		return err
	}

	xBytes := int64(k) * 2
	yBytes := int64(m) * 2
	if err := o.ensureHostVecs(int(xBytes), int(yBytes)); err != nil {
		return err
	}
	if err := o.ensureDeviceVecs(int(xBytes), int(yBytes)); err != nil {
		return err
	}

	xStage := unsafe.Slice((*uint16)(o.xHost.Ptr()), k)
	for i, v := range x {
		xStage[i] = tensor.EncodeFloat(tensor.F16, v)
	}
	if err := native.MemcpyH2DAsync(o.xDev, o.xHost.Ptr(), xBytes, o.stream); err != nil {
		return err
	}

	if err := launch(devCodes, o.xDev, o.yDev, devCB, m, k, o.stream); err != nil {
		return err
	}

	if err := native.MemcpyD2HAsync(o.yHost.Ptr(), o.yDev, yBytes, o.stream); err != nil {
		return err
	}
	if err := o.stream.Synchronize(); err != nil {
		return err
	}

	tbl := tensor.F16.DecodeTable()
	yStage := unsafe.Slice((*uint16)(o.yHost.Ptr()), m)
	for i, u := range yStage {
		dst[i] = tbl[u]
	}
	runtime.KeepAlive(x)
	runtime.KeepAlive(dst)
	return nil
}

// deviceCodebook uploads the codebook as fp16, converting from the staged
// float32 entries when the host tensor is not already fp16.
func (o *Ops) deviceCodebook(cb *kernels.Codebook) (native.DeviceBuffer, error) {
	if buf, ok := o.codebooks[cb]; ok {
		return buf, nil
	}

	var bits []uint16
	if cb.DType == tensor.F16 {
		bits = cb.RawBits()
	} else {
		f32 := cb.Float32s()
		bits = make([]uint16, len(f32))
		for i, v := range f32 {
			bits[i] = tensor.EncodeFloat(tensor.F16, v)
		}
	}
	if len(bits) == 0 {
		return native.DeviceBuffer{}, fmt.Errorf("empty codebook")
	}

	bytes := int64(len(bits)) * 2
	dev, err := native.AllocDevice(bytes)
	if err != nil {
		return native.DeviceBuffer{}, err
	}
	if err := native.MemcpyH2D(dev, unsafe.Pointer(&bits[0]), bytes); err != nil {
		_ = dev.Free()
		return native.DeviceBuffer{}, err
	}
	o.codebooks[cb] = dev
	runtime.KeepAlive(bits)
	return dev, nil
}

func (o *Ops) deviceCodes(codes []uint16) (native.DeviceBuffer, error) {
	if len(codes) == 0 {
		return native.DeviceBuffer{}, fmt.Errorf("empty codes")
	}
	key := unsafe.Pointer(&codes[0])
	if buf, ok := o.codes[key]; ok {
		return buf, nil
	}

	bytes := int64(len(codes)) * 2
	dev, err := native.AllocDevice(bytes)
	if err != nil {
		return native.DeviceBuffer{}, err
	}
	if err := native.MemcpyH2D(dev, key, bytes); err != nil {
		_ = dev.Free()
		return native.DeviceBuffer{}, err
	}
	o.codes[key] = dev
	runtime.KeepAlive(codes)
	return dev, nil
}

func (o *Ops) ensureHostVecs(xBytes, yBytes int) error {
	if xBytes > o.xCapBytes {
		if err := o.xHost.Free(); err != nil {
			return err
		}
		buf, err := native.AllocHostPinned(int64(xBytes))
		if err != nil {
			return err
		}
		o.xHost = buf
		o.xCapBytes = xBytes
	}
	if yBytes > o.yCapBytes {
		if err := o.yHost.Free(); err != nil {
			return err
		}
		buf, err := native.AllocHostPinned(int64(yBytes))
		if err != nil {
			return err
		}
		o.yHost = buf
		o.yCapBytes = yBytes
	}
	return nil
}

func (o *Ops) ensureDeviceVecs(xBytes, yBytes int) error {
	if xBytes > o.xDevBytes {
		if err := o.xDev.Free(); err != nil {
			return err
		}
		buf, err := native.AllocDevice(int64(xBytes))
		if err != nil {
			return err
		}
		o.xDev = buf
		o.xDevBytes = xBytes
	}
	if yBytes > o.yDevBytes {
		if err := o.yDev.Free(); err != nil {
			return err
		}
		buf, err := native.AllocDevice(int64(yBytes))
		if err != nil {
			return err
		}
		o.yDev = buf
		o.yDevBytes = yBytes
	}
	return nil
}
