//go:build cuda

package native

/*
#cgo LDFLAGS: -L${SRCDIR} -laqlmgemv -lcudart

// Minimal CUDA runtime forward declarations to avoid requiring headers at
// compile time. Linker still requires libcudart when building with the cuda
// tag, plus libaqlmgemv.a built by the Makefile in this directory.
typedef void* cudaStream_t;
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMemcpy(void* dst, const void* src, unsigned long long size, int kind);
extern cudaError_t cudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream);
extern cudaError_t cudaMallocHost(void** ptr, unsigned long long size);
extern cudaError_t cudaFreeHost(void* ptr);

#define AQLM_CUDA_MEMCPY_HOST_TO_DEVICE 1
#define AQLM_CUDA_MEMCPY_DEVICE_TO_HOST 2

// Kernel launchers, implemented in aqlm_gemv.cu (extern "C"). Buffers hold
// fp16 elements except codes (uint16).
extern cudaError_t aqlm_code1x16_matvec(
	const void* codes,
	const void* input,
	void* output,
	const void* codebook,
	int prob_m,
	int prob_k,
	cudaStream_t stream);

extern cudaError_t aqlm_code2x8_matvec(
	const void* codes,
	const void* input,
	void* output,
	const void* codebook,
	int prob_m,
	int prob_k,
	cudaStream_t stream);

static const char* aqlmCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int aqlmCudaGetDeviceCount(int* out) {
	cudaError_t err = cudaGetDeviceCount(out);
	return (int)err;
}

static int aqlmCudaStreamCreate(cudaStream_t* out) {
	cudaError_t err = cudaStreamCreate(out);
	return (int)err;
}

static int aqlmCudaStreamDestroy(cudaStream_t stream) {
	cudaError_t err = cudaStreamDestroy(stream);
	return (int)err;
}

static int aqlmCudaStreamSynchronize(cudaStream_t stream) {
	cudaError_t err = cudaStreamSynchronize(stream);
	return (int)err;
}

static int aqlmCudaMalloc(void** ptr, unsigned long long size) {
	cudaError_t err = cudaMalloc(ptr, size);
	return (int)err;
}

static int aqlmCudaFree(void* ptr) {
	cudaError_t err = cudaFree(ptr);
	return (int)err;
}

static int aqlmCudaMemcpy(void* dst, const void* src, unsigned long long size, int kind) {
	cudaError_t err = cudaMemcpy(dst, src, size, kind);
	return (int)err;
}

static int aqlmCudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream) {
	cudaError_t err = cudaMemcpyAsync(dst, src, size, kind, stream);
	return (int)err;
}

static int aqlmCudaMallocHost(void** ptr, unsigned long long size) {
	cudaError_t err = cudaMallocHost(ptr, size);
	return (int)err;
}

static int aqlmCudaFreeHost(void* ptr) {
	cudaError_t err = cudaFreeHost(ptr);
	return (int)err;
}

static int aqlmCode1x16MatVec(const void* codes, const void* input, void* output, const void* codebook, int prob_m, int prob_k, cudaStream_t stream) {
	cudaError_t err = aqlm_code1x16_matvec(codes, input, output, codebook, prob_m, prob_k, stream);
	return (int)err;
}

static int aqlmCode2x8MatVec(const void* codes, const void* input, void* output, const void* codebook, int prob_m, int prob_k, cudaStream_t stream) {
	cudaError_t err = aqlm_code2x8_matvec(codes, input, output, codebook, prob_m, prob_k, stream);
	return (int)err;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type Stream struct {
	ptr C.cudaStream_t
}

type DeviceBuffer struct {
	ptr unsafe.Pointer
}

type HostBuffer struct {
	ptr unsafe.Pointer
}

func DeviceCount() (int, error) {
	var count C.int
	if err := cudaErr(C.aqlmCudaGetDeviceCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func NewStream() (Stream, error) {
	var stream C.cudaStream_t
	if err := cudaErr(C.aqlmCudaStreamCreate(&stream)); err != nil {
		return Stream{}, err
	}
	return Stream{ptr: stream}, nil
}

func (s Stream) Destroy() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.aqlmCudaStreamDestroy(s.ptr))
}

func (s Stream) Synchronize() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.aqlmCudaStreamSynchronize(s.ptr))
}

func AllocDevice(bytes int64) (DeviceBuffer, error) {
	if bytes <= 0 {
		return DeviceBuffer{}, fmt.Errorf("device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.aqlmCudaMalloc((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return DeviceBuffer{}, err
	}
	return DeviceBuffer{ptr: ptr}, nil
}

func (b DeviceBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.aqlmCudaFree(b.ptr))
}

func (b DeviceBuffer) Ptr() unsafe.Pointer {
	return b.ptr
}

func AllocHostPinned(bytes int64) (HostBuffer, error) {
	if bytes <= 0 {
		return HostBuffer{}, fmt.Errorf("host alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.aqlmCudaMallocHost((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return HostBuffer{}, err
	}
	return HostBuffer{ptr: ptr}, nil
}

func (b HostBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.aqlmCudaFreeHost(b.ptr))
}

func (b HostBuffer) Ptr() unsafe.Pointer {
	return b.ptr
}

func MemcpyH2DAsync(dst DeviceBuffer, src unsafe.Pointer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.aqlmCudaMemcpyAsync(dst.ptr, src, C.ulonglong(bytes), C.AQLM_CUDA_MEMCPY_HOST_TO_DEVICE, stream.ptr))
}

func MemcpyD2HAsync(dst unsafe.Pointer, src DeviceBuffer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.aqlmCudaMemcpyAsync(dst, src.ptr, C.ulonglong(bytes), C.AQLM_CUDA_MEMCPY_DEVICE_TO_HOST, stream.ptr))
}

func MemcpyH2D(dst DeviceBuffer, src unsafe.Pointer, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.aqlmCudaMemcpy(dst.ptr, src, C.ulonglong(bytes), C.AQLM_CUDA_MEMCPY_HOST_TO_DEVICE))
}

func MemcpyD2H(dst unsafe.Pointer, src DeviceBuffer, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.aqlmCudaMemcpy(dst, src.ptr, C.ulonglong(bytes), C.AQLM_CUDA_MEMCPY_DEVICE_TO_HOST))
}

// Code1x16MatVec launches the 1x16 matvec kernel on stream. Buffers hold
// fp16 elements; codes is prob_m * prob_k/8 uint16 indices.
func Code1x16MatVec(codes, input, output, codebook DeviceBuffer, probM, probK int, stream Stream) error {
	return cudaErr(C.aqlmCode1x16MatVec(codes.ptr, input.ptr, output.ptr, codebook.ptr, C.int(probM), C.int(probK), stream.ptr))
}

// Code2x8MatVec launches the 2x8 matvec kernel on stream.
func Code2x8MatVec(codes, input, output, codebook DeviceBuffer, probM, probK int, stream Stream) error {
	return cudaErr(C.aqlmCode2x8MatVec(codes.ptr, input.ptr, output.ptr, codebook.ptr, C.int(probM), C.int(probK), stream.ptr))
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.aqlmCudaGetErrorString(C.cudaError_t(code)))
	return fmt.Errorf("cuda runtime error %d: %s", int(code), msg)
}
