package secmodule

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultEntropyBytes is the number of bytes pulled from the gateway and
// pushed into the host kernel's entropy pool at startup.
const DefaultEntropyBytes = 1024

// randPoolInfo mirrors the kernel's struct rand_pool_info:
//
//	struct rand_pool_info {
//	    int entropy_count;
//	    int buf_size;
//	    __u32 buf[0];
//	};
//
// RNDADDENTROPY's payload is this header immediately followed by buf_size
// bytes of entropy.
const rndAddEntropy = 0x40085203

// SeedEntropy pulls n bytes from gw in gateway-sized chunks and feeds each
// chunk into /dev/random via RNDADDENTROPY, declaring full entropy credit
// (8 bits per byte) since the enclave's RNG is trusted. Runs once, at
// acceptor startup, before any keygen.
func SeedEntropy(gw Gateway, n int) error {
	f, err := os.OpenFile("/dev/random", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("secmodule: open /dev/random: %w", err)
	}
	defer f.Close()

	remaining := n
	for remaining > 0 {
		chunk, err := gw.Random()
		if err != nil {
			return fmt.Errorf("secmodule: read entropy chunk: %w", err)
		}
		if len(chunk) == 0 {
			return fmt.Errorf("secmodule: driver returned empty entropy chunk")
		}
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		if err := addEntropy(int(f.Fd()), chunk); err != nil {
			// The ioctl takes the whole chunk or fails; a failure is
			// returned to the caller without retrying.
			return fmt.Errorf("secmodule: RNDADDENTROPY: %w", err)
		}
		remaining -= len(chunk)
	}
	return nil
}

func addEntropy(fd int, buf []byte) error {
	type randPoolInfo struct {
		entropyCount int32
		bufSize      int32
	}
	header := randPoolInfo{
		entropyCount: int32(len(buf) * 8),
		bufSize:      int32(len(buf)),
	}

	payload := make([]byte, unsafe.Sizeof(header)+uintptr(len(buf)))
	*(*randPoolInfo)(unsafe.Pointer(&payload[0])) = header
	copy(payload[unsafe.Sizeof(header):], buf)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(rndAddEntropy), uintptr(unsafe.Pointer(&payload[0])))
	if errno != 0 {
		return errno
	}
	return nil
}
