//go:build linux

package session

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ngrantham/go-binder/internal/abi"
	"github.com/ngrantham/go-binder/internal/logging"
)

// linuxDevice is the real Device implementation: it opens a binder
// character device, negotiates BINDER_VERSION, mmaps the receive arena,
// and issues BINDER_WRITE_READ for every transport round trip.
type linuxDevice struct {
	fd     int
	desc   *abi.Descriptor
	arena  []byte
	logger *logging.Logger
}

// openPlatform opens path (typically /dev/binder, /dev/hwbinder or /dev/vndbinder),
// negotiates the kernel protocol version against desc, and mmaps the
// receive arena. Construction fails if the kernel's reported version
// doesn't match desc.KernelVersion: this library does not attempt to
// speak a mismatched binder protocol.
func openPlatform(path string, desc *abi.Descriptor) (Device, error) {
	logger := logging.Default()

	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}

	d := &linuxDevice{fd: fd, desc: desc, logger: logger}

	if err := d.checkVersion(); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	arena, err := unix.Mmap(fd, 0, ArenaSize, unix.PROT_READ, unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("session: mmap %s: %w", path, err)
	}
	d.arena = arena

	logger.Debug("binder device opened", "path", path, "ptr_size", desc.PtrSize, "arena_bytes", ArenaSize)
	return d, nil
}

func (d *linuxDevice) checkVersion() error {
	var version int32
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), uintptr(d.desc.IoctlVersion), uintptr(unsafe.Pointer(&version)))
	if errno != 0 {
		return fmt.Errorf("session: BINDER_VERSION: %w", errno)
	}
	if version != d.desc.KernelVersion {
		return fmt.Errorf("session: kernel protocol version %d, want %d", version, d.desc.KernelVersion)
	}
	return nil
}

func (d *linuxDevice) Descriptor() *abi.Descriptor {
	return d.desc
}

// WriteRead issues BINDER_WRITE_READ with a local buffer laid out as
// struct binder_write_read, sized to d.desc's pointer width; the field
// layout matches the kernel's for both ABIs
// because binder_size_t and binder_uintptr_t are both just "the native
// word" on each.
func (d *linuxDevice) WriteRead(write []byte, read []byte, nonBlocking bool) (int, int, error) {
	if err := unix.SetNonblock(d.fd, nonBlocking); err != nil {
		return 0, 0, fmt.Errorf("session: set nonblocking=%v: %w", nonBlocking, err)
	}

	ptrSize := d.desc.PtrSize
	buf := make([]byte, 6*ptrSize)

	putWord := func(off int, v uint64) {
		if ptrSize == 8 {
			*(*uint64)(unsafe.Pointer(&buf[off])) = v
		} else {
			*(*uint32)(unsafe.Pointer(&buf[off])) = uint32(v)
		}
	}

	writeSize := uint64(len(write))
	readSize := uint64(len(read))

	putWord(0*ptrSize, writeSize)
	putWord(1*ptrSize, 0) // write_consumed
	if len(write) > 0 {
		putWord(2*ptrSize, uint64(uintptr(unsafe.Pointer(&write[0]))))
	}
	putWord(3*ptrSize, readSize)
	putWord(4*ptrSize, 0) // read_consumed
	if len(read) > 0 {
		putWord(5*ptrSize, uint64(uintptr(unsafe.Pointer(&read[0]))))
	}

	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), uintptr(d.desc.IoctlWriteRead), uintptr(unsafe.Pointer(&buf[0])))

	getWord := func(off int) uint64 {
		if ptrSize == 8 {
			return *(*uint64)(unsafe.Pointer(&buf[off]))
		}
		return uint64(*(*uint32)(unsafe.Pointer(&buf[off])))
	}
	writeConsumed := getWord(1 * ptrSize)
	readConsumed := getWord(4 * ptrSize)

	if errno != 0 {
		if errno == syscall.EAGAIN || errno == syscall.EINTR {
			return int(writeConsumed), int(readConsumed), errno
		}
		return int(writeConsumed), int(readConsumed), fmt.Errorf("session: BINDER_WRITE_READ: %w", errno)
	}

	return int(writeConsumed), int(readConsumed), nil
}

func (d *linuxDevice) SetMaxThreads(max uint32) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), uintptr(d.desc.IoctlSetMaxThreads), uintptr(unsafe.Pointer(&max)))
	if errno != 0 {
		return fmt.Errorf("session: BINDER_SET_MAX_THREADS: %w", errno)
	}
	return nil
}

func (d *linuxDevice) Arena() []byte {
	return d.arena
}

// Poll implements Device.Poll with unix.Poll. EINTR retries the call
// rather than surfacing it: a signal landing mid-poll is not a caller-
// visible condition here, only a reason to wait again. Each retry waits
// the full timeoutMs again; time already spent is not subtracted.
func (d *linuxDevice) Poll(signalFD int, timeoutMs int) (int16, error) {
	const events = unix.POLLIN | unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: events}}
	if signalFD >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(signalFD), Events: events})
	}

	for {
		_, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("session: poll: %w", err)
		}
		return fds[0].Revents, nil
	}
}

func (d *linuxDevice) Fd() int {
	return d.fd
}

func (d *linuxDevice) Close() error {
	if d.arena != nil {
		if err := unix.Munmap(d.arena); err != nil {
			d.logger.Warn("munmap failed", "error", err)
		}
		d.arena = nil
	}
	return syscall.Close(d.fd)
}
