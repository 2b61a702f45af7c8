package wasi

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/enclavevm/enclave"
	"github.com/enclavevm/enclave/policy"
)

// iovecSize is the wire size of one {pointer, length} pair: a 4-byte
// pointer into guest memory followed by a 4-byte length.
const iovecSize = 8

// Host bridges guest memory offsets to host resources. Every call is
// policy-checked before any resource is touched; results are reported
// through the Errno enumeration.
type Host struct {
	ctx    *Context
	policy *policy.Policy
}

// NewHost binds a Context and a Policy. A nil policy denies every gated
// capability.
func NewHost(ctx *Context, p *policy.Policy) *Host {
	if ctx == nil {
		ctx = NewContext()
	}
	if p == nil {
		p = &policy.Policy{}
	}
	return &Host{ctx: ctx, policy: p}
}

// ArgsSizesGet writes the argument count at argcPtr and the total byte
// length of all arguments, NUL terminators included, at bufSizePtr.
func (h *Host) ArgsSizesGet(mem enclave.Memory, argcPtr, bufSizePtr uint32) Errno {
	return h.stringSizes(mem, h.ctx.args, argcPtr, bufSizePtr)
}

// ArgsGet writes a pointer table at listPtr and the packed NUL-terminated
// argument strings at bufPtr.
func (h *Host) ArgsGet(mem enclave.Memory, listPtr, bufPtr uint32) Errno {
	return h.stringData(mem, h.ctx.args, listPtr, bufPtr)
}

// EnvironSizesGet is ArgsSizesGet for the environment, gated by the env
// capability.
func (h *Host) EnvironSizesGet(mem enclave.Memory, countPtr, bufSizePtr uint32) Errno {
	if err := h.policy.CheckEnv(); err != nil {
		Logger().Warn("environ_sizes_get denied", zap.Error(err))
		return ErrnoAcces
	}
	return h.stringSizes(mem, h.ctx.environList(), countPtr, bufSizePtr)
}

// EnvironGet is ArgsGet for the environment ("KEY=VALUE" entries), gated by
// the env capability.
func (h *Host) EnvironGet(mem enclave.Memory, listPtr, bufPtr uint32) Errno {
	if err := h.policy.CheckEnv(); err != nil {
		Logger().Warn("environ_get denied", zap.Error(err))
		return ErrnoAcces
	}
	return h.stringData(mem, h.ctx.environList(), listPtr, bufPtr)
}

func (h *Host) stringSizes(mem enclave.Memory, list []string, countPtr, bufSizePtr uint32) Errno {
	var total uint32
	for _, s := range list {
		total += uint32(len(s)) + 1
	}
	if err := mem.WriteU32(countPtr, uint32(len(list))); err != nil {
		return ErrnoInval
	}
	if err := mem.WriteU32(bufSizePtr, total); err != nil {
		return ErrnoInval
	}
	return ErrnoSuccess
}

func (h *Host) stringData(mem enclave.Memory, list []string, listPtr, bufPtr uint32) Errno {
	for i, s := range list {
		if err := mem.WriteU32(listPtr+uint32(i)*4, bufPtr); err != nil {
			return ErrnoInval
		}
		if err := mem.Write(bufPtr, append([]byte(s), 0)); err != nil {
			return ErrnoInval
		}
		bufPtr += uint32(len(s)) + 1
	}
	return ErrnoSuccess
}

// FdWrite copies the guest memory regions described by the iovec array to
// the stream behind fd (1 = stdout, 2 = stderr) and writes the total byte
// count at resultPtr.
func (h *Host) FdWrite(mem enclave.Memory, fd, iovsPtr, iovsLen, resultPtr uint32) Errno {
	var w io.Writer
	switch fd {
	case 1:
		w = h.ctx.stdout
	case 2:
		w = h.ctx.stderr
	default:
		return ErrnoBadf
	}

	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		ptr, length, errno := readIovec(mem, iovsPtr+i*iovecSize)
		if errno != ErrnoSuccess {
			return errno
		}
		data, err := mem.Read(ptr, length)
		if err != nil {
			return ErrnoInval
		}
		n, err := w.Write(data)
		total += uint32(n)
		if err != nil {
			return ErrnoIO
		}
	}

	if err := mem.WriteU32(resultPtr, total); err != nil {
		return ErrnoInval
	}
	Logger().Debug("fd_write", zap.Uint32("fd", fd), zap.Uint32("bytes", total))
	return ErrnoSuccess
}

// FdRead fills the guest memory regions described by the iovec array from
// the stream behind fd (0 = stdin) and writes the total byte count at
// resultPtr.
func (h *Host) FdRead(mem enclave.Memory, fd, iovsPtr, iovsLen, resultPtr uint32) Errno {
	if fd != 0 {
		return ErrnoBadf
	}

	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		ptr, length, errno := readIovec(mem, iovsPtr+i*iovecSize)
		if errno != ErrnoSuccess {
			return errno
		}
		buf := make([]byte, length)
		n, err := h.ctx.stdin.Read(buf)
		if n > 0 {
			if werr := mem.Write(ptr, buf[:n]); werr != nil {
				return ErrnoInval
			}
			total += uint32(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ErrnoIO
		}
	}

	if err := mem.WriteU32(resultPtr, total); err != nil {
		return ErrnoInval
	}
	Logger().Debug("fd_read", zap.Uint32("fd", fd), zap.Uint32("bytes", total))
	return ErrnoSuccess
}

// FdPrestatGet writes a prestat record for a preopened directory: a
// one-byte directory tag followed at offset 4 by the path length.
func (h *Host) FdPrestatGet(mem enclave.Memory, fd, bufPtr uint32) Errno {
	pre, errno := h.preopen(fd)
	if errno != ErrnoSuccess {
		return errno
	}
	if err := mem.WriteU8(bufPtr, 0); err != nil {
		return ErrnoInval
	}
	if err := mem.WriteU32(bufPtr+4, uint32(len(pre.Path))); err != nil {
		return ErrnoInval
	}
	return ErrnoSuccess
}

// FdPrestatDirName writes a preopened directory's path into guest memory.
func (h *Host) FdPrestatDirName(mem enclave.Memory, fd, pathPtr, pathLen uint32) Errno {
	pre, errno := h.preopen(fd)
	if errno != ErrnoSuccess {
		return errno
	}
	if uint32(len(pre.Path)) > pathLen {
		return ErrnoInval
	}
	if err := mem.Write(pathPtr, []byte(pre.Path)); err != nil {
		return ErrnoInval
	}
	return ErrnoSuccess
}

func (h *Host) preopen(fd uint32) (Preopen, Errno) {
	if fd < firstPreopenFD || fd >= firstPreopenFD+uint32(len(h.ctx.preopens)) {
		return Preopen{}, ErrnoBadf
	}
	return h.ctx.preopens[fd-firstPreopenFD], ErrnoSuccess
}

// ProcExit is the hard termination signal. It always returns an *ExitError
// so the failure propagates out of the running call.
func (h *Host) ProcExit(code int32) error {
	Logger().Debug("proc_exit", zap.Int32("code", code))
	return &ExitError{Code: code}
}

func readIovec(mem enclave.Memory, iovPtr uint32) (ptr, length uint32, errno Errno) {
	ptr, err := mem.ReadU32(iovPtr)
	if err != nil {
		return 0, 0, ErrnoInval
	}
	length, err = mem.ReadU32(iovPtr + 4)
	if err != nil {
		return 0, 0, ErrnoInval
	}
	return ptr, length, ErrnoSuccess
}
