package engine

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/enclavevm/enclave/errors"
	"github.com/enclavevm/enclave/policy"
)

const (
	// PageSize is the size of one linear memory page in bytes (64KiB),
	// matching the guest-visible addressing granularity.
	PageSize = 65536

	// absoluteMaxPages caps memory at 4GiB regardless of configuration.
	absoluteMaxPages = uint32(1 << 16)
)

// Memory is a growable, bounds-checked linear byte buffer addressed in
// fixed-size pages. Its length is always an exact multiple of PageSize.
// A Memory is owned exclusively by its Instance and destroyed with it.
//
// Multi-byte integer accessors use little-endian byte order, matching the
// guest-visible encoding and the bridge ABI.
type Memory struct {
	data     []byte
	minPages uint32
	maxPages uint32 // absoluteMaxPages when no explicit maximum was set
	policy   *policy.Policy
}

// NewMemory allocates a zero-filled memory of minPages pages. maxPages of 0
// means no explicit maximum beyond the 4GiB hard cap.
func NewMemory(minPages, maxPages uint32) (*Memory, error) {
	if maxPages == 0 {
		maxPages = absoluteMaxPages
	}
	if minPages > maxPages {
		return nil, errors.InvalidInput(errors.PhaseInstantiate,
			"memory min pages exceeds max pages")
	}
	return &Memory{
		data:     make([]byte, uint64(minPages)*PageSize),
		minPages: minPages,
		maxPages: maxPages,
	}, nil
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return uint32(uint64(len(m.data)) / PageSize)
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// MaxPages returns the configured page ceiling.
func (m *Memory) MaxPages() uint32 { return m.maxPages }

// Grow extends the memory by the given number of zero-filled pages and
// returns the previous page count. Growth beyond the configured maximum, or
// past the attached policy's memory ceiling, fails without mutating state.
func (m *Memory) Grow(pages uint32) (uint32, error) {
	current := m.Pages()
	if uint64(current)+uint64(pages) > uint64(m.maxPages) {
		return 0, errors.New(errors.PhaseMemory, errors.KindMemoryGrowFailed).
			Detail("grow by %d pages exceeds maximum of %d (current %d)", pages, m.maxPages, current).
			Build()
	}
	newSize := (uint64(current) + uint64(pages)) * PageSize
	if m.policy != nil {
		if err := m.policy.CheckMemory(newSize); err != nil {
			Logger().Warn("memory growth denied by policy",
				zap.Uint32("pages", pages),
				zap.Uint64("requested_bytes", newSize))
			return 0, err
		}
	}
	m.data = append(m.data, make([]byte, uint64(pages)*PageSize)...)
	return current, nil
}

// Read returns a copy of length bytes starting at offset.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	if err := m.check(offset, uint64(length)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:])
	return out, nil
}

// Bytes returns a view of length bytes starting at offset. The view aliases
// the underlying buffer and is invalidated by Grow.
func (m *Memory) Bytes(offset, length uint32) ([]byte, error) {
	if err := m.check(offset, uint64(length)); err != nil {
		return nil, err
	}
	return m.data[offset : uint64(offset)+uint64(length)], nil
}

// Write copies data into memory starting at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint64(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// check validates that length bytes at offset fall within the current
// memory size. The addition is widened to uint64 so it cannot wrap.
func (m *Memory) check(offset uint32, length uint64) error {
	if uint64(offset)+length > uint64(len(m.data)) {
		return errors.OutOfBounds(errors.PhaseMemory, uint64(offset), length, uint64(len(m.data)))
	}
	return nil
}
