package engine

import "github.com/enclavevm/enclave/errors"

const (
	lebContinuationBit = 0x80
	lebPayloadMask     = 0x7F
	lebSignBit         = 0x40
)

// maxLEBBytes returns how many encoded bytes a width-bit integer may span:
// ceil(width / 7).
func maxLEBBytes(width uint) int {
	return int((width + 6) / 7)
}

// readUleb decodes an unsigned LEB128 integer of the given bit width from
// the frame's code buffer. It fails with KindUnexpectedEnd if the buffer is
// exhausted mid-encoding, and with KindInvalidLEB128 if the encoding spans
// more bytes than the width allows.
func (f *frame) readUleb(width uint) (uint64, error) {
	var result uint64
	var shift uint
	maxBytes := maxLEBBytes(width)

	for read := 0; ; read++ {
		b, err := f.readByte()
		if err != nil {
			return 0, err
		}
		if read >= maxBytes {
			return 0, errors.New(errors.PhaseExecute, errors.KindInvalidLEB128).
				Detail("u%d immediate spans more than %d bytes", width, maxBytes).
				Offset(f.pc).
				Build()
		}

		result |= uint64(b&lebPayloadMask) << shift
		if b&lebContinuationBit == 0 {
			return result, nil
		}
		shift += 7
	}
}

// readSleb decodes a signed LEB128 integer of the given bit width.
// The result is sign-extended from the final byte's sign bit.
func (f *frame) readSleb(width uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	maxBytes := maxLEBBytes(width)

	for read := 0; ; read++ {
		var err error
		b, err = f.readByte()
		if err != nil {
			return 0, err
		}
		if read >= maxBytes {
			return 0, errors.New(errors.PhaseExecute, errors.KindInvalidLEB128).
				Detail("s%d immediate spans more than %d bytes", width, maxBytes).
				Offset(f.pc).
				Build()
		}

		result |= int64(b&lebPayloadMask) << shift
		shift += 7
		if b&lebContinuationBit == 0 {
			break
		}
	}

	if shift < 64 && b&lebSignBit != 0 {
		result |= -1 << shift
	}
	return result, nil
}
