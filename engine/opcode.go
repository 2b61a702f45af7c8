package engine

// Opcode numbering follows the WebAssembly core binary format. Only the
// families below are implemented; any other opcode fails the call with an
// unimplemented-opcode error. In particular structured control flow
// (blocks, branches, calls) is deliberately unsupported.
const (
	opEnd    = 0x0B
	opReturn = 0x0F
	opDrop   = 0x1A

	opLocalGet = 0x20
	opLocalSet = 0x21
	opLocalTee = 0x22

	opI32Load  = 0x28
	opI64Load  = 0x29
	opF32Load  = 0x2A
	opF64Load  = 0x2B
	opI32Store = 0x36
	opI64Store = 0x37
	opF32Store = 0x38
	opF64Store = 0x39

	opI32Const = 0x41
	opI64Const = 0x42
	opF32Const = 0x43
	opF64Const = 0x44

	opI32Eqz = 0x45
	opI32Eq  = 0x46
	opI32Ne  = 0x47
	opI32LtS = 0x48
	opI32LtU = 0x49
	opI32GtS = 0x4A
	opI32GtU = 0x4B
	opI32LeS = 0x4C
	opI32LeU = 0x4D
	opI32GeS = 0x4E
	opI32GeU = 0x4F

	opI64Eqz = 0x50
	opI64Eq  = 0x51
	opI64Ne  = 0x52
	opI64LtS = 0x53
	opI64LtU = 0x54
	opI64GtS = 0x55
	opI64GtU = 0x56
	opI64LeS = 0x57
	opI64LeU = 0x58
	opI64GeS = 0x59
	opI64GeU = 0x5A

	opI32Add  = 0x6A
	opI32Sub  = 0x6B
	opI32Mul  = 0x6C
	opI32DivS = 0x6D
	opI32DivU = 0x6E
	opI32RemS = 0x6F
	opI32RemU = 0x70
	opI32And  = 0x71
	opI32Or   = 0x72
	opI32Xor  = 0x73
	opI32Shl  = 0x74
	opI32ShrS = 0x75
	opI32ShrU = 0x76
	opI32Rotl = 0x77
	opI32Rotr = 0x78

	opI64Add  = 0x7C
	opI64Sub  = 0x7D
	opI64Mul  = 0x7E
	opI64DivS = 0x7F
	opI64DivU = 0x80
	opI64RemS = 0x81
	opI64RemU = 0x82
	opI64And  = 0x83
	opI64Or   = 0x84
	opI64Xor  = 0x85
	opI64Shl  = 0x86
	opI64ShrS = 0x87
	opI64ShrU = 0x88
	opI64Rotl = 0x89
	opI64Rotr = 0x8A
)
