package insts

// encoding identifies an instruction encoding format, which determines the
// immediate extractor and which register operands are present.
type encoding uint8

const (
	encR encoding = iota
	encI
	encS
	encB
	encU
	encJ
)

// rule is one decode table entry. A raw instruction word matches when
// (instr ^ pattern) & mask == 0; rules are tried in order and the first
// match wins.
type rule struct {
	pattern  uint32
	mask     uint32
	enc      encoding
	dispatch Dispatch
}

const (
	maskOpcode = 0b00000000000000000000000001111111
	maskFunct3 = 0b00000000000000000111000001111111
	maskShift  = 0b11111100000000000111000001111111
	maskShiftW = 0b11111110000000000111000001111111
	maskFunct7 = 0b11111110000000000111000001111111
	maskExact  = 0b11111111111111111111111111111111
)

var decodeTable = []rule{
	// U-type.
	{0b00000000000000000000000000110111, maskOpcode, encU, OpLui},
	{0b00000000000000000000000000010111, maskOpcode, encU, OpAuipc},

	// J-type.
	{0b00000000000000000000000001101111, maskOpcode, encJ, OpJal},

	// I-type (jalr).
	{0b00000000000000000000000001100111, maskFunct3, encI, OpJalr},

	// B-type.
	{0b00000000000000000000000001100011, maskFunct3, encB, OpBeq},
	{0b00000000000000000001000001100011, maskFunct3, encB, OpBne},
	{0b00000000000000000100000001100011, maskFunct3, encB, OpBlt},
	{0b00000000000000000101000001100011, maskFunct3, encB, OpBge},
	{0b00000000000000000110000001100011, maskFunct3, encB, OpBltu},
	{0b00000000000000000111000001100011, maskFunct3, encB, OpBgeu},

	// Loads (I-type).
	{0b00000000000000000000000000000011, maskFunct3, encI, OpLb},
	{0b00000000000000000001000000000011, maskFunct3, encI, OpLh},
	{0b00000000000000000010000000000011, maskFunct3, encI, OpLw},
	{0b00000000000000000100000000000011, maskFunct3, encI, OpLbu},
	{0b00000000000000000101000000000011, maskFunct3, encI, OpLhu},

	// Stores (S-type).
	{0b00000000000000000000000000100011, maskFunct3, encS, OpSb},
	{0b00000000000000000001000000100011, maskFunct3, encS, OpSh},
	{0b00000000000000000010000000100011, maskFunct3, encS, OpSw},

	// I-type ALU.
	{0b00000000000000000000000000010011, maskFunct3, encI, OpAddi},
	{0b00000000000000000010000000010011, maskFunct3, encI, OpSlti},
	{0b00000000000000000011000000010011, maskFunct3, encI, OpSltiu},
	{0b00000000000000000100000000010011, maskFunct3, encI, OpXori},
	{0b00000000000000000110000000010011, maskFunct3, encI, OpOri},
	{0b00000000000000000111000000010011, maskFunct3, encI, OpAndi},
	{0b00000000000000000001000000010011, maskShift, encI, OpSlli},
	{0b00000000000000000101000000010011, maskShift, encI, OpSrli},
	{0b01000000000000000101000000010011, maskShift, encI, OpSrai},

	// R-type.
	{0b00000000000000000000000000110011, maskFunct7, encR, OpAdd},
	{0b01000000000000000000000000110011, maskFunct7, encR, OpSub},
	{0b00000000000000000001000000110011, maskFunct7, encR, OpSll},
	{0b00000000000000000010000000110011, maskFunct7, encR, OpSlt},
	{0b00000000000000000011000000110011, maskFunct7, encR, OpSltu},
	{0b00000000000000000100000000110011, maskFunct7, encR, OpXor},
	{0b00000000000000000101000000110011, maskFunct7, encR, OpSrl},
	{0b01000000000000000101000000110011, maskFunct7, encR, OpSra},
	{0b00000000000000000110000000110011, maskFunct7, encR, OpOr},
	{0b00000000000000000111000000110011, maskFunct7, encR, OpAnd},

	// M extension.
	{0b00000010000000000000000000110011, maskFunct7, encR, OpMul},
	{0b00000010000000000001000000110011, maskFunct7, encR, OpMulh},
	{0b00000010000000000010000000110011, maskFunct7, encR, OpMulhsu},
	{0b00000010000000000011000000110011, maskFunct7, encR, OpMulhu},
	{0b00000010000000000100000000110011, maskFunct7, encR, OpDiv},
	{0b00000010000000000101000000110011, maskFunct7, encR, OpDivu},
	{0b00000010000000000110000000110011, maskFunct7, encR, OpRem},
	{0b00000010000000000111000000110011, maskFunct7, encR, OpRemu},

	// System.
	{0b00000000000000000000000001110011, maskExact, encR, OpEcall},
	{0b00000000000100000000000001110011, maskExact, encR, OpEbreak},
	{0b00110000001000000000000001110011, maskExact, encR, OpMret},
	{0b00010000001000000000000001110011, maskExact, encR, OpSret},

	// CSR operations.
	{0b00000000000000000001000001110011, maskFunct3, encI, OpCsrrw},
	{0b00000000000000000010000001110011, maskFunct3, encI, OpCsrrs},
	{0b00000000000000000011000001110011, maskFunct3, encI, OpCsrrc},
	{0b00000000000000000101000001110011, maskFunct3, encI, OpCsrrwi},
	{0b00000000000000000110000001110011, maskFunct3, encI, OpCsrrsi},
	{0b00000000000000000111000001110011, maskFunct3, encI, OpCsrrci},

	// RV64 additions. These decode on both widths; a 32-bit core rejects
	// them at execute.
	{0b00000000000000000110000000000011, maskFunct3, encI, OpLwu},
	{0b00000000000000000011000000000011, maskFunct3, encI, OpLd},
	{0b00000000000000000011000000100011, maskFunct3, encS, OpSd},
	{0b00000000000000000000000000011011, maskFunct3, encI, OpAddiw},
	{0b00000000000000000001000000011011, maskShiftW, encI, OpSlliw},
	{0b00000000000000000101000000011011, maskShiftW, encI, OpSrliw},
	{0b01000000000000000101000000011011, maskShiftW, encI, OpSraiw},
	{0b00000000000000000000000000111011, maskFunct7, encR, OpAddw},
	{0b01000000000000000000000000111011, maskFunct7, encR, OpSubw},
	{0b00000000000000000001000000111011, maskFunct7, encR, OpSllw},
	{0b00000000000000000101000000111011, maskFunct7, encR, OpSrlw},
	{0b01000000000000000101000000111011, maskFunct7, encR, OpSraw},
	{0b00000010000000000000000000111011, maskFunct7, encR, OpMulw},
	{0b00000010000000000100000000111011, maskFunct7, encR, OpDivw},
	{0b00000010000000000101000000111011, maskFunct7, encR, OpDivuw},
	{0b00000010000000000110000000111011, maskFunct7, encR, OpRemw},
	{0b00000010000000000111000000111011, maskFunct7, encR, OpRemuw},
}

// DecodeInstr decodes a raw 32-bit instruction word. Words matching no
// rule decode to OpInvalid.
func DecodeInstr(instr uint32) Decode {
	for _, r := range decodeTable {
		if (instr^r.pattern)&r.mask == 0 {
			return Decode{
				Imm:      extractImm(instr, r.enc),
				Dispatch: r.dispatch,
				Rs1:      extractRs1(instr, r.enc),
				Rs2:      extractRs2(instr, r.enc),
				Rd:       extractRd(instr, r.enc),
			}
		}
	}
	return Decode{Dispatch: OpInvalid}
}

func extractImm(instr uint32, enc encoding) int32 {
	switch enc {
	case encI:
		return int32(instr) >> 20
	case encS:
		return int32(instr&0xfe000000)>>20 | int32(instr>>7&0x1f)
	case encB:
		return int32(instr&0x80000000)>>19 |
			int32(instr&0x80)<<4 |
			int32(instr>>20&0x7e0) |
			int32(instr>>7&0x1e)
	case encU:
		return int32(instr & 0xfffff000)
	case encJ:
		return int32(instr&0x80000000)>>11 |
			int32(instr&0xff000) |
			int32(instr>>9&0x800) |
			int32(instr>>20&0x7fe)
	default:
		return 0
	}
}

func extractRs1(instr uint32, enc encoding) uint8 {
	switch enc {
	case encU, encJ:
		return 0
	default:
		return uint8(instr >> 15 & 0x1f)
	}
}

func extractRs2(instr uint32, enc encoding) uint8 {
	switch enc {
	case encR, encS, encB:
		return uint8(instr >> 20 & 0x1f)
	default:
		return 0
	}
}

func extractRd(instr uint32, enc encoding) uint8 {
	switch enc {
	case encS, encB:
		return 0
	default:
		return uint8(instr >> 7 & 0x1f)
	}
}
