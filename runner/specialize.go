package runner

import (
	"encoding/binary"
	"fmt"
)

// SPIR-V constants used when patching specialization constants.
const (
	spirvMagic       = 0x07230203
	spirvHeaderWords = 5

	opSpecConstantTrue  = 48
	opSpecConstantFalse = 49
	opSpecConstant      = 50
	opDecorate          = 71

	decorationSpecID = 1
)

// SpecializeSPIRV returns a copy of module with the default value of every
// specialization constant listed in values replaced. values maps a SpecId to
// the literal words of the new value. Constants the module does not declare
// are ignored.
func SpecializeSPIRV(module []byte, values map[uint32][]uint32) ([]byte, error) {
	if len(module)%4 != 0 {
		return nil, fmt.Errorf("spirv: length %d is not a multiple of 4", len(module))
	}
	words := make([]uint32, len(module)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(module[4*i:])
	}
	if len(words) < spirvHeaderWords || words[0] != spirvMagic {
		return nil, fmt.Errorf("spirv: invalid header")
	}

	// first pass: result id -> spec id
	specIDs := make(map[uint32]uint32)
	if err := walkInstructions(words, func(_ int, op uint32, operands []uint32) error {
		if op == opDecorate && len(operands) >= 3 && operands[1] == decorationSpecID {
			specIDs[operands[0]] = operands[2]
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// second pass: patch defaults in place
	err := walkInstructions(words, func(at int, op uint32, operands []uint32) error {
		switch op {
		case opSpecConstant:
			if len(operands) < 3 {
				return fmt.Errorf("spirv: truncated OpSpecConstant")
			}
			id, ok := specIDs[operands[1]]
			if !ok {
				return nil
			}
			value, ok := values[id]
			if !ok {
				return nil
			}
			literal := operands[2:]
			if len(literal) != len(value) {
				return fmt.Errorf("spirv: spec constant %d has %d literal words, got %d", id, len(literal), len(value))
			}
			copy(words[at+3:], value)
		case opSpecConstantTrue, opSpecConstantFalse:
			if len(operands) < 2 {
				return fmt.Errorf("spirv: truncated boolean spec constant")
			}
			id, ok := specIDs[operands[1]]
			if !ok {
				return nil
			}
			if value, ok := values[id]; ok && len(value) == 1 {
				newOp := uint32(opSpecConstantFalse)
				if value[0] != 0 {
					newOp = opSpecConstantTrue
				}
				words[at] = words[at]&0xffff0000 | newOp
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(module))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out, nil
}

// walkInstructions calls visit with the word index, opcode and operands of
// every instruction after the header.
func walkInstructions(words []uint32, visit func(at int, op uint32, operands []uint32) error) error {
	for i := spirvHeaderWords; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			return fmt.Errorf("spirv: malformed instruction at word %d", i)
		}
		if err := visit(i, op, words[i+1:i+count]); err != nil {
			return err
		}
		i += count
	}
	return nil
}
