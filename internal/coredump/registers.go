package coredump

import "fmt"

// Register identifies one Cortex-M core register.
type Register int

// Registers in ELF prstatus order.
const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
	XPSR

	NumRegisters
)

var registerNames = [NumRegisters]string{
	"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "R12", "SP", "LR", "PC", "xPSR",
}

func (r Register) String() string {
	if r >= 0 && r < NumRegisters {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", int(r))
}

// Schema is the register layout of one architecture block version.
type Schema struct {
	Version uint16
	Order   []Register
}

// Size returns the register payload size in bytes.
func (s Schema) Size() int {
	return 4 * len(s.Order)
}

var (
	schemaV1 = Schema{
		Version: 1,
		Order:   []Register{R0, R1, R2, R3, R12, LR, PC, XPSR, SP},
	}
	schemaV2 = Schema{
		Version: 2,
		Order:   []Register{R0, R1, R2, R3, R12, LR, PC, XPSR, SP, R4, R5, R6, R7, R8, R9, R10, R11},
	}
)

// SchemaFor returns the layout for an architecture block version.
func SchemaFor(version uint16) (Schema, bool) {
	switch version {
	case 1:
		return schemaV1, true
	case 2:
		return schemaV2, true
	default:
		return Schema{}, false
	}
}

// RegisterValue pairs a register with its captured value.
type RegisterValue struct {
	Register Register
	Value    uint32
}

// RegisterSet holds the registers captured by one architecture block.
// Registers outside the block's schema are absent.
type RegisterSet struct {
	schema  Schema
	values  [NumRegisters]uint32
	present [NumRegisters]bool
}

// NewRegisterSet builds a set from values given in schema order.
func NewRegisterSet(version uint16, values ...uint32) (RegisterSet, error) {
	schema, ok := SchemaFor(version)
	if !ok {
		return RegisterSet{}, fmt.Errorf("%w: architecture block version %d", ErrUnsupportedVersion, version)
	}
	if len(values) != len(schema.Order) {
		return RegisterSet{}, fmt.Errorf("version %d schema has %d registers, got %d values",
			version, len(schema.Order), len(values))
	}

	rs := RegisterSet{schema: schema}
	for i, r := range schema.Order {
		rs.values[r] = values[i]
		rs.present[r] = true
	}
	return rs, nil
}

// Version returns the architecture block version the set was decoded from.
func (rs RegisterSet) Version() uint16 {
	return rs.schema.Version
}

// Get returns a register value and whether the schema captured it.
func (rs RegisterSet) Get(r Register) (uint32, bool) {
	if r < 0 || r >= NumRegisters || !rs.present[r] {
		return 0, false
	}
	return rs.values[r], true
}

// PC returns the program counter at the fault.
func (rs RegisterSet) PC() uint32 { return rs.values[PC] }

// LR returns the link register at the fault.
func (rs RegisterSet) LR() uint32 { return rs.values[LR] }

// SP returns the stack pointer at the fault.
func (rs RegisterSet) SP() uint32 { return rs.values[SP] }

// Values returns the captured registers in schema order.
func (rs RegisterSet) Values() []RegisterValue {
	out := make([]RegisterValue, 0, len(rs.schema.Order))
	for _, r := range rs.schema.Order {
		out = append(out, RegisterValue{Register: r, Value: rs.values[r]})
	}
	return out
}

// Raw returns all registers in prstatus order; absent registers are zero.
func (rs RegisterSet) Raw() [NumRegisters]uint32 {
	return rs.values
}
