package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the current version of the binary program encoding.
const WireVersion = 1

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// WireProgram is the binary form of a Program. Instructions keep their text
// form so both encodings load through the same parser.
type WireProgram struct {
	Version uint16   `cbor:"1,keyasint" json:"version"`
	Code    []string `cbor:"2,keyasint" json:"code"`
	Lines   []int    `cbor:"3,keyasint,omitempty" json:"lines,omitempty"`
}

// ToWire converts a Program to its wire form.
func (p *Program) ToWire() *WireProgram {
	w := &WireProgram{
		Version: WireVersion,
		Code:    make([]string, len(p.Code)),
	}
	for i, in := range p.Code {
		w.Code[i] = in.String()
	}
	if len(p.Lines) > 0 {
		w.Lines = append([]int(nil), p.Lines...)
	}
	return w
}

// Program converts the wire form back to a Program.
func (w *WireProgram) Program() (*Program, error) {
	if w.Version != WireVersion {
		return nil, fmt.Errorf("vm: unsupported wire version %d", w.Version)
	}
	if len(w.Lines) > 0 && len(w.Lines) != len(w.Code) {
		return nil, fmt.Errorf("vm: line table has %d entries for %d instructions", len(w.Lines), len(w.Code))
	}
	p := &Program{Code: make([]Instruction, len(w.Code))}
	for i, text := range w.Code {
		in, err := ParseInstruction(text)
		if err != nil {
			return nil, &LoadError{Line: i + 1, Text: text, Err: err}
		}
		p.Code[i] = in
	}
	if len(w.Lines) > 0 {
		p.Lines = append([]int(nil), w.Lines...)
	}
	return p, nil
}

// MarshalProgram serializes a Program to CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p.ToWire())
}

// UnmarshalProgram deserializes a Program from CBOR bytes.
func UnmarshalProgram(data []byte) (*Program, error) {
	var w WireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("vm: unmarshal program: %w", err)
	}
	return w.Program()
}

// EncodeCBOR encodes any value with the canonical encoding used for
// programs.
func EncodeCBOR(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// DecodeCBOR decodes CBOR bytes into v.
func DecodeCBOR(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("vm: unmarshal: %w", err)
	}
	return nil
}
