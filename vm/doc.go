// Package vm implements the LALG stack machine.
//
// This package contains:
//   - the opcode table and the text bytecode format
//   - growable zero-filled data memory
//   - the fetch-decode-execute loop with frame-pointer based calls
//   - runtime diagnostics, tracing and execution statistics
//   - the CBOR wire encoding of programs
package vm
