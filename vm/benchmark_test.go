package vm

import (
	"context"
	"io"
	"testing"
)

// =============================================================================
// Interpreter dispatch
// =============================================================================

// loopText counts memory[0] down from 10000 without printing.
const loopText = `INPP
ALME 1
CRCT 10000.0
ARMZ 0
CRVL 0
CRCT 0.0
CMMA
DSVF 13
CRVL 0
CRCT 1.0
SUBT
ARMZ 0
DSVI 4
PARA
`

// callText calls a one-parameter procedure 1000 times.
const callText = `INPP
ALME 1
CRCT 1000.0
ARMZ 0
DSVI 8
ENPR
AMREL 0
RTPR
CRVL 0
CRCT 0.0
CMMA
DSVF 20
PUSHER 15
CRVL 0
CHPR 5
CRVL 0
CRCT 1.0
SUBT
ARMZ 0
DSVI 8
PARA
`

func benchmarkProgram(b *testing.B, text string) {
	prog, err := ParseProgramString(text)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine := New(prog, WithOutput(io.Discard))
		if err := machine.Run(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLoop measures arithmetic, comparison and branch dispatch.
func BenchmarkLoop(b *testing.B) {
	benchmarkProgram(b, loopText)
}

// BenchmarkCall measures the ENPR/RTPR frame protocol.
func BenchmarkCall(b *testing.B) {
	benchmarkProgram(b, callText)
}

// =============================================================================
// Loading
// =============================================================================

func BenchmarkParseProgram(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := ParseProgramString(countdownText); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUnmarshalProgram(b *testing.B) {
	prog, err := ParseProgramString(countdownText)
	if err != nil {
		b.Fatal(err)
	}
	data, err := MarshalProgram(prog)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := UnmarshalProgram(data); err != nil {
			b.Fatal(err)
		}
	}
}
