package qemu

import "testing"

func TestExitWritesCodeAndHalts(t *testing.T) {
	defer func(origWrite func(uint16, uint32), origHalt func()) {
		portWriteDwordFn = origWrite
		cpuHaltFn = origHalt
	}(portWriteDwordFn, cpuHaltFn)

	var (
		gotPort  uint16
		gotValue uint32
		halted   bool
	)
	portWriteDwordFn = func(port uint16, value uint32) {
		gotPort = port
		gotValue = value
	}
	cpuHaltFn = func() { halted = true }

	Exit(ExitSuccess)

	if gotPort != exitPort {
		t.Errorf("expected write to port 0x%x; got 0x%x", exitPort, gotPort)
	}
	if gotValue != uint32(ExitSuccess) {
		t.Errorf("expected exit code 0x%x; got 0x%x", uint32(ExitSuccess), gotValue)
	}
	if !halted {
		t.Error("expected Exit to halt the CPU after the port write")
	}
}

func TestProcessExitCode(t *testing.T) {
	specs := []struct {
		code ExitCode
		exp  int
	}{
		// A successful test run surfaces as process exit status 33.
		{ExitSuccess, 33},
		{ExitFailure, 35},
	}

	for specIndex, spec := range specs {
		if got := ProcessExitCode(spec.code); got != spec.exp {
			t.Errorf("[spec %d] expected qemu to exit with status %d; got %d", specIndex, spec.exp, got)
		}
	}
}
