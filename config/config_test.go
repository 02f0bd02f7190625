package config

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if v, err := cfg.MemorySize(); err != nil || v != 16777216 {
		t.Errorf("MemorySize = (%d, %v), want (16777216, nil)", v, err)
	}
	if v, err := cfg.QueueSize(); err != nil || v != 64 {
		t.Errorf("QueueSize = (%d, %v), want (64, nil)", v, err)
	}
	if v, err := cfg.SharedQueueSize(); err != nil || v != 256 {
		t.Errorf("SharedQueueSize = (%d, %v), want (256, nil)", v, err)
	}
	if v, err := cfg.IndexThreshold(); err != nil || v != 0.8 {
		t.Errorf("IndexThreshold = (%v, %v), want (0.8, nil)", v, err)
	}
	if v, err := cfg.RunTime(); err != nil || v != 0 {
		t.Errorf("RunTime = (%d, %v), want (0, nil)", v, err)
	}
	if v, err := cfg.CPUSpeed(); err != nil || v != 1000 {
		t.Errorf("CPUSpeed = (%d, %v), want (1000, nil)", v, err)
	}
}

func TestReadOverlaysDefaults(t *testing.T) {
	in := strings.NewReader("# a comment\n\nMEMORY_SIZE=65536\nCPU_SPEED = 2400 \n")
	cfg, err := Read(in)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v, _ := cfg.MemorySize(); v != 65536 {
		t.Errorf("MemorySize = %d, want 65536", v)
	}
	if v, _ := cfg.CPUSpeed(); v != 2400 {
		t.Errorf("CPUSpeed = %d, want 2400", v)
	}
	// Untouched keys still carry their default.
	if v, _ := cfg.QueueSize(); v != 64 {
		t.Errorf("QueueSize = %d, want default 64", v)
	}
}

func TestReadRejectsMissingEquals(t *testing.T) {
	in := strings.NewReader("NOT_A_VALID_LINE\n")
	if _, err := Read(in); err == nil {
		t.Fatalf("expected an error for a line with no '='")
	}
}

func TestIntAccessorErrorOnNonNumeric(t *testing.T) {
	in := strings.NewReader("MEMORY_SIZE=not-a-number\n")
	cfg, err := Read(in)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := cfg.MemorySize(); err == nil {
		t.Fatalf("expected MemorySize to error on a non-numeric value")
	}
}

func TestFloatAccessorErrorOnNonNumeric(t *testing.T) {
	in := strings.NewReader("INDEX_THRESHOLD=nope\n")
	cfg, err := Read(in)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := cfg.IndexThreshold(); err == nil {
		t.Fatalf("expected IndexThreshold to error on a non-numeric value")
	}
}
