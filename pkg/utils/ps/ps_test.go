package ps

import (
	"testing"
)

func TestCollect(t *testing.T) {
	s, err := Collect(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.Memory.Total == 0 || s.Memory.Human == "" {
		t.Fatalf("memory = %+v", s.Memory)
	}
	if s.Disk.Total == 0 {
		t.Fatalf("disk = %+v", s.Disk)
	}
	if s.CPU.Percent < 0 || s.CPU.Percent > 100 {
		t.Fatalf("cpu = %+v", s.CPU)
	}
}
