package ps

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

func CPUStatus() (CPU, error) {
	list, err := cpu.Percent(time.Millisecond*50, false)
	if err != nil {
		return CPU{}, err
	}
	c := CPU{}
	if len(list) > 0 {
		c.Percent = list[0]
	}

	return c, nil
}

func MemoryStatus() (Memory, error) {
	memory, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	swapMemory, err := mem.SwapMemory()
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		Total:       memory.Total,
		Used:        memory.Used,
		UsedPercent: memory.UsedPercent,
		Human:       humanize.Bytes(memory.Used) + " / " + humanize.Bytes(memory.Total),

		SwapTotal:       swapMemory.Total,
		SwapUsed:        swapMemory.Used,
		SwapUsedPercent: swapMemory.UsedPercent,
	}, nil
}

func DiskStatus(path string) (Disk, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return Disk{}, err
	}

	return Disk{
		Path:        path,
		Total:       usage.Total,
		Used:        usage.Used,
		UsedPercent: usage.UsedPercent,
		Human:       humanize.Bytes(usage.Used) + " / " + humanize.Bytes(usage.Total),
	}, nil
}

// Collect gathers the host status, with disk usage for the file system holding path.
func Collect(path string) (Status, error) {
	var (
		s   Status
		err error
	)
	if s.CPU, err = CPUStatus(); err != nil {
		return Status{}, err
	}
	if s.Memory, err = MemoryStatus(); err != nil {
		return Status{}, err
	}
	if s.Disk, err = DiskStatus(path); err != nil {
		return Status{}, err
	}
	if up, err := host.Uptime(); err == nil {
		boot := time.Now().Add(-time.Duration(up) * time.Second)
		s.Uptime = humanize.RelTime(boot, time.Now(), "", "")
	}

	return s, nil
}

type Status struct {
	CPU    CPU    `json:"cpu"`
	Memory Memory `json:"memory"`
	Disk   Disk   `json:"disk"`
	Uptime string `json:"uptime,omitempty"`
}

type CPU struct {
	Percent float64 `json:"percent"`
}

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
	Human       string  `json:"human"`

	SwapTotal       uint64  `json:"swapTotal"`
	SwapUsed        uint64  `json:"swapUsed"`
	SwapUsedPercent float64 `json:"swapUsedPercent"`
}

type Disk struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
	Human       string  `json:"human"`
}
