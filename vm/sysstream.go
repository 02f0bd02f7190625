package vm

import (
	"time"

	"github.com/kajic/dsms/monitor"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/types"
)

// sysStreamOutput is one fan-out branch of a SysStreamGen: its own
// queue, its own tuple store (each branch's tuples have an
// independent lifetime), and a resumable cursor into the current
// tick's sample batch so a full downstream queue on one branch never
// blocks delivery to the others.
type sysStreamOutput struct {
	out   *queue.Queue
	store tupleAllocator
	next  int // index into the current tick's samples not yet sent on this branch
}

// SysStreamGen is the system-stream clock operator (spec.md §4.7.13):
// it has no logical input queue, polls a monitor.Registry once per
// elapsed logical tick, and fans the resulting SYS_STREAM tuples out
// to every registered output branch. Grounded on
// original_source/dsms/src/execution/operators/sys_stream_gen.cc,
// adapted from its wall-clock TSC read (`nanotime_ia32`, a Linux/IA32
// assembly fragment with no portable Go equivalent) to time.Since
// over an injectable clock.
type SysStreamGen struct {
	Registry *monitor.Registry
	Layout   *types.Layout
	CPUSpeed int // MHz, for monitor.CPUTicksToSeconds (unused by the wall-clock path directly, kept for parity with spec.md's CPU_SPEED config key)

	Now func() time.Time // defaults to time.Now; overridable for tests

	outputs []*sysStreamOutput

	start    time.Time
	lastTick uint32
	samples  []monitor.Sample
}

// NewSysStreamGen creates a generator polling reg, encoding samples
// with layout (monitor.NewLayout()).
func NewSysStreamGen(reg *monitor.Registry, layout *types.Layout, cpuSpeedMHz int) *SysStreamGen {
	return &SysStreamGen{Registry: reg, Layout: layout, CPUSpeed: cpuSpeedMHz, Now: time.Now}
}

// AddOutput registers a new fan-out branch, per spec.md §4.9's
// plan.InsertMonitor hot-insertion sequence ("attach its leaf to the
// SysStreamGen's output fan-out list").
func (s *SysStreamGen) AddOutput(out *queue.Queue, store tupleAllocator) {
	s.outputs = append(s.outputs, &sysStreamOutput{out: out, store: store})
}

func (s *SysStreamGen) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SysStreamGen) Run(timeSlice int) error {
	if s.start.IsZero() {
		s.start = s.now()
		return nil
	}

	curTs := uint32(s.now().Sub(s.start).Seconds() * monitor.TimePerSec)
	if curTs > s.lastTick {
		s.samples = s.Registry.Poll()
		s.lastTick = curTs
		for _, o := range s.outputs {
			o.next = 0
		}
	}

	for _, o := range s.outputs {
		for o.next < len(s.samples) && !o.out.IsFull() {
			if err := s.emit(o, s.samples[o.next], s.lastTick); err != nil {
				return err
			}
			o.next++
		}
	}
	return nil
}

// emit allocates and enqueues one SYS_STREAM tuple. The caller only
// invokes it while !o.out.IsFull(), and this operator is the queue's
// sole producer, so the Enqueue below cannot fail.
func (s *SysStreamGen) emit(o *sysStreamOutput, sample monitor.Sample, ts uint32) error {
	ref, err := o.store.NewTuple()
	if err != nil {
		return err
	}
	row := ref.Row()
	row.SetInt(s.Layout.Offset(0), int32(sample.Entity))
	row.SetInt(s.Layout.Offset(1), int32(sample.EntityID))
	row.SetInt(s.Layout.Offset(2), int32(sample.Property))
	row.SetInt(s.Layout.Offset(3), int32(sample.IVal))
	row.SetFloat(s.Layout.Offset(4), sample.FVal)

	o.out.Enqueue(Element{Kind: Plus, Tuple: ref, Timestamp: ts})
	return nil
}
