package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/types"
)

// Output is the terminal operator for a registered query (spec.md
// §4.7.12 / §6): it drains its input queue and pushes every PLUS/MINUS
// across the push interface Sink exposes, encoding each with the
// output wire format (timestamp, sign, column bytes). Heartbeats are
// not forwarded across Sink — the push interface has no heartbeat
// notion, only PutNext for actual rows.
type Output struct {
	In     *queue.Queue
	Sink   types.Sink
	Layout *types.Layout

	buf []byte

	lastInputTs uint32
}

// NewOutput wires sink to in, calling SetNumAttrs/SetAttrInfo from
// layout and Start before the first PutNext, per the push interface's
// contract (spec.md §6).
func NewOutput(in *queue.Queue, sink types.Sink, layout *types.Layout) (*Output, error) {
	o := &Output{In: in, Sink: sink, Layout: layout, buf: make([]byte, types.EncodedLen(layout))}
	schema := layout.Schema()
	if err := sink.SetNumAttrs(len(schema)); err != nil {
		return nil, err
	}
	for i, c := range schema {
		if err := sink.SetAttrInfo(i, c.Type, c.Len); err != nil {
			return nil, err
		}
	}
	if err := sink.Start(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Output) Run(timeSlice int) error {
	for i := 0; i < timeSlice; i++ {
		e, ok := o.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&o.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		sign := types.SignPlus
		if e.Kind == Minus {
			sign = types.SignMinus
		}
		types.Encode(o.buf, o.Layout, e.Tuple.Row(), e.Timestamp, sign)
		e.Tuple.DecrRef()
		if err := o.Sink.PutNext(o.buf); err != nil {
			return err
		}
	}
	return nil
}

// Close signals end-of-output to the sink, per spec.md §6's push
// interface (Start/PutNext*/End).
func (o *Output) Close() error { return o.Sink.End() }

// Sink is the bit-bucket terminal operator for a plan branch nothing
// downstream reads (an unused view, a query dropped mid-registration):
// it just drains and releases every element, never touching types.Sink.
type Sink struct {
	In *queue.Queue

	lastInputTs uint32
}

func NewSink(in *queue.Queue) *Sink { return &Sink{In: in} }

func (s *Sink) Run(timeSlice int) error {
	for i := 0; i < timeSlice; i++ {
		e, ok := s.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&s.lastInputTs, e)
		if e.Kind != Heartbeat {
			e.Tuple.DecrRef()
		}
	}
	return nil
}
