package libdte

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/plan-systems/klog"

	"github.com/dte-systems/go-dte/godte"
)

// SnapshotStream is a pull-based channel of engine snapshots that
// combinators chain onto.
type SnapshotStream struct {
	Outlet chan godte.Snapshot
}

func NewSnapshotStream() *SnapshotStream {
	return &SnapshotStream{
		Outlet: make(chan godte.Snapshot),
	}
}

// RunOpts controls a driven engine run.
type RunOpts struct {

	// Steps is the number of Step calls to attempt.
	Steps int

	// ResetOnDeadEnd resets the engine and keeps going when the walk
	// strands; otherwise a dead end ends the run early.
	ResetOnDeadEnd bool
}

// RunEngine drives eng for opts.Steps steps, emitting a snapshot after each
// successful step. The engine must not be touched elsewhere until the
// stream closes.
func RunEngine(eng godte.RecursionEngine, opts RunOpts) *SnapshotStream {
	next := NewSnapshotStream()

	go func() {
		for i := 0; i < opts.Steps; i++ {
			_, err := eng.Step()
			if err != nil {
				if errors.Is(err, godte.ErrDeadEnd) && opts.ResetOnDeadEnd {
					eng.Reset()
					continue
				}
				klog.Errorf("run stopped after %d steps: %v", i, err)
				break
			}
			next.Outlet <- eng.GetState()
		}
		next.Close()
	}()

	return next
}

func (stream *SnapshotStream) Close() {
	if stream.Outlet != nil {
		close(stream.Outlet)
	}
}

func (stream *SnapshotStream) PushSnapshot(st godte.Snapshot) {
	stream.Outlet <- st
}

func (stream *SnapshotStream) PullSnapshot() godte.Snapshot {
	return <-stream.Outlet
}

// PullAll drains the stream, returning how many snapshots passed through.
func (stream *SnapshotStream) PullAll() int {
	count := 0
	for range stream.Outlet {
		count++
	}
	return count
}

// Last drains the stream and returns the final snapshot (zero value if the
// stream was empty).
func (stream *SnapshotStream) Last() godte.Snapshot {
	var last godte.Snapshot
	for st := range stream.Outlet {
		last = st
	}
	return last
}

// Print writes one summary line per snapshot (every Nth when every > 1) and
// passes each snapshot through unchanged.
func (stream *SnapshotStream) Print(out io.Writer, every int) *SnapshotStream {
	if every < 1 {
		every = 1
	}

	next := &SnapshotStream{
		Outlet: make(chan godte.Snapshot, 1),
	}

	go func() {
		buf := strings.Builder{}
		buf.Grow(256)

		count := 0
		for st := range stream.Outlet {
			count++
			if count%every == 0 {
				fmt.Fprintf(&buf, "%06d,%s,nodes=%d,edges=%d",
					count, st.Current, len(st.Nodes), len(st.Links))
				if st.Pattern != "" {
					fmt.Fprintf(&buf, ",pattern=%s", st.Pattern)
				}
				for _, key := range []string{"recursion_level", "depth", "entropy", "complexity"} {
					if v, ok := st.Metrics[key]; ok {
						fmt.Fprintf(&buf, ",%s=%.2f", key, v)
					}
				}
				buf.WriteByte('\n')
				out.Write([]byte(buf.String()))
				buf.Reset()
			}
			next.Outlet <- st
		}
		next.Close()
	}()

	return next
}
