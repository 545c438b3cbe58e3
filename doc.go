/*
Package gmf allows to build and execute streaming media pipelines.

Concept

A pipeline is an ordered chain of elements. Each element consumes payloads
from its in port and produces payloads to its out port. The head element
reads from an in endpoint (a file, a wav reader), the tail element writes
to an out endpoint:

    in endpoint -> element -> ... -> element -> out endpoint

Elements don't own goroutines. A pipeline is executed by a task, a single
goroutine which calls element jobs round-robin. Every element contributes
three jobs: open, process and close. Processing is cooperative: an element
does one bounded unit of work per call and is skipped while its input is
empty or its output isn't consumed yet.

Elements exchange stream info with REPORT_INFO events. An element reports
its output format when it opens, the next element takes it as its input
format. Elements marked as dependent don't open until they receive the
info.

Components

Elements and endpoints are registered in a pool by name:

    pool, err := gmf.NewDefaultPool()
    p, err := pool.NewPipeline(gmf.WavReaderName,
        []string{audio.DecoderName, audio.RateCvtName}, gmf.WavWriterName)

Execution

A pipeline needs a task to run:

    t, err := task.New()
    err = p.BindTask(t)
    p.SetInURI("in.wav")
    p.SetOutURI("out.wav")
    p.SetEvent(func(pkt event.Packet) error { ... })
    err = p.Run(ctx)

The event callback gets RUNNING and PAUSED state changes and the final
state: FINISHED, STOPPED or ERROR. A stopped or finished pipeline is reset
before the next run.

Connected pipelines

Pipelines running on different tasks are connected with data buses, see
ConnectPipe. It allows to split processing into independently scheduled
parts, e.g. a decoder feeding per-channel chains which are interleaved
downstream.
*/
package gmf
