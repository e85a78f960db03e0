package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
	"github.com/buildngrowsv/bubblevoice/pkg/priority"
)

type engine struct {
	in      chan frames.Frame
	out     chan frames.Frame
	pq      *priority.PriorityQueue
	procs   []FrameProcessor
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	stageCh []chan frames.Frame
	sink    func(frames.Frame)
	obs     metrics.Observer
}

func New(cfg Config) Engine {
	e := &engine{
		in:  make(chan frames.Frame, cfg.HighCapacity+cfg.LowCapacity),
		out: make(chan frames.Frame, cfg.HighCapacity+cfg.LowCapacity),
		cfg: cfg,
	}
	e.pq = priority.New(cfg.HighCapacity, cfg.LowCapacity, cfg.FairnessRatio)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

func NewWithPipelineConfig(pc PipelineConfig) Engine {
	eng := New(pc.Config)
	logPipeline(pc.Processors)
	for _, p := range pc.Processors {
		_ = eng.AddProcessor(p)
	}
	return eng
}

func (e *engine) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
}

func (e *engine) In() chan frames.Frame            { return e.in }
func (e *engine) Out() chan frames.Frame           { return e.out }
func (e *engine) SetSink(sink func(frames.Frame))  { e.sink = sink }
func (e *engine) SetObserver(obs metrics.Observer) { e.obs = obs }

func (e *engine) AddProcessor(p FrameProcessor) error {
	e.procs = append(e.procs, p)
	return nil
}

func (e *engine) Start() error {
	if e.cfg.Async {
		return e.startAsync()
	}
	return e.startSync()
}

func (e *engine) Stop() error {
	e.cancel()
	// allow goroutines to exit and drain
	time.Sleep(5 * time.Millisecond)
	close(e.out)
	return nil
}

func (e *engine) startSync() error {
	go e.feed()
	go func() {
		for {
			select {
			case <-e.ctx.Done():
				return
			default:
				fAny, _ := e.pq.Pop()
				f := fAny.(frames.Frame)
				if shouldDropForLag(f, 500*time.Millisecond) {
					frames.ReleaseAudioFrame(f)
					e.recordDrop(f)
					continue
				}
				out := []frames.Frame{f}
				for _, p := range e.procs {
					var next []frames.Frame
					for _, cur := range out {
						start := time.Now()
						r, err := p.Process(cur)
						if err != nil || r == nil {
							frames.ReleaseAudioFrame(cur)
							continue
						}
						e.recordStage(p.Name(), cur, start)
						next = append(next, r...)
					}
					out = next
					if out == nil {
						break
					}
				}
				for _, f := range out {
					e.recordOut(f)
					e.emit(f)
				}
			}
		}
	}()
	return nil
}

func (e *engine) startAsync() error {
	e.stageCh = make([]chan frames.Frame, len(e.procs)+1)
	for i := range e.stageCh {
		e.stageCh[i] = make(chan frames.Frame, e.cfg.StageBuffer)
	}
	for i, p := range e.procs {
		inCh, outCh := e.stageCh[i], e.stageCh[i+1]
		go func(proc FrameProcessor, in, out chan frames.Frame) {
			for {
				select {
				case <-e.ctx.Done():
					return
				case f := <-in:
					start := time.Now()
					r, err := proc.Process(f)
					if err != nil || r == nil {
						frames.ReleaseAudioFrame(f)
						continue
					}
					e.recordStage(proc.Name(), f, start)
					for _, out2 := range r {
						e.push(out, out2)
					}
				}
			}
		}(p, inCh, outCh)
	}
	go e.feed()
	// pop from pq to stage0 honoring fairness
	go func() {
		for {
			select {
			case <-e.ctx.Done():
				return
			default:
				fAny, _ := e.pq.Pop()
				f := fAny.(frames.Frame)
				if shouldDropForLag(f, 500*time.Millisecond) {
					frames.ReleaseAudioFrame(f)
					e.recordDrop(f)
					continue
				}
				e.push(e.stageCh[0], f)
			}
		}
	}()
	// final stage to out
	go func() {
		final := e.stageCh[len(e.stageCh)-1]
		for {
			select {
			case <-e.ctx.Done():
				return
			case f := <-final:
				e.recordOut(f)
				e.emit(f)
			}
		}
	}()
	return nil
}

// feed classifies incoming frames into the priority lanes. Control frames
// are never allowed to queue behind audio.
func (e *engine) feed() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case f := <-e.in:
			if f.Kind() == frames.KindControl {
				if !e.pq.TryPushHigh(f) {
					frames.ReleaseAudioFrame(f)
					e.recordDrop(f)
				}
			} else {
				if !e.pq.TryPushLow(f) {
					frames.ReleaseAudioFrame(f)
					e.recordDrop(f)
				}
			}
			e.recordIn(f)
		}
	}
}

func (e *engine) emit(f frames.Frame) {
	if e.sink != nil {
		e.sink(f)
		frames.ReleaseAudioFrame(f)
		return
	}
	e.push(e.out, f)
}

func (e *engine) push(ch chan frames.Frame, f frames.Frame) {
	if shouldDropForLag(f, 500*time.Millisecond) {
		frames.ReleaseAudioFrame(f)
		e.recordDrop(f)
		return
	}
	switch e.cfg.Backpressure {
	case BackpressureWait:
		select {
		case <-e.ctx.Done():
			frames.ReleaseAudioFrame(f)
			return
		case ch <- f:
		}
	default:
		select {
		case ch <- f:
		default:
			frames.ReleaseAudioFrame(f)
			e.recordDrop(f)
		}
	}
}

func (e *engine) recordStage(name string, f frames.Frame, start time.Time) {
	if e.obs == nil {
		return
	}
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "stage_latency_us",
		Time:  time.Now(),
		Value: float64(time.Since(start).Microseconds()),
		Tags: map[string]string{
			"processor":          name,
			frames.MetaStreamID:  streamIDFromFrame(f),
			frames.MetaTraceID:   traceIDFromFrame(f),
			frames.MetaSessionID: sessionIDFromFrame(f),
		},
	})
}

func (e *engine) recordIn(f frames.Frame) {
	e.recordFlow("frame_in", f)
}

func (e *engine) recordOut(f frames.Frame) {
	e.recordFlow("frame_out", f)
}

func (e *engine) recordFlow(name string, f frames.Frame) {
	if e.obs == nil {
		return
	}
	tags := map[string]string{
		frames.MetaStreamID:  streamIDFromFrame(f),
		frames.MetaTraceID:   traceIDFromFrame(f),
		frames.MetaSessionID: sessionIDFromFrame(f),
		"kind":               kindFromFrame(f),
	}
	addFrameDetailTags(tags, f)
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: tags,
	})
}

func (e *engine) recordDrop(f frames.Frame) {
	if e.obs == nil {
		return
	}
	e.obs.RecordEvent(metrics.MetricsEvent{
		Name: "frame_drop",
		Time: time.Now(),
		Tags: map[string]string{
			frames.MetaStreamID:  streamIDFromFrame(f),
			frames.MetaTraceID:   traceIDFromFrame(f),
			frames.MetaSessionID: sessionIDFromFrame(f),
			"kind":               kindFromFrame(f),
		},
	})
}

func streamIDFromFrame(f frames.Frame) string {
	return metaValue(f, frames.MetaStreamID)
}

func traceIDFromFrame(f frames.Frame) string {
	return metaValue(f, frames.MetaTraceID)
}

func sessionIDFromFrame(f frames.Frame) string {
	return metaValue(f, frames.MetaSessionID)
}

func metaValue(f frames.Frame, key string) string {
	if f == nil {
		return ""
	}
	m := f.Meta()
	if m == nil {
		return ""
	}
	return m[key]
}

func logPipeline(procs []FrameProcessor) {
	if len(procs) == 0 {
		return
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	slog.Info("pipeline", "order", strings.Join(names, " -> "))
}

func kindFromFrame(f frames.Frame) string {
	if f == nil {
		return ""
	}
	return string(f.Kind())
}

func addFrameDetailTags(tags map[string]string, f frames.Frame) {
	if tags == nil || f == nil {
		return
	}
	meta := f.Meta()
	if meta != nil {
		if source := meta[frames.MetaSource]; source != "" {
			tags["source"] = source
		}
	}
	switch f.Kind() {
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		tags["control_code"] = string(cf.Code())
		if meta != nil {
			if reason := meta[frames.MetaReason]; reason != "" {
				tags["control_reason"] = reason
			}
		}
	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		if name := sf.Name(); name != "" {
			tags["system_name"] = name
		}
	}
}

func shouldDropForLag(f frames.Frame, maxLag time.Duration) bool {
	if f == nil || f.Kind() != frames.KindAudio {
		return false
	}
	pts := f.PTS()
	if pts <= 0 {
		return false
	}
	if pts < 1_000_000_000_000 {
		return false
	}
	lag := time.Since(time.Unix(0, pts))
	return lag > maxLag
}
