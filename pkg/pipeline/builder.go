package pipeline

// TurnPipelineBuilder assembles the pre-decision chain in its canonical
// order: epoch gate first so stale events never reach anything else, then
// the echo filter, then the burst normalizer last so its activity signals
// reflect only events that survived the gates.
type TurnPipelineBuilder struct {
	pre  []FrameProcessor
	core []FrameProcessor
	post []FrameProcessor
}

func NewTurnPipelineBuilder() *TurnPipelineBuilder {
	return &TurnPipelineBuilder{}
}

func (b *TurnPipelineBuilder) WithProcessor(p FrameProcessor) *TurnPipelineBuilder {
	b.core = append(b.core, p)
	return b
}

func (b *TurnPipelineBuilder) WithProcessorList(list []FrameProcessor) *TurnPipelineBuilder {
	for _, p := range list {
		if p != nil {
			b.core = append(b.core, p)
		}
	}
	return b
}

// WithIngest installs a stage ahead of the epoch gate, typically the
// audio feed into the recognition engine.
func (b *TurnPipelineBuilder) WithIngest(p FrameProcessor) *TurnPipelineBuilder {
	b.pre = append(b.pre, p)
	return b
}

func (b *TurnPipelineBuilder) WithEpochGate(p FrameProcessor) *TurnPipelineBuilder {
	b.pre = append(b.pre, p)
	return b
}

func (b *TurnPipelineBuilder) WithEchoFilter(p FrameProcessor) *TurnPipelineBuilder {
	return b.WithProcessor(p)
}

func (b *TurnPipelineBuilder) WithNormalizer(p FrameProcessor) *TurnPipelineBuilder {
	b.post = append(b.post, p)
	return b
}

func (b *TurnPipelineBuilder) Build(cfg Config) Engine {
	return NewWithPipelineConfig(PipelineConfig{
		Config:     cfg,
		Processors: append(append(b.pre, b.core...), b.post...),
	})
}
