package predict

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"codesmith/internal/logging"
	"codesmith/internal/perception"
)

// ReasoningField is the output slot chain-of-thought predictors add in front
// of the declared outputs.
var ReasoningField = Field{
	Name: "reasoning",
	Desc: "Let's think step by step in order to produce the answer.",
}

// Predictor runs one signature against an LLM, with optional demos.
type Predictor struct {
	name         string
	sig          Signature
	client       perception.LLMClient
	adapter      ChatAdapter
	parseRetries int

	mu    sync.RWMutex
	demos []Example
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithParseRetries sets how many extra calls are made when a reply cannot be parsed.
func WithParseRetries(n int) Option {
	return func(p *Predictor) {
		if n >= 0 {
			p.parseRetries = n
		}
	}
}

// NewPredict creates a plain predictor for sig.
func NewPredict(name string, sig Signature, client perception.LLMClient, opts ...Option) *Predictor {
	p := &Predictor{
		name:         name,
		sig:          sig,
		client:       client,
		parseRetries: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewChainOfThought creates a predictor that asks for step-by-step reasoning
// before the declared outputs.
func NewChainOfThought(name string, sig Signature, client perception.LLMClient, opts ...Option) *Predictor {
	return NewPredict(name, sig.PrependOutput(ReasoningField), client, opts...)
}

// Name returns the predictor name used in logs.
func (p *Predictor) Name() string {
	return p.name
}

// Signature returns the effective signature (including reasoning for CoT).
func (p *Predictor) Signature() Signature {
	return p.sig
}

// Demos returns a copy of the current demos.
func (p *Predictor) Demos() []Example {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Example(nil), p.demos...)
}

// SetDemos replaces the demos.
func (p *Predictor) SetDemos(demos []Example) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.demos = append([]Example(nil), demos...)
}

// Clone returns a predictor with the same configuration and no demos.
func (p *Predictor) Clone() *Predictor {
	return &Predictor{
		name:         p.name,
		sig:          p.sig,
		client:       p.client,
		adapter:      p.adapter,
		parseRetries: p.parseRetries,
	}
}

// Forward runs the predictor on inputs. Every input field of the signature
// must be present.
func (p *Predictor) Forward(ctx context.Context, inputs map[string]string) (Prediction, error) {
	for _, f := range p.sig.Inputs {
		if _, ok := inputs[f.Name]; !ok {
			return nil, fmt.Errorf("%s: missing input field %q", p.name, f.Name)
		}
	}
	if p.client == nil {
		return nil, fmt.Errorf("%s: no LLM client configured", p.name)
	}

	messages := p.adapter.Format(p.sig, p.Demos(), inputs)
	logging.PredictDebug("%s: calling LLM with %d messages (%s)", p.name, len(messages), p.sig)

	var lastErr error
	for attempt := 0; attempt <= p.parseRetries; attempt++ {
		reply, err := p.client.CompleteChat(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
		pred, err := p.adapter.Parse(p.sig, reply)
		if err == nil {
			return pred, nil
		}
		if !errors.Is(err, ErrParse) {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
		logging.PredictWarn("%s: unparseable reply (attempt %d/%d): %v", p.name, attempt+1, p.parseRetries+1, err)
		lastErr = err
	}
	return nil, fmt.Errorf("%s: %w", p.name, lastErr)
}
