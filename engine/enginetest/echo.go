package enginetest

import (
	"github.com/cwbudde/algo-verify/dsp/delay"
)

const (
	echoMaxDelaySeconds = 0.5
	echoMaxFeedback     = 0.95
)

// FeedbackEcho mixes a delayed copy of the signal back into the input.
// Parameter 0 maps the delay time onto [1 ms, 500 ms], parameter 1 the
// feedback amount onto [0, 0.95]; the feedback clamp keeps the loop gain
// below unity so the echo always decays.
type FeedbackEcho struct {
	base
	lines []*delay.Line
}

// NewFeedbackEcho creates an echo with a 100 ms delay and mild feedback.
func NewFeedbackEcho() (*FeedbackEcho, error) {
	return &FeedbackEcho{
		base: newBase([]string{"time", "feedback"}, []float64{0.2, 0.4}),
	}, nil
}

// Prepare sizes one delay line per channel lazily; lines are allocated on
// the first Process call once the channel count is known.
func (e *FeedbackEcho) Prepare(sampleRate float64, maxBlock int) error {
	if err := e.base.Prepare(sampleRate, maxBlock); err != nil {
		return err
	}

	e.lines = nil

	return nil
}

// Reset clears the delay lines along with the parameters.
func (e *FeedbackEcho) Reset() {
	e.base.Reset()
	for _, line := range e.lines {
		line.Reset()
	}
}

func (e *FeedbackEcho) delaySamples() int {
	seconds := 0.001 + (echoMaxDelaySeconds-0.001)*e.values[0]

	n := int(seconds * e.sampleRate)
	if n < 1 {
		n = 1
	}

	return n
}

func (e *FeedbackEcho) feedback() float64 {
	fb := e.values[1] * echoMaxFeedback
	if fb > echoMaxFeedback {
		fb = echoMaxFeedback
	}

	return fb
}

// Process applies the echo per channel.
func (e *FeedbackEcho) Process(block [][]float64) {
	if len(e.lines) != len(block) {
		size := int(echoMaxDelaySeconds*e.sampleRate) + 1
		e.lines = make([]*delay.Line, len(block))
		for ch := range e.lines {
			line, err := delay.New(size)
			if err != nil {
				return
			}
			e.lines[ch] = line
		}
	}

	d := e.delaySamples()
	fb := e.feedback()

	for ch, samples := range block {
		line := e.lines[ch]
		for i, x := range samples {
			delayed := line.Read(d)
			y := x + fb*delayed
			line.Write(y)
			samples[i] = y
		}
	}
}
