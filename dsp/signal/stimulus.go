package signal

// Stimulus is a deterministic multichannel test signal. Data is laid out as
// channels x samples, non-interleaved. A Stimulus is treated as immutable
// once generated; consumers that feed it into a processing engine must work
// on a copy.
type Stimulus struct {
	Data       [][]float64
	SampleRate float64
	Label      string
	Seed       int64
}

// Channels returns the channel count.
func (s *Stimulus) Channels() int {
	return len(s.Data)
}

// Samples returns the per-channel sample count.
func (s *Stimulus) Samples() int {
	if len(s.Data) == 0 {
		return 0
	}
	return len(s.Data[0])
}

// Duration returns the stimulus length in seconds.
func (s *Stimulus) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Samples()) / s.SampleRate
}

// Channel returns the sample slice for channel ch.
func (s *Stimulus) Channel(ch int) []float64 {
	return s.Data[ch]
}

// Clone returns a deep copy of the stimulus.
func (s *Stimulus) Clone() *Stimulus {
	out := &Stimulus{
		Data:       make([][]float64, len(s.Data)),
		SampleRate: s.SampleRate,
		Label:      s.Label,
		Seed:       s.Seed,
	}
	for ch := range s.Data {
		out.Data[ch] = append([]float64(nil), s.Data[ch]...)
	}
	return out
}
