package buffer

// Block is a non-interleaved multichannel sample buffer (channels x frames).
// All channels share one backing allocation so a Block is cheap to zero and
// pool. Analysis functions accept raw [][]float64; use Data() to bridge.
type Block struct {
	chans   [][]float64
	backing []float64
}

// NewBlock returns a zero-filled Block with the given shape.
func NewBlock(channels, frames int) *Block {
	if channels < 0 {
		channels = 0
	}
	if frames < 0 {
		frames = 0
	}

	b := &Block{}
	b.alloc(channels, frames)
	return b
}

// FromChannels wraps existing channel slices without copying.
// Mutations to the slices are visible through the Block and vice versa.
func FromChannels(chans [][]float64) *Block {
	return &Block{chans: chans}
}

// Channels returns the channel count.
func (b *Block) Channels() int {
	return len(b.chans)
}

// Frames returns the per-channel sample count.
func (b *Block) Frames() int {
	if len(b.chans) == 0 {
		return 0
	}
	return len(b.chans[0])
}

// Channel returns the sample slice for channel ch.
func (b *Block) Channel(ch int) []float64 {
	return b.chans[ch]
}

// Data returns the underlying channel slices.
func (b *Block) Data() [][]float64 {
	return b.chans
}

// Zero sets every sample in every channel to 0.
func (b *Block) Zero() {
	if b.backing != nil {
		for i := range b.backing {
			b.backing[i] = 0
		}
		return
	}
	for _, ch := range b.chans {
		for i := range ch {
			ch[i] = 0
		}
	}
}

// CopyFrom copies src into b over the overlapping shape and returns the
// number of frames copied per channel.
func (b *Block) CopyFrom(src [][]float64) int {
	frames := b.Frames()
	for ch := range b.chans {
		if ch >= len(src) {
			break
		}
		n := copy(b.chans[ch], src[ch])
		if n < frames {
			frames = n
		}
	}
	return frames
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	out := NewBlock(b.Channels(), b.Frames())
	out.CopyFrom(b.chans)
	return out
}

// Resize reshapes the block to channels x frames, reusing the backing
// allocation when it is large enough. Contents after Resize are undefined;
// callers that need a clean block follow with Zero.
func (b *Block) Resize(channels, frames int) {
	if channels < 0 {
		channels = 0
	}
	if frames < 0 {
		frames = 0
	}

	need := channels * frames
	if b.backing != nil && cap(b.backing) >= need && cap(b.chans) >= channels {
		b.backing = b.backing[:need]
		b.chans = b.chans[:channels]
		for ch := 0; ch < channels; ch++ {
			b.chans[ch] = b.backing[ch*frames : (ch+1)*frames]
		}
		return
	}

	b.alloc(channels, frames)
}

func (b *Block) alloc(channels, frames int) {
	b.backing = make([]float64, channels*frames)
	b.chans = make([][]float64, channels)
	for ch := range b.chans {
		b.chans[ch] = b.backing[ch*frames : (ch+1)*frames]
	}
}
