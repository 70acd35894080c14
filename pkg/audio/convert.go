package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Converter converts PCM from a source format to Target. It logs once on the
// first conversion and once on the first misaligned block.
// Create one per device; not designed for shared use across goroutines.
type Converter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns pcm converted from src to c.Target. When the formats match,
// pcm is returned unchanged. Misaligned input (odd byte count) yields nil.
// Resampling happens before channel conversion.
func (c *Converter) Convert(pcm []byte, src Format) []byte {
	if len(pcm)%BytesPerSample != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM block, dropping",
				"bytes", len(pcm),
				"format", src.String(),
			)
		})
		return nil
	}

	dst := c.Target
	if src.SampleRate == dst.SampleRate && src.channels() == dst.channels() {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio: converting output format", "from", src.String(), "to", dst.String())
	})

	if src.SampleRate != dst.SampleRate {
		pcm = Resample16(pcm, src.channels(), src.SampleRate, dst.SampleRate)
	}
	switch {
	case src.channels() == 1 && dst.channels() == 2:
		pcm = MonoToStereo(pcm)
	case src.channels() == 2 && dst.channels() == 1:
		pcm = StereoToMono(pcm)
	}
	return pcm
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := pcm[i*2 : i*2+2]
		copy(out[i*4:], s)
		copy(out[i*4+2:], s)
	}
	return out
}

// RightChannelOnly places each mono sample in the right channel of a stereo
// pair and leaves the left channel silent. Some I2S amplifiers only wire one
// slot.
func RightChannelOnly(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		copy(out[i*4+2:], pcm[i*2:i*2+2])
	}
	return out
}

// StereoToMono averages L and R of each stereo pair.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := range n {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		// The mean of two int16 values is always in range.
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// Resample16 resamples interleaved 16-bit PCM with the given channel count
// from srcRate to dstRate by linear interpolation. Non-positive rates or equal
// rates return pcm unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels <= 0 {
		channels = 1
	}
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (channels * 2)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			v := int16(s0*(1-frac) + s1*frac)
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(v))
		}
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
