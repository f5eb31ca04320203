package review

// progressBuffer reorders frames that arrive out of sequence. Accept returns
// the longest contiguous run starting at the expected next sequence, or nil
// when the frame only fills part of a gap. Frames at or below the last
// released sequence are duplicates and are dropped.
type progressBuffer struct {
	expected uint64
	held     map[uint64]Frame
}

func newProgressBuffer() *progressBuffer {
	return &progressBuffer{expected: 1, held: make(map[uint64]Frame)}
}

func (b *progressBuffer) accept(f Frame) []Frame {
	if f.Sequence < b.expected {
		return nil
	}
	b.held[f.Sequence] = f

	var run []Frame
	for {
		next, ok := b.held[b.expected]
		if !ok {
			break
		}
		delete(b.held, b.expected)
		run = append(run, next)
		b.expected++
	}
	return run
}

// pending reports how many frames are held waiting for a gap to fill.
func (b *progressBuffer) pending() int { return len(b.held) }
