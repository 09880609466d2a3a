package uds

// SequenceResult is a step's outcome (spec.md §4.4 "Sequence runner").
type SequenceResult uint8

const (
	SeqDone SequenceResult = iota
	SeqRunning
	SeqGotoNext
)

// SequenceStep is one step of an attached client sequence. now is the
// current monotonic reading; the step inspects/drives c and reports
// whether the runner should advance, keep re-invoking this step, or stop.
type SequenceStep func(c *Client, now uint32) SequenceResult

// RunSequence attaches an ordered list of steps to the client. PollSequence
// must be called alongside Poll to drive it.
func (c *Client) RunSequence(steps []SequenceStep) {
	c.seq = steps
	c.seqIdx = 0
}

// SequenceActive reports whether a sequence is attached and not yet done.
func (c *Client) SequenceActive() bool { return c.seq != nil }

// PollSequence advances the attached sequence by one step (spec.md §4.4:
// "poll advances the index on GotoNext, terminates on Done, otherwise
// re-invokes").
func (c *Client) PollSequence(now uint32) SequenceResult {
	if c.seq == nil || c.seqIdx >= len(c.seq) {
		c.seq = nil
		return SeqDone
	}
	switch c.seq[c.seqIdx](c, now) {
	case SeqGotoNext:
		c.seqIdx++
		if c.seqIdx >= len(c.seq) {
			c.seq = nil
			return SeqDone
		}
		return SeqRunning
	case SeqDone:
		c.seq = nil
		return SeqDone
	default:
		return SeqRunning
	}
}

// AwaitIdle is the helper named in spec.md §4.4: GotoNext once the
// low-level machine is Idle with no error, Done on error.
func AwaitIdle(c *Client, now uint32) SequenceResult {
	if c.state != StateIdle {
		return SeqRunning
	}
	if c.err != nil {
		return SeqDone
	}
	return SeqGotoNext
}

// NewDownloadSequence builds the built-in download flow of spec.md §4.4:
// requestDownload -> awaitIdle -> checkResponse -> prepareToTransfer ->
// transferDataLoop -> requestTransferExit -> awaitIdle. data is delivered
// in blocks sized to the server-granted maxNumberOfBlockLength.
func NewDownloadSequence(addr, size uint64, dataFormat uint8, addrBytes, sizeBytes int, data []byte) []SequenceStep {
	var blockLen uint32
	var counter uint8
	var sent uint64

	requestDownload := func(c *Client, now uint32) SequenceResult {
		if err := c.SendRequestDownload(addr, size, dataFormat, addrBytes, sizeBytes, now); err != nil {
			c.err = err
			return SeqDone
		}
		return SeqGotoNext
	}

	checkResponse := func(c *Client, now uint32) SequenceResult {
		resp := c.Response()
		if len(resp) < 2 || resp[0] != byte(SIDRequestDownload)+PositiveResponseOffset {
			c.err = ErrGeneric
			return SeqDone
		}
		lenSize := int(resp[1] >> 4)
		if lenSize < 1 || lenSize > 8 || len(resp) < 2+lenSize {
			c.err = ErrResponseTooShort
			return SeqDone
		}
		blockLen = uint32(readBE(resp[2 : 2+lenSize]))
		return SeqGotoNext
	}

	prepareToTransfer := func(c *Client, now uint32) SequenceResult {
		counter = 1
		sent = 0
		return SeqGotoNext
	}

	transferDataLoop := func(c *Client, now uint32) SequenceResult {
		if sent >= size {
			return SeqGotoNext
		}
		chunk := int(blockLen) - 2
		if chunk < 1 {
			chunk = 1
		}
		if remaining := int(size - sent); chunk > remaining {
			chunk = remaining
		}
		payload := data[sent : sent+uint64(chunk)]
		if err := c.SendTransferData(counter, payload, now); err != nil {
			c.err = err
			return SeqDone
		}
		sent += uint64(chunk)
		counter++
		return SeqRunning
	}

	requestTransferExit := func(c *Client, now uint32) SequenceResult {
		if err := c.SendRequestTransferExit(nil, now); err != nil {
			c.err = err
			return SeqDone
		}
		return SeqGotoNext
	}

	return []SequenceStep{
		requestDownload,
		AwaitIdle,
		checkResponse,
		prepareToTransfer,
		awaitIdleBetweenBlocks(transferDataLoop),
		requestTransferExit,
		AwaitIdle,
	}
}

// awaitIdleBetweenBlocks wraps a per-block step so the runner waits for the
// low-level machine to return to Idle (and checks for an error) before
// issuing the next block - mirrors AwaitIdle's gating but without
// advancing past the wrapped step until it itself signals GotoNext.
func awaitIdleBetweenBlocks(step SequenceStep) SequenceStep {
	return func(c *Client, now uint32) SequenceResult {
		if c.state != StateIdle {
			return SeqRunning
		}
		if c.err != nil {
			return SeqDone
		}
		return step(c, now)
	}
}
