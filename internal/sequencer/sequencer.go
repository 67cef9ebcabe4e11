package sequencer

import "sync/atomic"

// Sequencer hands out monotonically increasing order ids and outbound trade
// sequence numbers. Both counters start at zero, so the first value issued is 1.
// One sequencer is shared by every agent for the lifetime of a coordinator.
type Sequencer struct {
	inboundSeq  atomic.Uint64
	outboundSeq atomic.Uint64
}

// New creates a sequencer with both counters at zero.
func New() *Sequencer {
	return &Sequencer{}
}

// NextOrderID returns the next order id.
func (s *Sequencer) NextOrderID() uint64 {
	return s.inboundSeq.Add(1)
}

// NextTradeSeq returns the next outbound trade sequence number.
func (s *Sequencer) NextTradeSeq() uint64 {
	return s.outboundSeq.Add(1)
}

// CurrentInboundSeq returns the last order id issued.
func (s *Sequencer) CurrentInboundSeq() uint64 {
	return s.inboundSeq.Load()
}

// CurrentOutboundSeq returns the last trade sequence number issued.
func (s *Sequencer) CurrentOutboundSeq() uint64 {
	return s.outboundSeq.Load()
}
