package rtc

import (
	pion "github.com/pion/webrtc/v4"
)

// DataChannel is the slice of the data-channel surface the negotiation
// core and the channel facade use.
type DataChannel interface {
	Label() string
	ReadyState() pion.DataChannelState
	Send(data []byte) error
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(msg pion.DataChannelMessage))
	Close() error
}

// PeerConn is the slice of the peer-connection surface the negotiation
// state machine drives. The pion adapter is the only runtime
// implementation; protocol tests run against a fake.
type PeerConn interface {
	// CreateDataChannel creates a local channel with the given label.
	CreateDataChannel(label string) (DataChannel, error)

	// CreateOffer generates an offer and applies it as the local
	// description.
	CreateOffer() (pion.SessionDescription, error)

	// CreateAnswer generates an answer from the applied remote offer
	// and applies it as the local description.
	CreateAnswer() (pion.SessionDescription, error)

	// SetRemoteDescription applies the peer's descriptor.
	SetRemoteDescription(desc pion.SessionDescription) error

	// AddICECandidate hands a remote network-path candidate to the
	// transport.
	AddICECandidate(candidate pion.ICECandidateInit) error

	OnICECandidate(f func(candidate *pion.ICECandidate))
	OnConnectionStateChange(f func(state pion.PeerConnectionState))
	OnDataChannel(f func(channel DataChannel))

	Close() error
}

// pionConn adapts *pion.PeerConnection to PeerConn.
type pionConn struct {
	pc *pion.PeerConnection
}

// Wrap adapts a pion peer connection for the state machine.
func Wrap(pc *pion.PeerConnection) PeerConn {
	return &pionConn{pc: pc}
}

func (p *pionConn) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &pion.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return nil, NewError("create data channel", err)
	}
	return dc, nil
}

func (p *pionConn) CreateOffer() (pion.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return pion.SessionDescription{}, NewError("create offer", err)
	}

	if err = p.pc.SetLocalDescription(offer); err != nil {
		return pion.SessionDescription{}, NewError("set local description", err)
	}

	return *p.pc.LocalDescription(), nil
}

func (p *pionConn) CreateAnswer() (pion.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return pion.SessionDescription{}, NewError("create answer", err)
	}

	if err = p.pc.SetLocalDescription(answer); err != nil {
		return pion.SessionDescription{}, NewError("set local description", err)
	}

	return *p.pc.LocalDescription(), nil
}

func (p *pionConn) SetRemoteDescription(desc pion.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionConn) AddICECandidate(candidate pion.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionConn) OnICECandidate(f func(*pion.ICECandidate)) {
	p.pc.OnICECandidate(f)
}

func (p *pionConn) OnConnectionStateChange(f func(pion.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

func (p *pionConn) OnDataChannel(f func(DataChannel)) {
	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		f(dc)
	})
}

func (p *pionConn) Close() error {
	return p.pc.Close()
}
