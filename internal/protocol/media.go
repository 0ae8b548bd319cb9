package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// MediaOffer is the realtime media negotiation request body spec.md §6
// names as one of the three realtime-media message kinds: the client's
// SDP-like offer for a session.
type MediaOffer struct {
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
}

// MediaAnswer is the realtime media negotiation response body: the
// server's SDP answer, or an error if negotiation failed.
type MediaAnswer struct {
	SDP   string `json:"sdp,omitempty"`
	Error string `json:"error,omitempty"`
}

// MediaICECandidateMessage carries one trickled ICE candidate for a
// session, spec.md §6's third realtime-media message kind. Candidate
// holds the raw standard wire-form string.
type MediaICECandidateMessage struct {
	SessionID string `json:"session_id"`
	Candidate string `json:"candidate"`
}

// ICECandidate is a decoded standard-form ICE candidate line (spec.md §6):
// "candidate:<foundation> <component> <protocol> <priority> <ip> <port>
// typ <type> [raddr <addr> rport <port>] [tcptype <type>]".
type ICECandidate struct {
	Foundation     string
	Component      int
	Protocol       string
	Priority       uint32
	IP             string
	Port           int
	Type           string
	RelatedAddress string
	RelatedPort    int
	TCPType        string
}

// ParseICECandidate decodes the standard candidate string form, tolerating
// an optional leading "candidate:" prefix and the optional trailing
// raddr/rport/tcptype attribute pairs.
func ParseICECandidate(raw string) (ICECandidate, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "candidate:")
	fields := strings.Fields(s)
	if len(fields) < 8 || fields[6] != "typ" {
		return ICECandidate{}, fmt.Errorf("protocol: malformed ICE candidate %q", raw)
	}

	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return ICECandidate{}, fmt.Errorf("protocol: ICE candidate component: %w", err)
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return ICECandidate{}, fmt.Errorf("protocol: ICE candidate priority: %w", err)
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return ICECandidate{}, fmt.Errorf("protocol: ICE candidate port: %w", err)
	}

	cand := ICECandidate{
		Foundation: fields[0],
		Component:  component,
		Protocol:   fields[2],
		Priority:   uint32(priority),
		IP:         fields[4],
		Port:       port,
		Type:       fields[7],
	}
	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			cand.RelatedAddress = fields[i+1]
		case "rport":
			if v, err := strconv.Atoi(fields[i+1]); err == nil {
				cand.RelatedPort = v
			}
		case "tcptype":
			cand.TCPType = fields[i+1]
		}
	}
	return cand, nil
}
