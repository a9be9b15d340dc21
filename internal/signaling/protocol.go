// Package signaling implements the lobby signaling protocol: one JSON object
// per websocket frame, {"type": <int>, "id": <int>, "data": <string>}.
//
// The codec is shared by the client and the signaling endpoint server.
package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/spatialvoice/internal/core"
)

type MessageType int

const (
	MsgJoin MessageType = iota
	MsgID
	MsgPeerConnect
	MsgPeerDisconnect
	MsgOffer
	MsgAnswer
	MsgCandidate
	MsgSeal
)

var messageNames = [...]string{"JOIN", "ID", "PEER_CONNECT", "PEER_DISCONNECT", "OFFER", "ANSWER", "CANDIDATE", "SEAL"}

func (t MessageType) String() string {
	if t.Valid() {
		return messageNames[t]
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

func (t MessageType) Valid() bool { return t >= MsgJoin && t <= MsgSeal }

// JOIN id values request the lobby topology.
const (
	JoinMesh = 0
	JoinStar = 1
)

var ErrMalformed = errors.New("malformed signaling message")

// Frame is one decoded wire message.
type Frame struct {
	Type MessageType
	ID   int
	Data string
}

type wireFrame struct {
	Type int    `json:"type"`
	ID   int    `json:"id"`
	Data string `json:"data"`
}

func EncodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(wireFrame{Type: int(f.Type), ID: f.ID, Data: f.Data})
}

// DecodeFrame accepts a frame only if it is a JSON object with a numeric
// type, a numeric id and a string data. type and id may also be numeric
// strings.
func DecodeFrame(raw []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	typeRaw, okType := fields["type"]
	idRaw, okID := fields["id"]
	dataRaw, okData := fields["data"]
	if !okType || !okID || !okData {
		return Frame{}, fmt.Errorf("%w: missing type, id or data", ErrMalformed)
	}

	typ, err := decodeInt(typeRaw)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}
	id, err := decodeInt(idRaw)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: id: %v", ErrMalformed, err)
	}
	if isNull(dataRaw) {
		return Frame{}, fmt.Errorf("%w: data is null", ErrMalformed)
	}
	var data string
	if err := json.Unmarshal(dataRaw, &data); err != nil {
		return Frame{}, fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}

	f := Frame{Type: MessageType(typ), ID: id, Data: data}
	if !f.Type.Valid() {
		return Frame{}, fmt.Errorf("%w: unknown type %d", ErrMalformed, typ)
	}
	return f, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, errors.New("null")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.Atoi(strings.TrimSpace(s))
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// ParseCandidate splits a CANDIDATE payload "\n<mid>\n<index>\n<sdp>".
// After dropping the leading empty segment exactly three non-empty segments
// must remain and the middle one must be an integer.
func ParseCandidate(data string) (core.Candidate, error) {
	parts := strings.Split(data, "\n")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	if len(parts) != 3 {
		return core.Candidate{}, fmt.Errorf("%w: candidate has %d segments", ErrMalformed, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return core.Candidate{}, fmt.Errorf("%w: empty candidate segment", ErrMalformed)
		}
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return core.Candidate{}, fmt.Errorf("%w: candidate index %q", ErrMalformed, parts[1])
	}
	return core.Candidate{Mid: parts[0], Index: index, SDP: parts[2]}, nil
}

func FormatCandidate(c core.Candidate) string {
	return fmt.Sprintf("\n%s\n%d\n%s", c.Mid, c.Index, c.SDP)
}
