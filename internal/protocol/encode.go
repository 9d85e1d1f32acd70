package protocol

import (
	"encoding/json"
	"strconv"
)

// Constant server-originated frames. All frames terminate with CRLF,
// regardless of what terminator the client itself used.
var (
	PingFrame = []byte("PING\r\n")
	PongFrame = []byte("PONG\r\n")
	OKFrame   = []byte("+OK\r\n")
)

// ErrFrame formats a fatal protocol error, e.g. "Maximum Payload Exceeded".
func ErrFrame(reason string) []byte {
	b := make([]byte, 0, len(reason)+8)
	b = append(b, "-ERR '"...)
	b = append(b, reason...)
	b = append(b, "'\r\n"...)
	return b
}

// ServerInfo holds the fields advertised in the INFO frame sent immediately
// after accept.
type ServerInfo struct {
	ServerID     string `json:"server_id"`
	ServerName   string `json:"server_name"`
	Version      string `json:"version"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	AuthRequired bool   `json:"auth_required"`
	SSLRequired  bool   `json:"ssl_required"`
	MaxPayload   int64  `json:"max_payload"`
	Proto        int    `json:"proto"`
	ClientID     uint64 `json:"client_id"`
	ClientIP     string `json:"client_ip"`
}

// EncodeInfo renders the INFO frame for one newly accepted connection.
func EncodeInfo(info ServerInfo) ([]byte, error) {
	body, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+8)
	out = append(out, "INFO "...)
	out = append(out, body...)
	out = append(out, "\r\n"...)
	return out, nil
}

// MsgPrefix and MsgSuffix split the MSG frame so a single publish builds its
// reusable pieces once and each subscriber only pays for appending its own
// sid between them, per the per-delivery frame-reuse note in the protocol's
// encoder contract.
//
//	MSG <subject> <sid> [reply] <nbytes>\r\n<payload>\r\n
//	      \_____ prefix _____/ ^sid^ \__________ suffix __________/
type MsgPrefix struct {
	bytes []byte
}

type MsgSuffix struct {
	bytes []byte
}

// BuildMsgFrame precomputes the prefix (up to and including the trailing
// space after "MSG <subject> ") and suffix (optional reply, byte count,
// CRLF, payload, CRLF) for one published message, to be reused across every
// matching subscriber.
func BuildMsgFrame(subject, reply string, payload []byte) (MsgPrefix, MsgSuffix) {
	prefix := make([]byte, 0, len(subject)+8)
	prefix = append(prefix, "MSG "...)
	prefix = append(prefix, subject...)
	prefix = append(prefix, ' ')

	suffix := make([]byte, 0, len(reply)+len(payload)+16)
	if reply != "" {
		suffix = append(suffix, reply...)
		suffix = append(suffix, ' ')
	}
	suffix = append(suffix, strconv.Itoa(len(payload))...)
	suffix = append(suffix, "\r\n"...)
	suffix = append(suffix, payload...)
	suffix = append(suffix, "\r\n"...)

	return MsgPrefix{bytes: prefix}, MsgSuffix{bytes: suffix}
}

// AppendTo writes the full MSG frame for the given sid into dst.
func AppendTo(dst []byte, prefix MsgPrefix, sid string, suffix MsgSuffix) []byte {
	dst = append(dst, prefix.bytes...)
	dst = append(dst, sid...)
	dst = append(dst, ' ')
	dst = append(dst, suffix.bytes...)
	return dst
}
