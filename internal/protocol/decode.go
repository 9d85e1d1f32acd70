package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrParse is returned when a frame's leading verb or a token count inside
// it does not match the wire grammar. It is always fatal to the connection.
var ErrParse = errors.New("protocol: parse error")

// ErrUnknownProtocol is returned when PING or PONG is recognized up to its
// final letter but its terminator bytes are neither LF nor CRLF.
var ErrUnknownProtocol = errors.New("protocol: unknown protocol")

// maxControlLine bounds the non-payload portion of a frame (CONNECT body,
// SUB/UNSUB tokens, PUB header line) so a client can't grow the decoder's
// scratch buffer without limit before the verb is even known to be PUB.
const maxControlLine = 4096

type state int

const (
	stateStart state = iota

	// CONNECT
	stateC
	stateCO
	stateCON
	stateCONN
	stateCONNE
	stateCONNEC
	stateConnectVerb
	stateConnectLine

	// SUB
	stateS
	stateSU
	stateSubVerb
	stateSubLine

	// UNSUB
	stateU
	stateUN
	stateUNS
	stateUNSU
	stateUnsubVerb
	stateUnsubLine

	// PUB
	stateP
	statePU
	statePubVerb
	statePubHeaderLine
	statePubPayload
	statePubTermCR
	statePubTermLF

	// PING
	statePI
	statePIN
	statePingVerb
	statePingCR

	// PONG
	statePO
	statePON
	statePongVerb
	statePongCR
)

// Decoder is a streaming, resumable parser for the NATS client protocol. It
// never re-scans bytes it has already examined: Feed appends to an internal
// buffer, and Decode resumes from wherever the state machine last left off.
//
// Decode's output Messages copy every field out of the decoder's scratch
// buffers, so they stay valid across later Feed/Reset calls. This trades a
// per-message allocation for freedom from the lifetime bookkeeping a
// zero-copy design would need in a language without a borrow checker.
type Decoder struct {
	buf    []byte
	cursor int

	state state

	// line accumulates the printable bytes of whichever free-form span is
	// currently being collected (CONNECT body, SUB/UNSUB tokens, PUB header).
	line      []byte
	pendingCR bool

	pubSubject string
	pubReply   string
	payload    []byte
	payloadLen int

	ready *Message
}

// NewDecoder returns a Decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{state: stateStart}
}

// Feed appends bytes to the decoder's internal buffer. It never blocks and
// never parses; parsing happens in Decode.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Reset discards the portion of the buffer consumed by the most recently
// produced message and returns the decoder to its initial state, ready to
// parse the next frame. Callers must finish using a Ready message before
// calling Reset (Reset does not invalidate already-copied Message fields,
// but reuses the decoder's own scratch buffers).
func (d *Decoder) Reset() {
	if d.cursor > 0 {
		d.buf = append(d.buf[:0], d.buf[d.cursor:]...)
		d.cursor = 0
	}
	d.state = stateStart
	d.line = d.line[:0]
	d.pendingCR = false
	d.pubSubject = ""
	d.pubReply = ""
	d.payload = nil
	d.payloadLen = 0
	d.ready = nil
}

// Decode consumes as much of the buffered input as it takes to produce one
// message. It returns (msg, nil) when a frame completed, (nil, nil) when
// more input is needed, and (nil, err) when the input is malformed — a
// fatal condition for the connection. Decode is idempotent while pending:
// calling it again without an intervening Feed returns (nil, nil) again. If
// a message is already complete and Reset has not been called, Decode
// returns that same message again without consuming further input.
func (d *Decoder) Decode() (*Message, error) {
	if d.ready != nil {
		return d.ready, nil
	}

	for d.cursor < len(d.buf) {
		b := d.buf[d.cursor]
		d.cursor++

		switch d.state {
		case stateStart:
			switch b {
			case 'C':
				d.state = stateC
			case 'S':
				d.state = stateS
			case 'U':
				d.state = stateU
			case 'P':
				d.state = stateP
			default:
				return nil, ErrParse
			}

		case stateC:
			if b != 'O' {
				return nil, ErrParse
			}
			d.state = stateCO
		case stateCO:
			if b != 'N' {
				return nil, ErrParse
			}
			d.state = stateCON
		case stateCON:
			if b != 'N' {
				return nil, ErrParse
			}
			d.state = stateCONN
		case stateCONN:
			if b != 'E' {
				return nil, ErrParse
			}
			d.state = stateCONNE
		case stateCONNE:
			if b != 'C' {
				return nil, ErrParse
			}
			d.state = stateCONNEC
		case stateCONNEC:
			if b != 'T' {
				return nil, ErrParse
			}
			d.state = stateConnectVerb
		case stateConnectVerb:
			if b != ' ' && b != '\t' {
				return nil, ErrParse
			}
			d.state = stateConnectLine

		case stateS:
			if b != 'U' {
				return nil, ErrParse
			}
			d.state = stateSU
		case stateSU:
			if b != 'B' {
				return nil, ErrParse
			}
			d.state = stateSubVerb
		case stateSubVerb:
			if b != ' ' && b != '\t' {
				return nil, ErrParse
			}
			d.state = stateSubLine

		case stateU:
			if b != 'N' {
				return nil, ErrParse
			}
			d.state = stateUN
		case stateUN:
			if b != 'S' {
				return nil, ErrParse
			}
			d.state = stateUNS
		case stateUNS:
			if b != 'U' {
				return nil, ErrParse
			}
			d.state = stateUNSU
		case stateUNSU:
			if b != 'B' {
				return nil, ErrParse
			}
			d.state = stateUnsubVerb
		case stateUnsubVerb:
			if b != ' ' && b != '\t' {
				return nil, ErrParse
			}
			d.state = stateUnsubLine

		case stateP:
			switch b {
			case 'U':
				d.state = statePU
			case 'I':
				d.state = statePI
			case 'O':
				d.state = statePO
			default:
				return nil, ErrParse
			}
		case statePU:
			if b != 'B' {
				return nil, ErrParse
			}
			d.state = statePubVerb
		case statePubVerb:
			if b != ' ' && b != '\t' {
				return nil, ErrParse
			}
			d.state = statePubHeaderLine

		case statePI:
			if b != 'N' {
				return nil, ErrParse
			}
			d.state = statePIN
		case statePIN:
			if b != 'G' {
				return nil, ErrParse
			}
			d.state = statePingVerb
		case statePingVerb:
			switch b {
			case '\n':
				return d.complete(&Message{Kind: KindPing})
			case '\r':
				d.state = statePingCR
			default:
				return nil, ErrUnknownProtocol
			}
		case statePingCR:
			if b != '\n' {
				return nil, ErrUnknownProtocol
			}
			return d.complete(&Message{Kind: KindPing})

		case statePO:
			if b != 'N' {
				return nil, ErrParse
			}
			d.state = statePON
		case statePON:
			if b != 'G' {
				return nil, ErrParse
			}
			d.state = statePongVerb
		case statePongVerb:
			switch b {
			case '\n':
				return d.complete(&Message{Kind: KindPong})
			case '\r':
				d.state = statePongCR
			default:
				return nil, ErrUnknownProtocol
			}
		case statePongCR:
			if b != '\n' {
				return nil, ErrUnknownProtocol
			}
			return d.complete(&Message{Kind: KindPong})

		case stateConnectLine, stateSubLine, stateUnsubLine, statePubHeaderLine:
			msg, err := d.collectLine(b)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				return d.complete(msg)
			}

		case statePubPayload:
			d.payload = append(d.payload, b)
			if len(d.payload) == d.payloadLen {
				d.state = statePubTermCR
			}

		case statePubTermCR:
			switch b {
			case '\r':
				d.state = statePubTermLF
			case '\n':
				return d.complete(d.finishPub())
			default:
				return nil, ErrParse
			}

		case statePubTermLF:
			if b != '\n' {
				return nil, ErrParse
			}
			return d.complete(d.finishPub())

		default:
			return nil, ErrParse
		}
	}

	return nil, nil
}

// collectLine accumulates bytes for CONNECT/SUB/UNSUB/PUB-header spans,
// tolerating a bare '\r' by holding it until the following byte is known: a
// '\n' completes the line (CRLF), anything else means the '\r' was data and
// is pushed back into the line along with the new byte. This mirrors the
// original decoder's handling of stray carriage returns inside free-form
// parameter spans.
func (d *Decoder) collectLine(b byte) (*Message, error) {
	if d.pendingCR {
		d.pendingCR = false
		if b == '\n' {
			return d.finishLine()
		}
		d.line = append(d.line, '\r', b)
		if len(d.line) > maxControlLine {
			return nil, ErrParse
		}
		return nil, nil
	}

	switch b {
	case '\r':
		d.pendingCR = true
		return nil, nil
	case '\n':
		return d.finishLine()
	default:
		d.line = append(d.line, b)
		if len(d.line) > maxControlLine {
			return nil, ErrParse
		}
		return nil, nil
	}
}

func (d *Decoder) finishLine() (*Message, error) {
	switch d.state {
	case stateConnectLine:
		return d.finishConnect()
	case stateSubLine:
		return d.finishSub()
	case stateUnsubLine:
		return d.finishUnsub()
	case statePubHeaderLine:
		return nil, d.finishPubHeader()
	default:
		return nil, ErrParse
	}
}

func (d *Decoder) finishConnect() (*Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(d.line, &raw); err != nil {
		return nil, ErrParse
	}

	var opts ConnectOptions
	if v, ok := raw["ssl_require"].(bool); ok {
		opts.SSLRequire = v
		opts.HasSSLRequire = true
	}
	if v, ok := raw["verbose"].(bool); ok {
		opts.Verbose = v
		opts.HasVerbose = true
	}

	return &Message{Kind: KindConnect, Connect: opts}, nil
}

func (d *Decoder) finishSub() (*Message, error) {
	fields := bytes.Fields(d.line)
	switch len(fields) {
	case 2:
		return &Message{Kind: KindSub, Subject: string(fields[0]), Sid: string(fields[1])}, nil
	case 3:
		return &Message{Kind: KindSub, Subject: string(fields[0]), Queue: string(fields[1]), Sid: string(fields[2])}, nil
	default:
		return nil, ErrParse
	}
}

func (d *Decoder) finishUnsub() (*Message, error) {
	fields := bytes.Fields(d.line)
	switch len(fields) {
	case 1:
		return &Message{Kind: KindUnsub, Sid: string(fields[0])}, nil
	case 2:
		max, err := strconv.Atoi(string(fields[1]))
		if err != nil || max < 0 {
			return nil, ErrParse
		}
		return &Message{Kind: KindUnsub, Sid: string(fields[0]), MaxMessages: max, HasMaxMessages: true}, nil
	default:
		return nil, ErrParse
	}
}

// finishPubHeader parses the PUB header line ("<subject> [reply] <nbytes>")
// and switches the state machine into exact-count payload collection.
func (d *Decoder) finishPubHeader() error {
	fields := bytes.Fields(d.line)

	var subject, reply string
	var nbytesField []byte

	switch len(fields) {
	case 2:
		subject = string(fields[0])
		nbytesField = fields[1]
	case 3:
		subject = string(fields[0])
		reply = string(fields[1])
		nbytesField = fields[2]
	default:
		return ErrParse
	}

	n, err := strconv.Atoi(string(nbytesField))
	if err != nil || n < 0 {
		return ErrParse
	}

	d.pubSubject = subject
	d.pubReply = reply
	d.payloadLen = n
	d.payload = make([]byte, 0, n)

	if n == 0 {
		d.state = statePubTermCR
	} else {
		d.state = statePubPayload
	}
	return nil
}

func (d *Decoder) finishPub() *Message {
	msg := &Message{
		Kind:    KindPub,
		Subject: d.pubSubject,
		ReplyTo: d.pubReply,
		Payload: append([]byte(nil), d.payload...),
	}
	d.pubSubject = ""
	d.pubReply = ""
	return msg
}

// complete finalizes the current frame: it caches the message so repeated
// Decode calls before Reset return the same value, and returns it.
func (d *Decoder) complete(msg *Message) (*Message, error) {
	d.ready = msg
	d.line = d.line[:0]
	return msg, nil
}
