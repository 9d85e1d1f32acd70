package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func decodeAll(t *testing.T, chunks ...[]byte) []*Message {
	t.Helper()
	d := NewDecoder()
	var out []*Message
	for _, c := range chunks {
		d.Feed(c)
		for {
			msg, err := d.Decode()
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if msg == nil {
				break
			}
			out = append(out, msg)
			d.Reset()
		}
	}
	return out
}

func TestDecodePing(t *testing.T) {
	for _, term := range [][]byte{[]byte("\n"), []byte("\r\n")} {
		msgs := decodeAll(t, append([]byte("PING"), term...))
		if len(msgs) != 1 || msgs[0].Kind != KindPing {
			t.Fatalf("terminator %q: got %+v", term, msgs)
		}
	}
}

func TestDecodePong(t *testing.T) {
	msgs := decodeAll(t, []byte("PONG\r\n"))
	if len(msgs) != 1 || msgs[0].Kind != KindPong {
		t.Fatalf("got %+v", msgs)
	}
}

func TestDecodePingBareCRFollowedByGarbageIsUnknownProtocol(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("PING\rX"))
	_, err := d.Decode()
	if !errors.Is(err, ErrUnknownProtocol) {
		t.Fatalf("want ErrUnknownProtocol, got %v", err)
	}
}

func TestDecodeSubTwoTokens(t *testing.T) {
	msgs := decodeAll(t, []byte("SUB foo 9\r\n"))
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.Kind != KindSub || m.Subject != "foo" || m.Sid != "9" || m.Queue != "" {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodeSubThreeTokensWithQueue(t *testing.T) {
	msgs := decodeAll(t, []byte("SUB foo  workers   9\r\n"))
	m := msgs[0]
	if m.Subject != "foo" || m.Queue != "workers" || m.Sid != "9" {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodeSubBadTokenCount(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("SUB foo\r\n"))
	_, err := d.Decode()
	if !errors.Is(err, ErrParse) {
		t.Fatalf("want ErrParse, got %v", err)
	}
}

func TestDecodeUnsubWithoutMax(t *testing.T) {
	msgs := decodeAll(t, []byte("UNSUB 9\r\n"))
	m := msgs[0]
	if m.Kind != KindUnsub || m.Sid != "9" || m.HasMaxMessages {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodeUnsubWithMax(t *testing.T) {
	msgs := decodeAll(t, []byte("UNSUB 9 2\r\n"))
	m := msgs[0]
	if !m.HasMaxMessages || m.MaxMessages != 2 {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodePubNoReply(t *testing.T) {
	msgs := decodeAll(t, []byte("PUB foo 11\r\nHello NATS!\r\n"))
	m := msgs[0]
	if m.Kind != KindPub || m.Subject != "foo" || m.ReplyTo != "" || !bytes.Equal(m.Payload, []byte("Hello NATS!")) {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodePubWithReply(t *testing.T) {
	msgs := decodeAll(t, []byte("PUB foo bar 5\r\nhello\r\n"))
	m := msgs[0]
	if m.ReplyTo != "bar" || !bytes.Equal(m.Payload, []byte("hello")) {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodePubZeroLengthPayload(t *testing.T) {
	msgs := decodeAll(t, []byte("PUB foo 0\r\n\r\n"))
	m := msgs[0]
	if len(m.Payload) != 0 {
		t.Fatalf("got %+v", m)
	}
}

func TestDecodePubLengthMismatchFails(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("PUB foo 11\r\nHello\r\n"))
	for {
		msg, err := d.Decode()
		if err != nil {
			return
		}
		if msg != nil {
			t.Fatalf("expected no message to complete, got %+v", msg)
		}
		break
	}
	// Feeding a terminator where payload bytes are still expected is
	// consumed as payload, not as a terminator, so the frame never
	// completes on the short input; additional garbage after the
	// declared length must fail.
	d.Feed([]byte("extra-garbage-that-is-not-the-terminator"))
	_, err := d.Decode()
	if err == nil {
		t.Fatalf("expected decode to eventually fail on malformed terminator")
	}
}

func TestDecodeChunkInvariance(t *testing.T) {
	frame := []byte("PUB foo.bar baz 5\r\nhello\r\n")
	whole := decodeAll(t, frame)

	for split := 1; split < len(frame); split++ {
		chunked := decodeAll(t, frame[:split], frame[split:])
		if len(chunked) != 1 || len(whole) != 1 {
			t.Fatalf("split %d: message counts differ", split)
		}
		a, b := whole[0], chunked[0]
		if a.Subject != b.Subject || a.ReplyTo != b.ReplyTo || !bytes.Equal(a.Payload, b.Payload) {
			t.Fatalf("split %d: %+v != %+v", split, a, b)
		}
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	frame := []byte("SUB a.b.c 7\r\n")
	d := NewDecoder()
	var got *Message
	for _, b := range frame {
		d.Feed([]byte{b})
		msg, err := d.Decode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg != nil {
			got = msg
		}
	}
	if got == nil || got.Subject != "a.b.c" || got.Sid != "7" {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeConnectParsesKnownBooleans(t *testing.T) {
	msgs := decodeAll(t, []byte(`CONNECT {"verbose":false,"ssl_require":true,"other":1}`+"\r\n"))
	m := msgs[0]
	if m.Kind != KindConnect {
		t.Fatalf("got %+v", m)
	}
	if !m.Connect.HasVerbose || m.Connect.Verbose {
		t.Fatalf("verbose: %+v", m.Connect)
	}
	if !m.Connect.HasSSLRequire || !m.Connect.SSLRequire {
		t.Fatalf("ssl_require: %+v", m.Connect)
	}
}

func TestDecodeConnectInvalidJSONFails(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("CONNECT {not json}\r\n"))
	_, err := d.Decode()
	if !errors.Is(err, ErrParse) {
		t.Fatalf("want ErrParse, got %v", err)
	}
}

func TestDecodeUnknownVerbFails(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("FLUB foo\r\n"))
	_, err := d.Decode()
	if !errors.Is(err, ErrParse) {
		t.Fatalf("want ErrParse, got %v", err)
	}
}

func TestDecodeSequenceOfFrames(t *testing.T) {
	input := []byte("SUB foo 1\r\nPING\r\nPUB foo 2\r\nhi\r\n")
	msgs := decodeAll(t, input)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages: %+v", len(msgs), msgs)
	}
	if msgs[0].Kind != KindSub || msgs[1].Kind != KindPing || msgs[2].Kind != KindPub {
		t.Fatalf("got kinds %v %v %v", msgs[0].Kind, msgs[1].Kind, msgs[2].Kind)
	}
}

func TestDecodePendingReturnsNilNilUntilMoreInput(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("SUB fo"))
	msg, err := d.Decode()
	if msg != nil || err != nil {
		t.Fatalf("expected pending, got msg=%+v err=%v", msg, err)
	}
	// calling again without feeding more is idempotent
	msg, err = d.Decode()
	if msg != nil || err != nil {
		t.Fatalf("expected still pending, got msg=%+v err=%v", msg, err)
	}
}

func TestDecodeReadyIsCachedUntilReset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("PING\r\n"))
	first, err := d.Decode()
	if err != nil || first == nil {
		t.Fatalf("unexpected: %v %v", first, err)
	}
	second, err := d.Decode()
	if err != nil || second != first {
		t.Fatalf("expected cached message repeated, got %+v %v", second, err)
	}
	d.Reset()
	third, err := d.Decode()
	if err != nil || third != nil {
		t.Fatalf("expected pending after reset, got %+v %v", third, err)
	}
}
