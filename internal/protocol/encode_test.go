package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeInfo(t *testing.T) {
	raw, err := EncodeInfo(ServerInfo{
		ServerID:     "srv1",
		ServerName:   "natsd",
		Version:      "0.1.0",
		Host:         "0.0.0.0",
		Port:         4222,
		AuthRequired: false,
		SSLRequired:  false,
		MaxPayload:   1048576,
		Proto:        1,
		ClientID:     7,
		ClientIP:     "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("INFO ")) || !bytes.HasSuffix(raw, []byte("\r\n")) {
		t.Fatalf("malformed frame: %q", raw)
	}

	body := raw[len("INFO ") : len(raw)-2]
	var decoded ServerInfo
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.ClientID != 7 || decoded.Port != 4222 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestEncodeConstantFrames(t *testing.T) {
	cases := map[string][]byte{
		"PING": PingFrame,
		"PONG": PongFrame,
		"+OK":  OKFrame,
	}
	for want, got := range cases {
		if !bytes.HasPrefix(got, []byte(want)) || !bytes.HasSuffix(got, []byte("\r\n")) {
			t.Fatalf("%s frame malformed: %q", want, got)
		}
	}
}

func TestErrFrame(t *testing.T) {
	got := ErrFrame("Maximum Payload Exceeded")
	want := "-ERR 'Maximum Payload Exceeded'\r\n"
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildMsgFrameNoReply(t *testing.T) {
	prefix, suffix := BuildMsgFrame("foo", "", []byte("Hello NATS!"))
	frame := AppendTo(nil, prefix, "9", suffix)
	if string(frame) != "MSG foo 9 11\r\nHello NATS!\r\n" {
		t.Fatalf("got %q", frame)
	}
}

func TestBuildMsgFrameWithReply(t *testing.T) {
	prefix, suffix := BuildMsgFrame("foo", "bar", []byte("hello"))
	frame := AppendTo(nil, prefix, "42", suffix)
	if string(frame) != "MSG foo 42 bar 5\r\nhello\r\n" {
		t.Fatalf("got %q", frame)
	}
}

func TestBuildMsgFrameReusedAcrossSubscribers(t *testing.T) {
	prefix, suffix := BuildMsgFrame("foo", "", []byte("hi"))
	a := AppendTo(nil, prefix, "1", suffix)
	b := AppendTo(nil, prefix, "2", suffix)
	if string(a) != "MSG foo 1 2\r\nhi\r\n" || string(b) != "MSG foo 2 2\r\nhi\r\n" {
		t.Fatalf("got %q / %q", a, b)
	}
}
