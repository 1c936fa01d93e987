package socks5

import (
	"errors"
	"fmt"
	"testing"
)

func TestDescribe(t *testing.T) {
	want := map[byte]string{
		0x01: "General failure",
		0x02: "Rule denied",
		0x03: "Network unreachable",
		0x04: "Host unreachable",
		0x05: "Connection refused",
		0x06: "TTL expired",
		0x07: "Command not supported",
		0x08: "Address type not supported",
	}

	for code := 0; code <= 0xff; code++ {
		w, ok := want[byte(code)]
		if !ok {
			w = fmt.Sprintf("Unknown status code %d", code)
		}
		if got := Describe(byte(code)); got != w {
			t.Fatalf("code %d: got %q want %q", code, got, w)
		}
	}
}

func TestReplyErrorIsConnect(t *testing.T) {
	var err error = &ReplyError{Code: 0x05}
	if !errors.Is(err, ErrConnect) {
		t.Fatal("ReplyError should match ErrConnect")
	}
	if errors.Is(err, ErrProtocol) {
		t.Fatal("ReplyError should not match ErrProtocol")
	}
	if got := err.Error(); got != "socks5 connect failed: Connection refused" {
		t.Fatalf("got %q", got)
	}
}
