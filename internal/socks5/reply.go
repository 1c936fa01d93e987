package socks5

import (
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

var replyDescriptions = map[byte]string{
	txsocks5.RepServerFailure:       "General failure",
	txsocks5.RepNotAllowed:          "Rule denied",
	txsocks5.RepNetworkUnreachable:  "Network unreachable",
	txsocks5.RepHostUnreachable:     "Host unreachable",
	txsocks5.RepConnectionRefused:   "Connection refused",
	txsocks5.RepTTLExpired:          "TTL expired",
	txsocks5.RepCommandNotSupported: "Command not supported",
	txsocks5.RepAddressNotSupported: "Address type not supported",
}

// Describe returns the human readable meaning of a CONNECT reply code.
func Describe(code byte) string {
	if s, ok := replyDescriptions[code]; ok {
		return s
	}
	return "Unknown status code " + strconv.Itoa(int(code))
}
