// Package dnsutil provides the small pieces of DNS wire-format handling
// the proxy needs directly: extracting the cache-key question, patching the
// transaction ID on a raw message, and reading the minimum answer TTL out of
// an upstream response. Full parsing/encoding is delegated to
// github.com/miekg/dns; these helpers operate on the raw byte slice where
// doing so avoids a pointless parse/marshal round-trip on the hot path.
package dnsutil

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Question is the (QNAME, QTYPE, QCLASS) tuple used as the cache key. QNAME
// is normalized to lowercase so that case differs between clients never
// produce distinct cache entries.
type Question struct {
	Name   string
	Qtype  uint16
	Qclass uint16
}

// ErrMalformed is returned when a datagram cannot be parsed far enough to
// extract a transaction ID and question.
var ErrMalformed = fmt.Errorf("dnsutil: malformed DNS message")

// ExtractQuestion parses just enough of msg to return the transaction ID and
// the first question record. Returns ErrMalformed for anything that doesn't
// decode as a DNS message with at least one question.
func ExtractQuestion(msg []byte) (txid uint16, q Question, err error) {
	m := new(dns.Msg)
	if unpackErr := m.Unpack(msg); unpackErr != nil {
		return 0, Question{}, fmt.Errorf("%w: %v", ErrMalformed, unpackErr)
	}
	if len(m.Question) == 0 {
		return 0, Question{}, fmt.Errorf("%w: no question section", ErrMalformed)
	}
	first := m.Question[0]
	return m.Id, Question{
		Name:   strings.ToLower(strings.TrimSuffix(first.Name, ".")),
		Qtype:  first.Qtype,
		Qclass: first.Qclass,
	}, nil
}

// PatchTransactionID returns a copy of msg with its first two wire-format
// octets (the transaction ID) overwritten with txid. The input is never
// mutated in place: cached response bytes are shared across readers and
// callers must not corrupt another reader's view of them.
func PatchTransactionID(msg []byte, txid uint16) []byte {
	if len(msg) < 2 {
		return msg
	}
	if msg[0] == byte(txid>>8) && msg[1] == byte(txid) {
		out := make([]byte, len(msg))
		copy(out, msg)
		return out
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	binary.BigEndian.PutUint16(out[0:2], txid)
	return out
}

// MinAnswerTTL returns the smallest TTL (in seconds) among the answer
// records of a wire-format DNS response, and whether any answer record was
// present at all. A malformed response is treated as "no answers".
func MinAnswerTTL(msg []byte) (ttl uint32, hasAnswers bool) {
	m := new(dns.Msg)
	if err := m.Unpack(msg); err != nil {
		return 0, false
	}
	if len(m.Answer) == 0 {
		return 0, false
	}
	min := m.Answer[0].Header().Ttl
	for _, rr := range m.Answer[1:] {
		if t := rr.Header().Ttl; t < min {
			min = t
		}
	}
	return min, true
}
