package dnsutil_test

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/nullbind/dohgate/internal/dnsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildQuery(name string, qtype uint16, id uint16) []byte {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Id = id
	b, err := m.Pack()
	if err != nil {
		panic(err)
	}
	return b
}

func buildAnswer(t *testing.T, name string, ttl uint32, ttls ...uint32) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Response = true
	all := append([]uint32{ttl}, ttls...)
	for _, v := range all {
		rr := &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: v},
			A:   []byte{1, 2, 3, 4},
		}
		m.Answer = append(m.Answer, rr)
	}
	b, err := m.Pack()
	require.NoError(t, err)
	return b
}

func TestExtractQuestionNormalizesCase(t *testing.T) {
	msg := buildQuery("Example.COM.", dns.TypeA, 0x1234)
	txid, q, err := dnsutil.ExtractQuestion(msg)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), txid)
	assert.Equal(t, "example.com", q.Name)
	assert.Equal(t, dns.TypeA, q.Qtype)
	assert.Equal(t, uint16(dns.ClassINET), q.Qclass)
}

func TestExtractQuestionMalformed(t *testing.T) {
	_, _, err := dnsutil.ExtractQuestion([]byte{1, 2, 3})
	assert.ErrorIs(t, err, dnsutil.ErrMalformed)
}

func TestPatchTransactionIDDoesNotMutateInput(t *testing.T) {
	msg := buildQuery("example.com", dns.TypeA, 0x0001)
	orig := append([]byte(nil), msg...)

	patched := dnsutil.PatchTransactionID(msg, 0xABCD)

	assert.Equal(t, orig, msg, "input slice must not be mutated")
	assert.Equal(t, byte(0xAB), patched[0])
	assert.Equal(t, byte(0xCD), patched[1])
}

func TestMinAnswerTTL(t *testing.T) {
	msg := buildAnswer(t, "example.com", 300, 60, 900)
	ttl, ok := dnsutil.MinAnswerTTL(msg)
	require.True(t, ok)
	assert.Equal(t, uint32(60), ttl)
}

func TestMinAnswerTTLNoAnswers(t *testing.T) {
	msg := buildQuery("example.com", dns.TypeA, 1)
	_, ok := dnsutil.MinAnswerTTL(msg)
	assert.False(t, ok)
}
