package ntlm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestMessage(msgType MessageType) []byte {
	msg := make([]byte, 32)
	copy(msg[0:8], Signature)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(msgType))
	return msg
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(buildTestMessage(Negotiate)))
	assert.False(t, IsValid([]byte{'N', 'T', 'L', 'M'}))
	assert.False(t, IsValid([]byte{'X', 'X', 'X', 'X', 'X', 'X', 'X', 0, 1, 0, 0, 0}))
	assert.False(t, IsValid(nil))
}

func TestGetMessageType(t *testing.T) {
	assert.Equal(t, Negotiate, GetMessageType(buildTestMessage(Negotiate)))
	assert.Equal(t, Challenge, GetMessageType(buildTestMessage(Challenge)))
	assert.Equal(t, Authenticate, GetMessageType(buildTestMessage(Authenticate)))
	assert.Equal(t, MessageType(0), GetMessageType([]byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}))
}

func TestBuildChallenge_CarriesTheSuppliedChallengeVerbatim(t *testing.T) {
	serverChallenge := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	msg := BuildChallenge(serverChallenge, "DOMAIN", "SRV1", "", "")

	assert.Equal(t, Signature, msg[0:8])
	assert.Equal(t, Challenge, GetMessageType(msg))
	assert.Equal(t, serverChallenge[:], msg[challengeServerChalOffset:challengeServerChalOffset+8])
}

func TestBuildChallenge_SetsExpectedFlags(t *testing.T) {
	msg := BuildChallenge([8]byte{}, "DOMAIN", "SRV1", "", "")
	flags := NegotiateFlag(binary.LittleEndian.Uint32(msg[challengeFlagsOffset : challengeFlagsOffset+4]))

	for _, f := range []NegotiateFlag{FlagUnicode, FlagRequestTarget, FlagNTLM, FlagAlwaysSign, FlagTargetTypeServer, FlagExtendedSecurity, FlagTargetInfo} {
		assert.NotZero(t, flags&f)
	}
}

func TestBuildChallenge_TargetInfoEndsWithEOL(t *testing.T) {
	msg := BuildChallenge([8]byte{}, "DOMAIN", "SRV1", "dom.example.com", "srv1.example.com")

	infoLen := binary.LittleEndian.Uint16(msg[challengeTargetInfoLenOffset : challengeTargetInfoLenOffset+2])
	infoOff := binary.LittleEndian.Uint32(msg[challengeTargetInfoOffOffset : challengeTargetInfoOffOffset+4])
	info := msg[infoOff : infoOff+uint32(infoLen)]

	eol := info[len(info)-4:]
	assert.Equal(t, AvEOL, AvID(binary.LittleEndian.Uint16(eol[0:2])))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(eol[2:4]))
}

// buildAuthenticateMessage assembles a minimal Type-3 message the way a
// real client would lay one out, for ParseAuthenticate round-trip tests.
func buildAuthenticateMessage(domain, username, workstation string, lm, nt []byte, flags NegotiateFlag) []byte {
	domainB := encodeUTF16LE(domain)
	userB := encodeUTF16LE(username)
	wsB := encodeUTF16LE(workstation)

	offset := authBaseSize
	lmOff := offset
	offset += len(lm)
	ntOff := offset
	offset += len(nt)
	domainOff := offset
	offset += len(domainB)
	userOff := offset
	offset += len(userB)
	wsOff := offset
	offset += len(wsB)

	msg := make([]byte, offset)
	copy(msg[0:8], Signature)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(Authenticate))

	binary.LittleEndian.PutUint16(msg[authLmResponseLenOffset:], uint16(len(lm)))
	binary.LittleEndian.PutUint32(msg[authLmResponseOffOffset:], uint32(lmOff))
	copy(msg[lmOff:], lm)

	binary.LittleEndian.PutUint16(msg[authNtResponseLenOffset:], uint16(len(nt)))
	binary.LittleEndian.PutUint32(msg[authNtResponseOffOffset:], uint32(ntOff))
	copy(msg[ntOff:], nt)

	binary.LittleEndian.PutUint16(msg[authDomainNameLenOffset:], uint16(len(domainB)))
	binary.LittleEndian.PutUint32(msg[authDomainNameOffOffset:], uint32(domainOff))
	copy(msg[domainOff:], domainB)

	binary.LittleEndian.PutUint16(msg[authUserNameLenOffset:], uint16(len(userB)))
	binary.LittleEndian.PutUint32(msg[authUserNameOffOffset:], uint32(userOff))
	copy(msg[userOff:], userB)

	binary.LittleEndian.PutUint16(msg[authWorkstationLenOffset:], uint16(len(wsB)))
	binary.LittleEndian.PutUint32(msg[authWorkstationOffOffset:], uint32(wsOff))
	copy(msg[wsOff:], wsB)

	binary.LittleEndian.PutUint32(msg[authNegotiateFlagsOffset:], uint32(flags|FlagUnicode))

	return msg
}

func TestParseAuthenticate_RoundTripsNTLMv1Fields(t *testing.T) {
	lm := make([]byte, 24)
	nt := make([]byte, 24)
	for i := range nt {
		nt[i] = byte(i)
	}
	raw := buildAuthenticateMessage("DOM", "alice", "WS1", lm, nt, FlagNTLM)

	msg, err := ParseAuthenticate(raw)
	require.NoError(t, err)
	assert.Equal(t, "DOM", msg.Domain)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "WS1", msg.Workstation)
	assert.Equal(t, lm, msg.LmChallengeResponse)
	assert.Equal(t, nt, msg.NtChallengeResponse)
	assert.False(t, msg.IsAnonymous)
}

func TestParseAuthenticate_AnonymousFlagDetected(t *testing.T) {
	raw := buildAuthenticateMessage("", "", "", nil, nil, FlagAnonymous)
	msg, err := ParseAuthenticate(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsAnonymous)
}

func TestParseAuthenticate_TooShortIsError(t *testing.T) {
	_, err := ParseAuthenticate(make([]byte, 10))
	require.Error(t, err)
}

func TestIsNTLMv2_FalseForFixedLength24ByteV1Response(t *testing.T) {
	raw := buildAuthenticateMessage("DOM", "alice", "WS1", make([]byte, 24), make([]byte, 24), FlagNTLM)
	msg, err := ParseAuthenticate(raw)
	require.NoError(t, err)
	assert.False(t, msg.IsNTLMv2())
}

func TestIsNTLMv2_TrueForLongerVariableLengthResponse(t *testing.T) {
	raw := buildAuthenticateMessage("DOM", "alice", "WS1", make([]byte, 24), make([]byte, 48), FlagNTLM)
	msg, err := ParseAuthenticate(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsNTLMv2())
}

func TestIsNTLMv2_TrueWhenExtendedSecurityAnd128Negotiated(t *testing.T) {
	raw := buildAuthenticateMessage("DOM", "alice", "WS1", make([]byte, 24), make([]byte, 24), FlagExtendedSecurity|Flag128)
	msg, err := ParseAuthenticate(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsNTLMv2())
}
