// Package ntlm implements NTLM message parsing and building for a passthru
// authenticator: this server never validates credentials itself, it only
// speaks the NTLMSSP wire format well enough to relay the exchange to a
// remote authority. [MS-NLMP] is the reference for every offset below.
package ntlm

import (
	"bytes"
	"encoding/binary"
	"os"
	"strings"
	"time"
	"unicode/utf16"
)

// MessageType identifies the three messages in the NTLM handshake.
// [MS-NLMP] Section 2.2.1
type MessageType uint32

const (
	Negotiate    MessageType = 1
	Challenge    MessageType = 2
	Authenticate MessageType = 3
)

// Signature is the 8-byte signature that identifies NTLM messages.
var Signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

const (
	signatureOffset   = 0
	messageTypeOffset = 8
	headerSize        = 12
)

// Type 2 (CHALLENGE) message offsets. [MS-NLMP] Section 2.2.1.2
const (
	challengeTargetNameLenOffset = 12
	challengeTargetNameMaxOffset = 14
	challengeTargetNameOffOffset = 16
	challengeFlagsOffset         = 20
	challengeServerChalOffset    = 24
	challengeTargetInfoLenOffset = 40
	challengeTargetInfoMaxOffset = 42
	challengeTargetInfoOffOffset = 44
	challengeBaseSize            = 56
)

// Type 3 (AUTHENTICATE) message offsets. [MS-NLMP] Section 2.2.1.3
const (
	authLmResponseLenOffset  = 12
	authLmResponseOffOffset  = 16
	authNtResponseLenOffset  = 20
	authNtResponseOffOffset  = 24
	authDomainNameLenOffset  = 28
	authDomainNameOffOffset  = 32
	authUserNameLenOffset    = 36
	authUserNameOffOffset    = 40
	authWorkstationLenOffset = 44
	authWorkstationOffOffset = 48
	authNegotiateFlagsOffset = 60
	authBaseSize             = 64
)

// NegotiateFlag controls authentication behavior and capabilities.
// [MS-NLMP] Section 2.2.2.5
type NegotiateFlag uint32

const (
	FlagUnicode             NegotiateFlag = 0x00000001
	FlagOEM                 NegotiateFlag = 0x00000002
	FlagRequestTarget       NegotiateFlag = 0x00000004
	FlagSign                NegotiateFlag = 0x00000010
	FlagSeal                NegotiateFlag = 0x00000020
	FlagLMKey               NegotiateFlag = 0x00000080
	FlagNTLM                NegotiateFlag = 0x00000200
	FlagAnonymous           NegotiateFlag = 0x00000800
	FlagDomainSupplied      NegotiateFlag = 0x00001000
	FlagWorkstationSupplied NegotiateFlag = 0x00002000
	FlagAlwaysSign          NegotiateFlag = 0x00008000
	FlagTargetTypeDomain    NegotiateFlag = 0x00010000
	FlagTargetTypeServer    NegotiateFlag = 0x00020000
	FlagExtendedSecurity    NegotiateFlag = 0x00080000
	FlagTargetInfo          NegotiateFlag = 0x00800000
	FlagVersion             NegotiateFlag = 0x02000000
	Flag128                 NegotiateFlag = 0x20000000
	FlagKeyExch             NegotiateFlag = 0x40000000
	Flag56                  NegotiateFlag = 0x80000000
)

// AvID identifies an AV_PAIR attribute in a Type 2 message's TargetInfo.
// [MS-NLMP] Section 2.2.2.1
type AvID uint16

const (
	AvEOL             AvID = 0x0000
	AvNbComputerName  AvID = 0x0001
	AvNbDomainName    AvID = 0x0002
	AvDnsComputerName AvID = 0x0003
	AvDnsDomainName   AvID = 0x0004
	AvTimestamp       AvID = 0x0007
)

// IsValid checks if buf starts with the NTLMSSP signature.
func IsValid(buf []byte) bool {
	if len(buf) < headerSize {
		return false
	}
	return bytes.Equal(buf[signatureOffset:signatureOffset+8], Signature)
}

// GetMessageType returns the NTLM message type from buf, or 0 if buf is
// too short or lacks a valid signature.
func GetMessageType(buf []byte) MessageType {
	if !IsValid(buf) {
		return 0
	}
	return MessageType(binary.LittleEndian.Uint32(buf[messageTypeOffset : messageTypeOffset+4]))
}

// BuildChallenge constructs an NTLM Type 2 (CHALLENGE) message carrying
// serverChallenge, the 8-byte value obtained from the remote authority's
// auth session — the passthru authenticator never invents its own
// challenge, since the remote is the party that will validate the
// response against it.
//
// [MS-NLMP] Section 2.2.1.2
func BuildChallenge(serverChallenge [8]byte, domain, server, dnsDomain, dnsServer string) []byte {
	targetName := encodeUTF16LE(strings.ToUpper(server))
	targetInfo := buildTargetInfo(domain, server, dnsDomain, dnsServer)

	flags := FlagUnicode |
		FlagRequestTarget |
		FlagNTLM |
		FlagSign |
		FlagAlwaysSign |
		FlagTargetTypeServer |
		FlagExtendedSecurity |
		FlagTargetInfo

	targetNameOffset := challengeBaseSize
	targetInfoOffset := targetNameOffset + len(targetName)

	msg := make([]byte, targetInfoOffset+len(targetInfo))

	copy(msg[signatureOffset:signatureOffset+8], Signature)
	binary.LittleEndian.PutUint32(msg[messageTypeOffset:messageTypeOffset+4], uint32(Challenge))

	binary.LittleEndian.PutUint16(msg[challengeTargetNameLenOffset:challengeTargetNameLenOffset+2], uint16(len(targetName)))
	binary.LittleEndian.PutUint16(msg[challengeTargetNameMaxOffset:challengeTargetNameMaxOffset+2], uint16(len(targetName)))
	binary.LittleEndian.PutUint32(msg[challengeTargetNameOffOffset:challengeTargetNameOffOffset+4], uint32(targetNameOffset))

	binary.LittleEndian.PutUint32(msg[challengeFlagsOffset:challengeFlagsOffset+4], uint32(flags))

	copy(msg[challengeServerChalOffset:challengeServerChalOffset+8], serverChallenge[:])

	binary.LittleEndian.PutUint16(msg[challengeTargetInfoLenOffset:challengeTargetInfoLenOffset+2], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint16(msg[challengeTargetInfoMaxOffset:challengeTargetInfoMaxOffset+2], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint32(msg[challengeTargetInfoOffOffset:challengeTargetInfoOffOffset+4], uint32(targetInfoOffset))

	copy(msg[targetNameOffset:], targetName)
	copy(msg[targetInfoOffset:], targetInfo)

	return msg
}

// buildTargetInfo builds the AV_PAIR list a Windows client expects in a
// Type 2 message's TargetInfo: domain/server NetBIOS and DNS names plus a
// replay-protection timestamp.
func buildTargetInfo(domain, server, dnsDomain, dnsServer string) []byte {
	if domain == "" {
		domain = "WORKGROUP"
	}
	if server == "" {
		server, _ = os.Hostname()
	}

	const epochDiff = 116444736000000000
	ft := uint64(time.Now().UnixNano()/100) + epochDiff
	timestamp := make([]byte, 8)
	binary.LittleEndian.PutUint64(timestamp, ft)

	var buf []byte
	buf = append(buf, buildAvPair(AvNbDomainName, encodeUTF16LE(strings.ToUpper(domain)))...)
	buf = append(buf, buildAvPair(AvNbComputerName, encodeUTF16LE(strings.ToUpper(server)))...)
	if dnsDomain != "" {
		buf = append(buf, buildAvPair(AvDnsDomainName, encodeUTF16LE(dnsDomain))...)
	}
	if dnsServer != "" {
		buf = append(buf, buildAvPair(AvDnsComputerName, encodeUTF16LE(dnsServer))...)
	}
	buf = append(buf, buildAvPair(AvTimestamp, timestamp)...)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00) // AvEOL terminator
	return buf
}

func buildAvPair(id AvID, value []byte) []byte {
	pair := make([]byte, 4+len(value))
	binary.LittleEndian.PutUint16(pair[0:2], uint16(id))
	binary.LittleEndian.PutUint16(pair[2:4], uint16(len(value)))
	copy(pair[4:], value)
	return pair
}

func encodeUTF16LE(s string) []byte {
	encoded := utf16.Encode([]rune(s))
	b := make([]byte, len(encoded)*2)
	for i, v := range encoded {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

// AuthenticateMessage holds the fields of a Type 3 message the passthru
// authenticator needs: credentials to forward to the remote authority,
// plus enough of the negotiated flags to tell NTLMv1 from NTLMv2.
type AuthenticateMessage struct {
	LmChallengeResponse []byte
	NtChallengeResponse []byte
	Domain              string
	Username            string
	Workstation         string
	NegotiateFlags      NegotiateFlag
	IsAnonymous         bool
}

// IsNTLMv2 reports whether msg looks like an NTLMv2 response: extended
// security plus 128-bit negotiated, or an NT response longer than the
// fixed 24-byte NTLMv1 response. Passthru rejects these with LogonFailure
// rather than attempting to validate them locally.
func (msg *AuthenticateMessage) IsNTLMv2() bool {
	if msg.NegotiateFlags&FlagExtendedSecurity != 0 && msg.NegotiateFlags&Flag128 != 0 {
		return true
	}
	return len(msg.NtChallengeResponse) > 24
}

// ParseAuthenticate parses an NTLM Type 3 (AUTHENTICATE) message.
// [MS-NLMP] Section 2.2.1.3
func ParseAuthenticate(buf []byte) (*AuthenticateMessage, error) {
	if len(buf) < authBaseSize {
		return nil, ErrMessageTooShort
	}
	if !IsValid(buf) {
		return nil, ErrInvalidSignature
	}
	if GetMessageType(buf) != Authenticate {
		return nil, ErrWrongMessageType
	}

	msg := &AuthenticateMessage{}
	msg.NegotiateFlags = NegotiateFlag(binary.LittleEndian.Uint32(buf[authNegotiateFlagsOffset : authNegotiateFlagsOffset+4]))
	msg.IsAnonymous = msg.NegotiateFlags&FlagAnonymous != 0

	lmLen := binary.LittleEndian.Uint16(buf[authLmResponseLenOffset : authLmResponseLenOffset+2])
	lmOff := binary.LittleEndian.Uint32(buf[authLmResponseOffOffset : authLmResponseOffOffset+4])
	if lmLen > 0 && int(lmOff)+int(lmLen) <= len(buf) {
		msg.LmChallengeResponse = append([]byte(nil), buf[lmOff:lmOff+uint32(lmLen)]...)
	}

	ntLen := binary.LittleEndian.Uint16(buf[authNtResponseLenOffset : authNtResponseLenOffset+2])
	ntOff := binary.LittleEndian.Uint32(buf[authNtResponseOffOffset : authNtResponseOffOffset+4])
	if ntLen > 0 && int(ntOff)+int(ntLen) <= len(buf) {
		msg.NtChallengeResponse = append([]byte(nil), buf[ntOff:ntOff+uint32(ntLen)]...)
	}

	isUnicode := msg.NegotiateFlags&FlagUnicode != 0

	domainLen := binary.LittleEndian.Uint16(buf[authDomainNameLenOffset : authDomainNameLenOffset+2])
	domainOff := binary.LittleEndian.Uint32(buf[authDomainNameOffOffset : authDomainNameOffOffset+4])
	if domainLen > 0 && int(domainOff)+int(domainLen) <= len(buf) {
		msg.Domain = decodeString(buf[domainOff:domainOff+uint32(domainLen)], isUnicode)
	}

	userLen := binary.LittleEndian.Uint16(buf[authUserNameLenOffset : authUserNameLenOffset+2])
	userOff := binary.LittleEndian.Uint32(buf[authUserNameOffOffset : authUserNameOffOffset+4])
	if userLen > 0 && int(userOff)+int(userLen) <= len(buf) {
		msg.Username = decodeString(buf[userOff:userOff+uint32(userLen)], isUnicode)
	}

	wsLen := binary.LittleEndian.Uint16(buf[authWorkstationLenOffset : authWorkstationLenOffset+2])
	wsOff := binary.LittleEndian.Uint32(buf[authWorkstationOffOffset : authWorkstationOffOffset+4])
	if wsLen > 0 && int(wsOff)+int(wsLen) <= len(buf) {
		msg.Workstation = decodeString(buf[wsOff:wsOff+uint32(wsLen)], isUnicode)
	}

	return msg, nil
}

func decodeString(buf []byte, isUnicode bool) string {
	if isUnicode {
		if len(buf)%2 != 0 {
			buf = buf[:len(buf)-1]
		}
		runes := make([]rune, len(buf)/2)
		for i := 0; i < len(buf); i += 2 {
			runes[i/2] = rune(binary.LittleEndian.Uint16(buf[i : i+2]))
		}
		return string(runes)
	}
	return string(buf)
}

// Error is a sentinel NTLM parsing error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrMessageTooShort  Error = "ntlm: message too short"
	ErrInvalidSignature Error = "ntlm: invalid signature"
	ErrWrongMessageType Error = "ntlm: wrong message type"
)
