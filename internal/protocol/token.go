package protocol

import "strings"

// Control tokens sent by the server as newline-terminated text lines.
const (
	TokenWakeConfirmed = "WAKE_CONFIRMED"
	TokenDataReceived  = "DATA_RECEIVED"
)

// AckDataReceived is the 2-byte acknowledgment value used by the binary
// dialect in place of [TokenDataReceived].
const AckDataReceived uint16 = 0xAAAA

// Token classifies a control line received from the server.
type Token int

const (
	TokenUnknown Token = iota
	TokenWake
	TokenData
)

// String returns the wire spelling of the token.
func (t Token) String() string {
	switch t {
	case TokenWake:
		return TokenWakeConfirmed
	case TokenData:
		return TokenDataReceived
	default:
		return "UNKNOWN"
	}
}

// ParseToken classifies one control line. Trailing CR/LF and surrounding
// whitespace are ignored.
func ParseToken(line string) Token {
	switch strings.TrimSpace(line) {
	case TokenWakeConfirmed:
		return TokenWake
	case TokenDataReceived:
		return TokenData
	default:
		return TokenUnknown
	}
}

// Dialect selects how the server acknowledges a completed upload. The two
// dialects are not interchangeable; a connection uses exactly one.
type Dialect string

const (
	// DialectText acknowledges with the text line DATA_RECEIVED.
	DialectText Dialect = "text"

	// DialectBinary acknowledges with the 2-byte value 0xAAAA. The wake
	// confirmation stays a text line.
	DialectBinary Dialect = "binary"
)

// IsValid reports whether d is a recognised dialect.
func (d Dialect) IsValid() bool {
	return d == DialectText || d == DialectBinary
}
