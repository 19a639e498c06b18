package keychain

import (
	"fmt"
	"unicode/utf8"
)

// ValueKind names the variant of a Value.
type ValueKind string

const (
	KindBytes ValueKind = "bytes"
	KindText  ValueKind = "text"
	KindFlag  ValueKind = "flag"
)

// ParseValueKind maps a kind name to a ValueKind. The empty string is bytes.
func ParseValueKind(s string) (ValueKind, error) {
	switch ValueKind(s) {
	case "", KindBytes:
		return KindBytes, nil
	case KindText:
		return KindText, nil
	case KindFlag:
		return KindFlag, nil
	}
	return "", fmt.Errorf("unknown value kind %q (want bytes, text or flag)", s)
}

// Value is a secret to be stored: Bytes, Text or Flag.
// Bytes is the stored form; Text and Flag are views over it.
type Value interface {
	Kind() ValueKind
}

// Bytes is a raw secret.
type Bytes []byte

// Text is a UTF-8 secret.
type Text string

// Flag is a boolean secret stored as a single byte.
type Flag bool

func (Bytes) Kind() ValueKind { return KindBytes }
func (Text) Kind() ValueKind  { return KindText }
func (Flag) Kind() ValueKind  { return KindFlag }

// Encode converts v to its stored byte form.
func Encode(v Value) ([]byte, error) {
	switch v := v.(type) {
	case Bytes:
		return []byte(v), nil
	case Text:
		return EncodeText(string(v))
	case Flag:
		return EncodeFlag(bool(v)), nil
	case nil:
		return nil, fmt.Errorf("%w: nil value", ErrInvalidEncoding)
	default:
		return nil, fmt.Errorf("%w: unsupported value %T", ErrInvalidEncoding, v)
	}
}

// EncodeFlag returns a single byte: 1 for true, 0 for false.
func EncodeFlag(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeFlag reads the first byte of data. Only 1 is true.
// ok is false when data is empty.
func DecodeFlag(data []byte) (value, ok bool) {
	if len(data) == 0 {
		return false, false
	}
	return data[0] == 1, true
}

// EncodeText returns the UTF-8 bytes of s. Go strings may carry arbitrary
// bytes, so a string that is not valid UTF-8 is rejected.
func EncodeText(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidEncoding)
	}
	return []byte(s), nil
}

// DecodeText interprets data as UTF-8 text.
func DecodeText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: stored bytes are not valid UTF-8", ErrInvalidEncoding)
	}
	return string(data), nil
}
