package keychain

import "fmt"

// Status is a result code reported by a Backend. Values follow the
// Security framework's OSStatus numbering so Keychain results pass through
// unchanged; other backends map their failures onto the same set.
type Status int32

const (
	StatusSuccess         Status = 0
	StatusUserCanceled    Status = -128
	StatusIO              Status = -36
	StatusParam           Status = -50
	StatusAuthFailed      Status = -25293
	StatusDuplicateItem   Status = -25299
	StatusItemNotFound    Status = -25300
	StatusInvalidEncoding Status = -67853
)

// StatusUnset is reported by Store.LastStatus before any request was issued.
const StatusUnset Status = 1

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnset:
		return "unset"
	case StatusUserCanceled:
		return "user canceled"
	case StatusIO:
		return "i/o error"
	case StatusParam:
		return "invalid parameter"
	case StatusAuthFailed:
		return "authentication failed"
	case StatusDuplicateItem:
		return "duplicate item"
	case StatusItemNotFound:
		return "item not found"
	case StatusInvalidEncoding:
		return "invalid encoding"
	default:
		return fmt.Sprintf("status %d", int32(s))
	}
}

// IsAuthentication reports whether the status means the user could not be
// authenticated or dismissed the prompt.
func (s Status) IsAuthentication() bool {
	return s == StatusAuthFailed || s == StatusUserCanceled
}
