package keychain

import (
	"maps"
	"reflect"
)

// Query is the attribute map handed to a Backend. Keys are the Security
// framework attribute names so a Keychain backend can translate them
// directly; other backends interpret the subset they understand.
type Query map[string]any

// Attribute names.
const (
	AttrClass          = "class"
	AttrAccount        = "acct"
	AttrValueData      = "v_Data"
	AttrAccessControl  = "accc"
	AttrAuthContext    = "u_AuthCtx"
	AttrMatchLimit     = "m_Limit"
	AttrReturnData     = "r_Data"
	AttrReturnRef      = "r_Ref"
	AttrAccessGroup    = "agrp"
	AttrSynchronizable = "sync"
)

// Attribute values.
const (
	ClassGenericPassword = "genp"
	MatchLimitOne        = "m_LimitOne"
	SynchronizableAny    = "syna"
)

const redacted = "[REDACTED]"

// Clone returns a copy of q. Value data is copied so the clone does not
// alias the caller's buffer.
func (q Query) Clone() Query {
	if q == nil {
		return nil
	}
	c := maps.Clone(q)
	if data, ok := c[AttrValueData].([]byte); ok {
		c[AttrValueData] = append([]byte(nil), data...)
	}
	return c
}

// Equal reports whether q and other hold the same attributes and values.
func (q Query) Equal(other Query) bool {
	return reflect.DeepEqual(q, other)
}

// Redacted returns a copy of q safe to log or serve: value data and the
// authentication context are masked.
func (q Query) Redacted() Query {
	c := maps.Clone(q)
	if _, ok := c[AttrValueData]; ok {
		c[AttrValueData] = redacted
	}
	if _, ok := c[AttrAuthContext]; ok {
		c[AttrAuthContext] = redacted
	}
	return c
}

// Account returns the account attribute, if any.
func (q Query) Account() string {
	s, _ := q[AttrAccount].(string)
	return s
}

// AccessGroup returns the access group attribute, if any.
func (q Query) AccessGroup() string {
	s, _ := q[AttrAccessGroup].(string)
	return s
}

// Accessibility says when a stored item can be read.
type Accessibility string

const (
	AccessibleWhenPasscodeSetThisDeviceOnly  Accessibility = "akpu"
	AccessibleWhenUnlockedThisDeviceOnly     Accessibility = "aku"
	AccessibleWhenUnlocked                   Accessibility = "ak"
	AccessibleAfterFirstUnlockThisDeviceOnly Accessibility = "cku"
	AccessibleAfterFirstUnlock               Accessibility = "ck"
)

// ThisDeviceOnly reports whether items with this accessibility are excluded
// from backups and device migration.
func (a Accessibility) ThisDeviceOnly() bool {
	switch a {
	case AccessibleWhenPasscodeSetThisDeviceOnly,
		AccessibleWhenUnlockedThisDeviceOnly,
		AccessibleAfterFirstUnlockThisDeviceOnly:
		return true
	}
	return false
}

// AccessControlFlags are the constraints checked before an item is read.
type AccessControlFlags uint

const (
	UserPresence   AccessControlFlags = 1 << 0
	BiometryAny    AccessControlFlags = 1 << 1
	DevicePasscode AccessControlFlags = 1 << 4
)

// AccessPolicy describes when a stored value may be read back. It is
// attached at write time and travels with the item.
type AccessPolicy struct {
	Accessible Accessibility
	Flags      AccessControlFlags
}

// DefaultPolicy requires user presence and a device passcode, and keeps the
// item on this device.
var DefaultPolicy = AccessPolicy{
	Accessible: AccessibleWhenPasscodeSetThisDeviceOnly,
	Flags:      UserPresence,
}

// RequiresUserPresence reports whether reads must be authenticated.
func (p AccessPolicy) RequiresUserPresence() bool {
	return p.Flags&(UserPresence|BiometryAny|DevicePasscode) != 0
}

// AccessControl is the access-control object placed in add queries.
type AccessControl struct {
	Accessible Accessibility
	Flags      AccessControlFlags
}

func (p AccessPolicy) accessControl() AccessControl {
	a := p.Accessible
	if a == "" {
		a = DefaultPolicy.Accessible
	}
	return AccessControl{Accessible: a, Flags: p.Flags}
}

// AuthContext is an opaque handle to an authentication session. It is
// passed through to the backend unmodified.
type AuthContext any

// QueryBuilder assembles backend queries. Post-processing runs in a fixed
// order (base attributes, access group, synchronizable) so identical inputs
// give identical queries.
type QueryBuilder struct {
	Prefix         string
	AccessGroup    string
	Synchronizable bool
}

// PrefixedKey returns the account name stored for key.
func (b QueryBuilder) PrefixedKey(key string) string {
	return b.Prefix + key
}

// AddQuery builds the query that creates an item holding data.
func (b QueryBuilder) AddQuery(key string, data []byte, policy AccessPolicy, auth AuthContext) Query {
	q := Query{
		AttrClass:         ClassGenericPassword,
		AttrAccount:       b.PrefixedKey(key),
		AttrValueData:     append([]byte{}, data...),
		AttrAccessControl: policy.accessControl(),
	}
	if auth != nil {
		q[AttrAuthContext] = auth
	}
	return b.scope(q, true)
}

// FetchQuery builds a single-match lookup. With asReference the backend
// returns an item reference instead of the value bytes.
func (b QueryBuilder) FetchQuery(key string, asReference bool, auth AuthContext) Query {
	q := Query{
		AttrClass:      ClassGenericPassword,
		AttrAccount:    b.PrefixedKey(key),
		AttrMatchLimit: MatchLimitOne,
	}
	if auth != nil {
		q[AttrAuthContext] = auth
	}
	if asReference {
		q[AttrReturnRef] = true
	} else {
		q[AttrReturnData] = true
	}
	return b.scope(q, false)
}

// DeleteQuery builds the query removing every item stored under key.
func (b QueryBuilder) DeleteQuery(key string) Query {
	q := Query{
		AttrClass:   ClassGenericPassword,
		AttrAccount: b.PrefixedKey(key),
	}
	return b.scope(q, false)
}

func (b QueryBuilder) scope(q Query, adding bool) Query {
	if b.AccessGroup != "" {
		q[AttrAccessGroup] = b.AccessGroup
	}
	if b.Synchronizable {
		if adding {
			q[AttrSynchronizable] = true
		} else {
			q[AttrSynchronizable] = SynchronizableAny
		}
	}
	return q
}
