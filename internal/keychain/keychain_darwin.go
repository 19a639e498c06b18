//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// KeychainBackend translates queries into macOS Keychain requests.
//
// go-keychain exposes accessibility but not SecAccessControl objects or
// LAContext handles, so the policy is applied through its accessibility
// class and the authentication context is not forwarded; the Keychain
// prompts on its own when the item requires it.
type KeychainBackend struct {
	service string
}

// NewKeychainBackend creates a Keychain-backed Backend scoped to service.
func NewKeychainBackend(service string) *KeychainBackend {
	if service == "" {
		service = ServiceName
	}
	return &KeychainBackend{service: service}
}

func (b *KeychainBackend) Add(q Query) Status {
	item, st := b.item(q)
	if st != StatusSuccess {
		return st
	}
	if data, ok := q[AttrValueData].([]byte); ok {
		item.SetData(data)
	}
	item.SetLabel(fmt.Sprintf("keyguard: %s", q.Account()))
	if ac, ok := q[AttrAccessControl].(AccessControl); ok {
		item.SetAccessible(accessible(ac.Accessible))
	}
	return statusOf(gokeychain.AddItem(item))
}

func (b *KeychainBackend) Find(q Query) (Status, Result) {
	item, st := b.item(q)
	if st != StatusSuccess {
		return st, Result{}
	}
	if q[AttrMatchLimit] == MatchLimitOne {
		item.SetMatchLimit(gokeychain.MatchLimitOne)
	}
	wantRef, _ := q[AttrReturnRef].(bool)
	wantData, _ := q[AttrReturnData].(bool)
	item.SetReturnAttributes(wantRef)
	item.SetReturnData(wantData)

	results, err := gokeychain.QueryItem(item)
	if st := statusOf(err); st != StatusSuccess {
		return st, Result{}
	}
	if len(results) == 0 {
		return StatusItemNotFound, Result{}
	}

	var res Result
	if wantRef {
		res.Ref = &ItemRef{Account: results[0].Account, AccessGroup: results[0].AccessGroup}
	}
	if wantData {
		res.Data = results[0].Data
	}
	return StatusSuccess, res
}

func (b *KeychainBackend) Delete(q Query) Status {
	item, st := b.item(q)
	if st != StatusSuccess {
		return st
	}
	return statusOf(gokeychain.DeleteItem(item))
}

// item builds the attributes shared by every request.
func (b *KeychainBackend) item(q Query) (gokeychain.Item, Status) {
	item := gokeychain.NewItem()
	if !validClass(q) {
		return item, StatusParam
	}
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetService(b.service)
	if acct := q.Account(); acct != "" {
		item.SetAccount(acct)
	}
	if group := q.AccessGroup(); group != "" {
		item.SetAccessGroup(group)
	}
	switch v := q[AttrSynchronizable].(type) {
	case bool:
		if v {
			item.SetSynchronizable(gokeychain.SynchronizableYes)
		} else {
			item.SetSynchronizable(gokeychain.SynchronizableNo)
		}
	case string:
		if v == SynchronizableAny {
			item.SetSynchronizable(gokeychain.SynchronizableAny)
		}
	}
	return item, StatusSuccess
}

func accessible(a Accessibility) gokeychain.Accessible {
	switch a {
	case AccessibleWhenUnlocked:
		return gokeychain.AccessibleWhenUnlocked
	case AccessibleAfterFirstUnlock:
		return gokeychain.AccessibleAfterFirstUnlock
	case AccessibleWhenUnlockedThisDeviceOnly:
		return gokeychain.AccessibleWhenUnlockedThisDeviceOnly
	case AccessibleAfterFirstUnlockThisDeviceOnly:
		return gokeychain.AccessibleAfterFirstUnlockThisDeviceOnly
	default:
		return gokeychain.AccessibleWhenPasscodeSetThisDeviceOnly
	}
}

func statusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var kerr gokeychain.Error
	if errors.As(err, &kerr) {
		return Status(kerr)
	}
	return StatusIO
}
