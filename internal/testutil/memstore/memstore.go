// Package memstore is an in-memory stand-in for the Mongo stores. Each type
// mirrors the method set and error contract of its store package
// (mongo.ErrNoDocuments, store sentinels) so service and handler tests run
// without a database. Every method can be made to fail on demand.
package memstore

import (
	"sync"
)

// DB groups one in-memory store per collection.
type DB struct {
	Users         *Users
	Orgs          *Organizations
	Members       *Members
	Leads         *Leads
	Events        *Events
	Notifications *Notifications
	Prefs         *Prefs
	Audit         *AuditLog
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		Users:         &Users{byID: map[string]userRec{}},
		Orgs:          &Organizations{},
		Members:       &Members{},
		Leads:         &Leads{},
		Events:        &Events{countFail: map[string]error{}},
		Notifications: &Notifications{},
		Prefs:         &Prefs{kv: map[string]string{}},
		Audit:         &AuditLog{},
	}
}

// faults records calls and serves injected errors by method name.
type faults struct {
	fmu    sync.Mutex
	next   map[string][]error
	always map[string]error
	calls  map[string]int
}

// FailNext makes the next call to method return err. Calls queue in order.
func (f *faults) FailNext(method string, err error) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	if f.next == nil {
		f.next = map[string][]error{}
	}
	f.next[method] = append(f.next[method], err)
}

// FailAlways makes every call to method return err. A nil err clears it.
func (f *faults) FailAlways(method string, err error) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	if f.always == nil {
		f.always = map[string]error{}
	}
	if err == nil {
		delete(f.always, method)
		return
	}
	f.always[method] = err
}

// Calls reports how many times method has been invoked.
func (f *faults) Calls(method string) int {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	return f.calls[method]
}

func (f *faults) hit(method string) error {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[method]++
	if q := f.next[method]; len(q) > 0 {
		f.next[method] = q[1:]
		return q[0]
	}
	return f.always[method]
}
