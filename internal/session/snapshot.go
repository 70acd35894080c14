package session

import "sync/atomic"

// snapshotBox publishes [Snapshot] values from the loop to readers.
type snapshotBox struct {
	v atomic.Pointer[Snapshot]
}

func (b *snapshotBox) store(s Snapshot) { b.v.Store(&s) }

func (b *snapshotBox) load() Snapshot {
	if p := b.v.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}
