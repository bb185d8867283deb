package comm

import (
	"context"

	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

// Address names a bot's mailbox within a topology: its role, and — for
// per-zone workers — which zone and shard index it is. Supervisor and
// Zone entries use Index -1 (see id.NewSupervisorID/NewZoneID).
type Address struct {
	Zone  id.ZoneIndex
	Kind  id.BotKind
	Index id.BotIndex
}

// SupervisorAddress and the per-zone ZoneAddress are the fixed
// singleton addresses; worker addresses are built with WorkerAddress.
func SupervisorAddress() Address { return Address{Zone: -1, Kind: id.KindSupervisor, Index: -1} }

func ZoneAddress(zone id.ZoneIndex) Address {
	return Address{Zone: zone, Kind: id.KindZone, Index: -1}
}

func WorkerAddress(zone id.ZoneIndex, kind id.BotKind, index id.BotIndex) Address {
	return Address{Zone: zone, Kind: kind, Index: index}
}

// ChannelTable is the Supervisor's map from Address to inbox (§4.7). It
// is built once via NewChannelTable/Builder and never mutated after
// construction; a topology change produces an entirely new table that
// is handed out via a TopologyUpdate message rather than edited in
// place, giving every holder of an old table a consistent, frozen view.
type ChannelTable struct {
	entries map[Address]chan Message
}

// Builder accumulates entries before freezing them into a ChannelTable.
type Builder struct {
	entries map[Address]chan Message
}

// NewBuilder returns an empty table builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[Address]chan Message)}
}

// Register adds one bot's inbox under addr. Overwrites any prior
// registration for the same address within this builder.
func (b *Builder) Register(addr Address, inbox chan Message) *Builder {
	b.entries[addr] = inbox
	return b
}

// Build freezes the accumulated registrations into an immutable
// ChannelTable.
func (b *Builder) Build() *ChannelTable {
	frozen := make(map[Address]chan Message, len(b.entries))
	for addr, ch := range b.entries {
		frozen[addr] = ch
	}
	return &ChannelTable{entries: frozen}
}

// Lookup returns the inbox registered for addr.
func (t *ChannelTable) Lookup(addr Address) (chan Message, bool) {
	ch, ok := t.entries[addr]
	return ch, ok
}

// MustLookup is Lookup but returns a Missing-kinded error instead of a
// bool, for call sites where the address is expected to be present in
// any well-formed topology.
func (t *ChannelTable) MustLookup(addr Address) (chan Message, error) {
	ch, ok := t.Lookup(addr)
	if !ok {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no inbox registered for %+v", addr)
	}
	return ch, nil
}

// WorkersOfKind returns every registered address of the given kind
// within a zone, in no particular order — used by a ZoneBot to fan a
// broadcast out to its whole pool of one role.
func (t *ChannelTable) WorkersOfKind(zone id.ZoneIndex, kind id.BotKind) []Address {
	var out []Address
	for addr := range t.entries {
		if addr.Zone == zone && addr.Kind == kind {
			out = append(out, addr)
		}
	}
	return out
}

// Len returns the number of registered addresses.
func (t *ChannelTable) Len() int { return len(t.entries) }

// SendBlocking delivers msg to ch, blocking until the send succeeds or
// ctx is done. Bot-to-bot forwards apply backpressure against a
// saturated peer inbox rather than silently discarding the message
// (§5's "senders block on full"): callers bound how long that
// backpressure may last by deriving ctx with their own
// context.WithTimeout before calling this.
func SendBlocking(ctx context.Context, ch chan<- Message, msg Message) error {
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ozerr.Wrap(ctx.Err(), "sending to bot inbox", ozerr.Channel)
	}
}
