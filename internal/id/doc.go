// Package id defines the identity types shared across the ozonedb bot
// system: bot identifiers, zone/shard/file numbering, and the bot-kind
// enumeration used to address entries in the channel table.
//
// # Overview
//
// Every actor in the system (§2 of the specification) is addressed by an
// OzoneBotID: a role tag (Supervisor, Zone, Writer, Cache, File, Reader,
// InitGc) paired with a random Bid and, for per-zone workers, a zone index
// and a bot index within that zone's pool of the given kind. The
// Supervisor's channel table (internal/comm) is keyed by these identities.
//
// FileNum is the zone-local, monotonically increasing file number shared by
// a data file and its matching index file (§3, §6). ZoneIndex and
// BotIndex are small integers used purely for addressing; they carry no
// behaviour of their own.
package id
