// Package supervisor implements the Supervisor of §4.7/§5: it builds
// every zone's worker pools and ZoneBot, assembles the immutable
// comm.ChannelTable the whole topology uses to address one another,
// runs each zone's startup scan before any traffic is accepted, and
// drains every bot in a fixed order on shutdown.
package supervisor
