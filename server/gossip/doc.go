// Package gossip exposes the local membership state of a node via the admin
// server and reports membership events.
package gossip
