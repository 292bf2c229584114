// Package gossip manages cluster membership and failure detection for the
// local node.
//
// Each node keeps its own view of the cluster membership as a set of member
// records. Records are merged using last-writer-wins on the time each member
// was added and removed, so every node converges to the same view once it
// has received the same records. A digest of the records is used to cheaply
// detect when two nodes have diverged.
//
// Failures are detected by periodically probing a random member, first
// directly, then indirectly via other members. Members that don't respond are
// suspected, and suspicion is disseminated along with membership updates
// during periodic anti-entropy exchanges.
//
// All protocol state is owned by a single event loop goroutine, so protocol
// handlers never run concurrently.
package gossip
