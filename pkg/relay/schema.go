package relay

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by space and node so that
// several tandem pairs can share one relay without interference.
//
// Key pattern: tandem:{space}:node:{node}:{entity}

// InboxKey returns the list holding queued-tier payloads addressed to node.
// Pattern: tandem:{space}:node:{node}:inbox
func InboxKey(space, node string) string {
	return fmt.Sprintf("tandem:%s:node:%s:inbox", space, node)
}

// ContextKey returns the string key holding the snapshot-tier payload for node.
// Pattern: tandem:{space}:node:{node}:context
func ContextKey(space, node string) string {
	return fmt.Sprintf("tandem:%s:node:%s:context", space, node)
}

// PresenceKey returns the TTL key a node refreshes while it is connected.
// Pattern: tandem:{space}:node:{node}:presence
func PresenceKey(space, node string) string {
	return fmt.Sprintf("tandem:%s:node:%s:presence", space, node)
}

// RealtimeChannel returns the Pub/Sub channel carrying realtime-tier payloads for node.
// Pattern: tandem:{space}:node:{node}:realtime
func RealtimeChannel(space, node string) string {
	return fmt.Sprintf("tandem:%s:node:%s:realtime", space, node)
}
