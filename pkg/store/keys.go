package store

import "fmt"

// Relative key helpers.
//
// The RedisStore prefixes every key with hub:{instance}:, so these helpers
// produce the instance-relative part only.
//
// Key pattern: {entity}:{id}
// Index pattern: {entity}s (a set of ids)

// NodeKey returns the key for a node record.
func NodeKey(nodeID string) string {
	return "node:" + nodeID
}

// NodesSetKey is the set of all registered node ids.
const NodesSetKey = "nodes"

// NodePrefix is the common prefix of all node record keys.
const NodePrefix = "node:"

// MissionKey returns the key for a mission record.
func MissionKey(missionID string) string {
	return "mission:" + missionID
}

// MissionsSetKey is the set of all mission ids.
const MissionsSetKey = "missions"

// ActiveMissionsSetKey is the set of mission ids not yet in a terminal state.
const ActiveMissionsSetKey = "missions:active"

// MissionPrefix is the common prefix of all mission record keys.
const MissionPrefix = "mission:"

// MemoryKey returns the key for a memory entry.
func MemoryKey(entryID string) string {
	return "memory:" + entryID
}

// MemoryPrefix is the common prefix of all memory entry keys. The index
// sets below live under "memories:" so a prefix scan of entry records
// never picks up an index key.
const MemoryPrefix = "memory:"

// MemoryDomainSetKey indexes memory entries by domain.
func MemoryDomainSetKey(domain string) string {
	return fmt.Sprintf("memories:domain:%s", domain)
}

// MemoryTypeSetKey indexes memory entries by entry type.
func MemoryTypeSetKey(entryType string) string {
	return fmt.Sprintf("memories:type:%s", entryType)
}

// MemoryNodeSetKey indexes memory entries by source node.
func MemoryNodeSetKey(nodeID string) string {
	return fmt.Sprintf("memories:node:%s", nodeID)
}

// MemoryTagSetKey indexes memory entries by tag.
func MemoryTagSetKey(tag string) string {
	return fmt.Sprintf("memories:tag:%s", tag)
}

// MissionEventsChannel is the Pub/Sub channel mirroring coordination events
// and task assignment notifications for a hub instance. The RedisStore
// applies the instance namespace when publishing.
const MissionEventsChannel = "mission_events"
