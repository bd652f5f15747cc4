package models

// RoomInfo describes one room as seen by this relay process
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
	// ClusterMembers is the presence count across relay processes; only set
	// when the Redis presence mirror is enabled.
	ClusterMembers *int64 `json:"clusterMembers,omitempty"`
}

// RoomStats is a snapshot of every live room
type RoomStats struct {
	Rooms       []RoomInfo `json:"rooms"`
	Connections int        `json:"connections"`
}
