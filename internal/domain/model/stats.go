package model

type RegistryStats struct {
	TotalPrincipals  int          `json:"total_principals"`
	TotalConnections int          `json:"total_connections"`
	MaxConnections   int          `json:"max_connections"`
	Shards           []ShardStats `json:"shards,omitempty"`
}

type ShardStats struct {
	ShardID     int `json:"shard_id"`
	Principals  int `json:"principals"`
	Connections int `json:"connections"`
}

type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}

type DisconnectedPayload struct {
	Reason string `json:"reason"`
}
