// Package server hosts one or more oxen repositories behind an HTTP API
// implementing the repo wire protocol, plus a WebSocket channel pushing
// transfer progress to connected clients.
package server

const broadcastChannelSize = 256

// Broadcast delivery (handleBroadcast, sendToAllClients, Broadcast)
// lives on RepoHub in hub.go.
