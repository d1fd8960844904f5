package server

// ProgressEvent is sent to clients via WebSocket while a push, pull, or
// branch update is in flight against a repo this server hosts. The
// wire protocol itself has no progress channel; this is an out-of-band
// push alongside it so a connected CLI or UI doesn't have to poll.
type ProgressEvent struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Op        string `json:"op"`             // "push", "fetch", "branch-update"
	Phase     string `json:"phase"`          // e.g. "received-node", "received-blob", "branch-updated", "changed"
	Branch    string `json:"branch,omitempty"`
	Percent   int    `json:"percent,omitempty"`
	Error     string `json:"error,omitempty"`
}
