package admin

import "encoding/json"

// InvalidateRequest names the category to clear.
type InvalidateRequest struct {
	Target string `json:"target"`
}

// InvalidateResponse reports how many keys were deleted.
type InvalidateResponse struct {
	Target  string `json:"target"`
	Deleted int    `json:"deleted"`
}

// InspectRequest names the key to inspect.
type InspectRequest struct {
	Key string `json:"key"`
}

// InspectResponse mirrors cache.Inspection with Unix-millisecond
// timestamps. Timestamps are zero when the key is missing or invalid.
type InspectResponse struct {
	Key          string          `json:"key"`
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value,omitempty"`
	UpdatedAtMs  int64           `json:"updated_at_ms,omitempty"`
	ExpiresAtMs  int64           `json:"expires_at_ms,omitempty"`
	StaleUntilMs int64           `json:"stale_until_ms,omitempty"`
	Locked       bool            `json:"locked"`
}

// PingRequest is the input for the Ping method.
type PingRequest struct {
	Message string `json:"message"`
}

// PingResponse echoes the message and reports whether the store is
// reachable.
type PingResponse struct {
	Message        string `json:"message"`
	ServerTimeUnix int64  `json:"server_time_unix"`
	StoreReady     bool   `json:"store_ready"`
}

// adminMsg is a marker interface satisfied by the admin request and
// response types.
type adminMsg interface {
	isAdminMsg()
}

func (*InvalidateRequest) isAdminMsg()  {}
func (*InvalidateResponse) isAdminMsg() {}
func (*InspectRequest) isAdminMsg()     {}
func (*InspectResponse) isAdminMsg()    {}
func (*PingRequest) isAdminMsg()        {}
func (*PingResponse) isAdminMsg()       {}
