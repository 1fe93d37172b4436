package host

import "github.com/guseggert/hostbridge/host/rpc"

type HeartbeatResponse struct {
	LastHeartbeat string
	AppID         string
	Version       string
}

// CallResponse is the body of a POST /call/:name response. Exactly one of the fields is set.
type CallResponse struct {
	Result any            `json:"result"`
	Error  *rpc.ErrorBody `json:"error,omitempty"`
}
