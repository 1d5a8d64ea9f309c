package game

import "time"

type HeartbeatReq struct {
	ClientTime int64 `json:"client_time"`
}

type HeartbeatResp struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
}

type LoginReq struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
}

type LoginResp struct {
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
	Replaced  bool   `json:"replaced"`
}

type EchoReq struct {
	Text string `json:"text"`
}

type EchoResp struct {
	Text string `json:"text"`
}

type ProfileResp struct {
	PlayerID   string    `json:"player_id"`
	SessionID  string    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr"`
	LoginAt    time.Time `json:"login_at"`
}

type NoticeReq struct {
	Text string `json:"text"`
}

type KickedPush struct {
	Reason string `json:"reason"`
}
