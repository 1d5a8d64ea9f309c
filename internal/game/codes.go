package game

// 命令码：请求 -> 响应
const (
	CmdHeartbeat     int32 = 1
	CmdHeartbeatResp int32 = 2
	CmdKicked        int32 = 3 // 服务端推送：被顶号

	CmdLogin       int32 = 100
	CmdLoginResp   int32 = 200
	CmdEcho        int32 = 101
	CmdEchoResp    int32 = 201
	CmdProfile     int32 = 102
	CmdProfileResp int32 = 202
	CmdNotice      int32 = 103 // 无响应

	CmdError int32 = 9999
)

// 业务错误码
const (
	CodeInvalidArgument int32 = 1001
	CodeAuthFailed      int32 = 1002
	CodeNotLoggedIn     int32 = 1003
	CodeRateLimited     int32 = 1004
	CodeServerBusy      int32 = 1500
)

// CommandNames 默认命令目录
func CommandNames() map[int32]string {
	return map[int32]string{
		CmdHeartbeat:     "heartbeat",
		CmdHeartbeatResp: "heartbeat_ack",
		CmdKicked:        "kicked",
		CmdLogin:         "login",
		CmdLoginResp:     "login_ack",
		CmdEcho:          "echo",
		CmdEchoResp:      "echo_ack",
		CmdProfile:       "profile",
		CmdProfileResp:   "profile_ack",
		CmdNotice:        "notice",
		CmdError:         "error",
	}
}
