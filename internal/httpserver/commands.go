package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CommandInfo 已注册命令的描述
type CommandInfo struct {
	Cmd         int32  `json:"cmd"`
	Name        string `json:"name"`
	ResponseCmd int32  `json:"responseCmd,omitempty"`
	Handler     string `json:"handler"`
}

// RegisterCommandRoutes 注册 GET /commands，列出当前进程的命令映射
func RegisterCommandRoutes(r *gin.Engine, list func() []CommandInfo) {
	r.GET("/commands", func(c *gin.Context) {
		cmds := list()
		c.JSON(http.StatusOK, gin.H{
			"total":    len(cmds),
			"commands": cmds,
		})
	})
}
