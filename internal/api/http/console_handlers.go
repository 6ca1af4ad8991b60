package http

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

const maxConsoleRead = 4096

// ConsoleRead blocks on console input as the debugger and returns whatever
// arrived. The request context carries cancellation, so a closed connection
// unblocks the waiting read.
func (h *Handlers) ConsoleRead(c *gin.Context) {
	n := uint64(256)
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v > maxConsoleRead {
			badRequest(c, "n out of range")
			return
		}
		n = v
	}

	scratch := usercopy.NewBytesIO(int(n))
	buf := usercopy.Make(scratch, 0)

	moved, err := h.k.Syscalls.DebugRead(c.Request.Context(), h.k.Debugger(), h.k.ResourceHandle(), buf, uint32(n))
	if err != nil {
		fail(c, err)
		return
	}

	data := make([]byte, moved)
	if moved > 0 {
		if err := buf.ReadBytes(data); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"actual":  moved,
		"data":    base64.StdEncoding.EncodeToString(data),
	})
}

// ConsoleWrite emits bytes to the console sink. The reported count reflects
// the syscall's silent clamp on oversize writes.
func (h *Handlers) ConsoleWrite(c *gin.Context) {
	var req struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		badRequest(c, "data must be base64")
		return
	}

	scratch := usercopy.NewBytesIO(len(data))
	if _, err := scratch.CopyOut(0, data); err != nil {
		fail(c, err)
		return
	}

	written, err := h.k.Syscalls.DebugWrite(h.k.Debugger(), usercopy.Make(scratch, 0), uint32(len(data)))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "written": written})
}

// ConsoleInput feeds bytes into the console input queue, as a serial line
// would. Bytes beyond the queue's capacity are dropped.
func (h *Handlers) ConsoleInput(c *gin.Context) {
	var req struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		badRequest(c, "data must be base64")
		return
	}

	accepted := h.k.Console.PushInput(data)
	c.JSON(http.StatusOK, gin.H{"success": true, "accepted": accepted})
}

// ConsoleCommand dispatches one line to the kernel command interpreter.
func (h *Handlers) ConsoleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	scratch := usercopy.NewBytesIO(len(req.Command))
	if _, err := scratch.CopyOut(0, []byte(req.Command)); err != nil {
		fail(c, err)
		return
	}

	err := h.k.Syscalls.DebugSendCommand(h.k.Debugger(), h.k.ResourceHandle(),
		usercopy.Make(scratch, 0), uint32(len(req.Command)))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
