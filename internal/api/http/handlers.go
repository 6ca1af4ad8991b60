// Package http exposes the debug syscall surface to out-of-kernel tooling.
// Every endpoint runs as the kernel's debugger process: requests are
// translated into syscall invocations against per-request scratch user
// memory, so the handlers exercise exactly the same boundary a native
// caller would.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// Handlers carries the booted kernel and its syscall layer.
type Handlers struct {
	k      *kernel.Kernel
	logger *zap.Logger
}

// NewHandlers creates the debug API handlers.
func NewHandlers(k *kernel.Kernel, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{k: k, logger: logger}
}

// Register installs the API routes on the router group.
func (h *Handlers) Register(r *gin.RouterGroup) {
	r.GET("/health", h.Health)

	r.GET("/processes", h.ListProcesses)
	r.POST("/processes", h.CreateProcess)
	r.DELETE("/processes/:pid", h.DestroyProcess)
	r.POST("/processes/:pid/threads", h.CreateThread)

	r.GET("/console/read", h.ConsoleRead)
	r.POST("/console/write", h.ConsoleWrite)
	r.POST("/console/input", h.ConsoleInput)
	r.POST("/console/command", h.ConsoleCommand)

	r.POST("/handles/transfer", h.TransferHandle)

	r.GET("/memory", h.ReadMemory)
	r.PUT("/memory", h.WriteMemory)

	r.GET("/threads/state", h.ReadThreadState)
	r.PUT("/threads/state", h.WriteThreadState)

	r.GET("/ktrace", h.KtraceRead)
	r.GET("/ktrace/stats", h.KtraceStats)
	r.GET("/ktrace/dump", h.KtraceDump)
	r.POST("/ktrace/control", h.KtraceControl)
	r.POST("/ktrace/write", h.KtraceWrite)
}

// Health reports the kernel instance identity.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"boot_id":        h.k.BootID(),
		"uptime_seconds": h.k.Uptime().Seconds(),
	})
}

// statusCode maps the syscall taxonomy onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, status.ErrInvalidArgs):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrBadHandle):
		return http.StatusNotFound
	case errors.Is(err, status.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, status.ErrBadState),
		errors.Is(err, status.ErrNoMemory):
		return http.StatusConflict
	case errors.Is(err, status.ErrBufferTooSmall):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, status.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusCode(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}

func parseStateKind(s string) (proc.StateKind, bool) {
	switch s {
	case "general", "":
		return proc.StateGeneralRegs, true
	case "fp":
		return proc.StateFPRegs, true
	default:
		return 0, false
	}
}
