package http

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/ktrace"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

const maxTraceRead = 1 << 20

// KtraceRead copies a window of the trace ring through the syscall boundary
// and returns it both raw and decoded.
func (h *Handlers) KtraceRead(c *gin.Context) {
	var off uint64
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			badRequest(c, "invalid offset")
			return
		}
		off = v
	}
	length := uint64(maxTraceRead)
	if raw := c.Query("length"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v > maxTraceRead {
			badRequest(c, "length out of range")
			return
		}
		length = v
	}

	scratch := usercopy.NewBytesIO(int(length))
	buf := usercopy.Make(scratch, 0)

	moved, err := h.k.Syscalls.KtraceRead(h.k.Debugger(), h.k.ResourceHandle(), buf, uint32(off), uint32(length))
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

	records := make([]ktrace.Record, 0, moved/ktrace.RecordSize)
	for i := 0; i+ktrace.RecordSize <= len(data); i += ktrace.RecordSize {
		records = append(records, ktrace.DecodeRecord(data[i:i+ktrace.RecordSize]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"actual":  moved,
		"data":    base64.StdEncoding.EncodeToString(data),
		"records": records,
	})
}

// KtraceStats reports ring occupancy.
func (h *Handlers) KtraceStats(c *gin.Context) {
	st := h.k.Trace.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"size":    st.Size,
		"used":    st.Used,
		"running": st.Running,
		"probes":  st.Probes,
	})
}

// KtraceDump streams the full ring contents as a zstd-compressed blob,
// suitable for offline decoding.
func (h *Handlers) KtraceDump(c *gin.Context) {
	snap := h.k.Trace.Snapshot()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		fail(c, err)
		return
	}
	compressed := enc.EncodeAll(snap, nil)
	enc.Close()

	h.logger.Debug("trace dump",
		zap.Int("raw_bytes", len(snap)),
		zap.Int("compressed_bytes", len(compressed)))

	c.Header("Content-Disposition", `attachment; filename="ktrace.zst"`)
	c.Data(http.StatusOK, "application/zstd", compressed)
}

// KtraceControl executes a trace control action. new_probe carries the probe
// name through scratch user memory the way a native caller would.
func (h *Handlers) KtraceControl(c *gin.Context) {
	var req struct {
		Action  string `json:"action" binding:"required"`
		Options uint32 `json:"options"`
		Name    string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	var action uint32
	switch req.Action {
	case "start":
		action = ktrace.ActionStart
	case "stop":
		action = ktrace.ActionStop
	case "rewind":
		action = ktrace.ActionRewind
	case "new_probe":
		action = ktrace.ActionNewProbe
	default:
		badRequest(c, "unknown action")
		return
	}

	// The syscall reads a fixed NUL-terminated window, so the payload is
	// always staged at full width.
	scratch := usercopy.NewBytesIO(ktrace.MaxNameLen)
	if action == ktrace.ActionNewProbe {
		name := []byte(req.Name)
		if len(name) >= ktrace.MaxNameLen {
			name = name[:ktrace.MaxNameLen-1]
		}
		if _, err := scratch.CopyOut(0, name); err != nil {
			fail(c, err)
			return
		}
	}

	result, err := h.k.Syscalls.KtraceControl(h.k.Debugger(), h.k.ResourceHandle(),
		action, req.Options, usercopy.Make(scratch, 0))
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{"success": true}
	if action == ktrace.ActionNewProbe {
		resp["probe_id"] = result
	}
	c.JSON(http.StatusOK, resp)
}

// KtraceWrite appends one probe record.
func (h *Handlers) KtraceWrite(c *gin.Context) {
	var req struct {
		EventID uint32 `json:"event_id" binding:"required"`
		Arg0    uint32 `json:"arg0"`
		Arg1    uint32 `json:"arg1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.k.Syscalls.KtraceWrite(h.k.Debugger(), h.k.ResourceHandle(),
		req.EventID, req.Arg0, req.Arg1); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
