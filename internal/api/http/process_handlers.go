package http

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// maxAPITransfer bounds one memory request through the API. The syscall
// layer's own 64 MiB cap still applies underneath.
const maxAPITransfer = 8 << 20

// ListProcesses returns the live processes.
func (h *Handlers) ListProcesses(c *gin.Context) {
	type entry struct {
		PID  uint32 `json:"pid"`
		Name string `json:"name"`
	}
	procs := h.k.Processes()
	out := make([]entry, 0, len(procs))
	for _, p := range procs {
		out = append(out, entry{PID: p.ID(), Name: p.Name()})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "processes": out})
}

// CreateProcess creates a process with one mapped region and returns the
// debugger-scoped handle for it.
func (h *Handlers) CreateProcess(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Base        uint64 `json:"base"`
		MemoryBytes uint64 `json:"memory_bytes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Base == 0 {
		req.Base = 0x400000
	}

	p, handle, err := h.k.CreateProcess(req.Name, req.Base, req.MemoryBytes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pid":     p.ID(),
		"handle":  handle,
		"base":    req.Base,
	})
}

// DestroyProcess tears a process down.
func (h *Handlers) DestroyProcess(c *gin.Context) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil {
		badRequest(c, "invalid pid")
		return
	}
	if err := h.k.DestroyProcess(uint32(pid)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateThread creates a thread in a process and returns its handle.
func (h *Handlers) CreateThread(c *gin.Context) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil {
		badRequest(c, "invalid pid")
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	t, handle, err := h.k.CreateThread(uint32(pid), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tid":     t.ID(),
		"handle":  handle,
	})
}

// TransferHandle moves a handle from the debugger's table into another
// process's table.
func (h *Handlers) TransferHandle(c *gin.Context) {
	var req struct {
		ProcessHandle uint32 `json:"process_handle" binding:"required"`
		Handle        uint32 `json:"handle" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	nh, err := h.k.Syscalls.DebugTransferHandle(h.k.Debugger(),
		cap.Handle(req.ProcessHandle), cap.Handle(req.Handle))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "new_handle": nh})
}

// ReadMemory reads target process memory through the syscall boundary,
// staging the transfer in per-request scratch user memory.
func (h *Handlers) ReadMemory(c *gin.Context) {
	handle, err1 := strconv.ParseUint(c.Query("handle"), 10, 32)
	vaddr, err2 := strconv.ParseUint(c.Query("vaddr"), 0, 64)
	length, err3 := strconv.ParseUint(c.Query("length"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		badRequest(c, "handle, vaddr and length are required")
		return
	}
	if length == 0 || length > maxAPITransfer {
		badRequest(c, "length out of range")
		return
	}

	scratch := usercopy.NewBytesIO(int(length) + 8)
	dst := usercopy.Make(scratch, 0)
	actual := usercopy.Make(scratch, length)

	if err := h.k.Syscalls.ProcessReadMemory(h.k.Debugger(), cap.Handle(handle), vaddr, dst, length, actual); err != nil {
		fail(c, err)
		return
	}

	moved, _ := actual.ReadUint64()
	data := make([]byte, moved)
	if err := dst.ReadBytes(data); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"actual":  moved,
		"data":    base64.StdEncoding.EncodeToString(data),
	})
}

// WriteMemory writes target process memory through the syscall boundary.
func (h *Handlers) WriteMemory(c *gin.Context) {
	var req struct {
		Handle uint32 `json:"handle" binding:"required"`
		Vaddr  uint64 `json:"vaddr"`
		Data   string `json:"data" binding:"required"`
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
	if len(data) == 0 || len(data) > maxAPITransfer {
		badRequest(c, "data length out of range")
		return
	}

	scratch := usercopy.NewBytesIO(len(data) + 8)
	if _, err := scratch.CopyOut(0, data); err != nil {
		fail(c, err)
		return
	}
	src := usercopy.Make(scratch, 0)
	actual := usercopy.Make(scratch, uint64(len(data)))

	if err := h.k.Syscalls.ProcessWriteMemory(h.k.Debugger(), cap.Handle(req.Handle), req.Vaddr, src, uint64(len(data)), actual); err != nil {
		fail(c, err)
		return
	}

	moved, _ := actual.ReadUint64()
	c.JSON(http.StatusOK, gin.H{"success": true, "actual": moved})
}

// ReadThreadState reads a thread's architectural state. The handler runs
// the size-probe loop a native caller would: probe with a zero length, then
// retry with the reported size.
func (h *Handlers) ReadThreadState(c *gin.Context) {
	handle, err := strconv.ParseUint(c.Query("handle"), 10, 32)
	if err != nil {
		badRequest(c, "handle is required")
		return
	}
	kind, ok := parseStateKind(c.Query("kind"))
	if !ok {
		badRequest(c, "unknown state kind")
		return
	}

	scratch := usercopy.NewBytesIO(8192)
	lenBuf := usercopy.Make(scratch, 0)
	dataBuf := usercopy.Make(scratch, 8)

	if err := lenBuf.WriteUint32(0); err != nil {
		fail(c, err)
		return
	}
	probeErr := h.k.Syscalls.ThreadReadState(h.k.Debugger(), cap.Handle(handle), kind, dataBuf, lenBuf)
	size, _ := lenBuf.ReadUint32()
	if probeErr != nil && size == 0 {
		fail(c, probeErr)
		return
	}

	if err := lenBuf.WriteUint32(size); err != nil {
		fail(c, err)
		return
	}
	if err := h.k.Syscalls.ThreadReadState(h.k.Debugger(), cap.Handle(handle), kind, dataBuf, lenBuf); err != nil {
		fail(c, err)
		return
	}

	data := make([]byte, size)
	if err := dataBuf.ReadBytes(data); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"size":    size,
		"data":    base64.StdEncoding.EncodeToString(data),
	})
}

// WriteThreadState applies a thread state blob.
func (h *Handlers) WriteThreadState(c *gin.Context) {
	var req struct {
		Handle uint32 `json:"handle" binding:"required"`
		Kind   string `json:"kind"`
		Data   string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	kind, ok := parseStateKind(req.Kind)
	if !ok {
		badRequest(c, "unknown state kind")
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
	src := usercopy.Make(scratch, 0)

	if err := h.k.Syscalls.ThreadWriteState(h.k.Debugger(), cap.Handle(req.Handle), kind, src, uint32(len(data))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
