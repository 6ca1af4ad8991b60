package main

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kestrelos/kestrel/internal/infrastructure/resilience"
)

// client wraps resty for the kestreld debug API. A circuit breaker guards
// the transport so scripted runs against a dead daemon fail fast.
type client struct {
	http    *resty.Client
	breaker *resilience.Breaker
}

func newClient(addr string) *client {
	c := resty.New().
		SetBaseURL(addr + "/v1").
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "kdbg/1.0")
	return &client{
		http: c,
		breaker: resilience.New(resilience.Settings{
			FailureThreshold: 3,
			Cooldown:         5 * time.Second,
		}),
	}
}

// apiError carries the decoded error body plus the HTTP status.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (http %d)", e.Message, e.Status)
}

// do runs the prepared request and decodes the envelope into out, which may
// be nil when only success matters. Only transport failures count against
// the breaker; an error status from the daemon means it is alive.
func (c *client) do(req *resty.Request, method, path string, out interface{}) error {
	var failure struct {
		Error string `json:"error"`
	}
	if out != nil {
		req.SetResult(out)
	}

	var apiErr error
	err := c.breaker.Execute(func() error {
		resp, err := req.SetError(&failure).Execute(method, path)
		if err != nil {
			return err
		}
		if resp.IsError() {
			msg := failure.Error
			if msg == "" {
				msg = resp.Status()
			}
			apiErr = &apiError{Status: resp.StatusCode(), Message: msg}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return apiErr
}

func (c *client) health() (bootID string, uptime float64, err error) {
	var out struct {
		BootID        string  `json:"boot_id"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	err = c.do(c.http.R(), "GET", "/health", &out)
	return out.BootID, out.UptimeSeconds, err
}

type processInfo struct {
	PID  uint32 `json:"pid"`
	Name string `json:"name"`
}

func (c *client) listProcesses() ([]processInfo, error) {
	var out struct {
		Processes []processInfo `json:"processes"`
	}
	err := c.do(c.http.R(), "GET", "/processes", &out)
	return out.Processes, err
}

func (c *client) createProcess(name string, base, memBytes uint64) (pid uint32, handle uint32, err error) {
	var out struct {
		PID    uint32 `json:"pid"`
		Handle uint32 `json:"handle"`
	}
	req := c.http.R().SetBody(map[string]interface{}{
		"name":         name,
		"base":         base,
		"memory_bytes": memBytes,
	})
	err = c.do(req, "POST", "/processes", &out)
	return out.PID, out.Handle, err
}

func (c *client) destroyProcess(pid uint32) error {
	return c.do(c.http.R(), "DELETE", fmt.Sprintf("/processes/%d", pid), nil)
}

func (c *client) createThread(pid uint32, name string) (tid uint32, handle uint32, err error) {
	var out struct {
		TID    uint32 `json:"tid"`
		Handle uint32 `json:"handle"`
	}
	req := c.http.R().SetBody(map[string]string{"name": name})
	err = c.do(req, "POST", fmt.Sprintf("/processes/%d/threads", pid), &out)
	return out.TID, out.Handle, err
}

func (c *client) readMemory(handle uint32, vaddr, length uint64) ([]byte, error) {
	var out struct {
		Data string `json:"data"`
	}
	req := c.http.R().SetQueryParams(map[string]string{
		"handle": fmt.Sprint(handle),
		"vaddr":  fmt.Sprintf("0x%x", vaddr),
		"length": fmt.Sprint(length),
	})
	if err := c.do(req, "GET", "/memory", &out); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(out.Data)
}

func (c *client) writeMemory(handle uint32, vaddr uint64, data []byte) (uint64, error) {
	var out struct {
		Actual uint64 `json:"actual"`
	}
	req := c.http.R().SetBody(map[string]interface{}{
		"handle": handle,
		"vaddr":  vaddr,
		"data":   base64.StdEncoding.EncodeToString(data),
	})
	err := c.do(req, "PUT", "/memory", &out)
	return out.Actual, err
}

func (c *client) readThreadState(handle uint32, kind string) ([]byte, error) {
	var out struct {
		Data string `json:"data"`
	}
	req := c.http.R().SetQueryParams(map[string]string{
		"handle": fmt.Sprint(handle),
		"kind":   kind,
	})
	if err := c.do(req, "GET", "/threads/state", &out); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(out.Data)
}

func (c *client) transferHandle(procHandle, handle uint32) (uint32, error) {
	var out struct {
		NewHandle uint32 `json:"new_handle"`
	}
	req := c.http.R().SetBody(map[string]uint32{
		"process_handle": procHandle,
		"handle":         handle,
	})
	err := c.do(req, "POST", "/handles/transfer", &out)
	return out.NewHandle, err
}

func (c *client) consoleCommand(line string) error {
	req := c.http.R().SetBody(map[string]string{"command": line})
	return c.do(req, "POST", "/console/command", nil)
}

func (c *client) consoleWrite(data []byte) (uint32, error) {
	var out struct {
		Written uint32 `json:"written"`
	}
	req := c.http.R().SetBody(map[string]string{
		"data": base64.StdEncoding.EncodeToString(data),
	})
	err := c.do(req, "POST", "/console/write", &out)
	return out.Written, err
}

type traceStats struct {
	Size    uint32 `json:"size"`
	Used    uint32 `json:"used"`
	Running bool   `json:"running"`
	Probes  int    `json:"probes"`
}

func (c *client) ktraceStats() (traceStats, error) {
	var out traceStats
	err := c.do(c.http.R(), "GET", "/ktrace/stats", &out)
	return out, err
}

func (c *client) ktraceControl(action string, name string) (uint32, error) {
	var out struct {
		ProbeID uint32 `json:"probe_id"`
	}
	body := map[string]interface{}{"action": action}
	if name != "" {
		body["name"] = name
	}
	req := c.http.R().SetBody(body)
	err := c.do(req, "POST", "/ktrace/control", &out)
	return out.ProbeID, err
}

func (c *client) ktraceWrite(eventID, arg0, arg1 uint32) error {
	req := c.http.R().SetBody(map[string]uint32{
		"event_id": eventID,
		"arg0":     arg0,
		"arg1":     arg1,
	})
	return c.do(req, "POST", "/ktrace/write", nil)
}

type traceRecord struct {
	Tag       uint32 `json:"tag"`
	Timestamp uint64 `json:"timestamp"`
	Arg0      uint32 `json:"arg0"`
	Arg1      uint32 `json:"arg1"`
}

func (c *client) ktraceRead(offset, length uint32) ([]traceRecord, error) {
	var out struct {
		Records []traceRecord `json:"records"`
	}
	req := c.http.R().SetQueryParams(map[string]string{
		"offset": fmt.Sprint(offset),
		"length": fmt.Sprint(length),
	})
	err := c.do(req, "GET", "/ktrace", &out)
	return out.Records, err
}
