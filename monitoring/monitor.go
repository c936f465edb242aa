// Package monitoring turns a running wallet process into a small HTTP server
// that reports the live state of its event handlers.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/walletforge/eventcore/event"
)

// Monitor allows external observation of the process's event handlers.
type Monitor struct {
	portNumber int

	lock     sync.Mutex
	handlers []*monitoredHandler
}

type monitoredHandler struct {
	handler *event.Handler
	counter *dispatchCounter
}

// dispatchCounter counts dispatches through the hook mechanism.
type dispatchCounter struct {
	count atomic.Uint64
}

func (c *dispatchCounter) Func(ctx event.HookCtx) {
	if ctx.Pos != event.HookPosAfterDispatch {
		return
	}

	c.count.Add(1)
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterHandler registers a handler to be monitored. A counting hook is
// attached, so registration must happen before the handler is started.
func (m *Monitor) RegisterHandler(h *event.Handler) {
	counter := &dispatchCounter{}
	h.AcceptHook(counter)

	m.lock.Lock()
	m.handlers = append(m.handlers, &monitoredHandler{
		handler: h,
		counter: counter,
	})
	m.lock.Unlock()
}

// StartServer starts the monitoring server and returns the port it listens
// on.
func (m *Monitor) StartServer() int {
	r := mux.NewRouter()
	r.HandleFunc("/api/handlers", m.listHandlers)
	r.HandleFunc("/api/handlers/{name}", m.handlerDetail)
	r.HandleFunc("/api/process", m.processInfo)

	addr := fmt.Sprintf(":%d", m.portNumber)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		panic(err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Monitoring server started on http://localhost:%d\n", port)

	go func() {
		err := http.Serve(listener, r)
		if err != nil {
			log.Print(err)
		}
	}()

	return port
}

// HandlerStatus is the externally visible state of one handler.
type HandlerStatus struct {
	Name       string   `json:"name"`
	Running    bool     `json:"running"`
	QueueLen   int      `json:"queue_len"`
	Dispatches uint64   `json:"dispatches"`
	EventTypes []string `json:"event_types"`
}

func (m *Monitor) status(h *monitoredHandler) HandlerStatus {
	types := make([]string, 0, len(h.handler.Types()))
	for _, t := range h.handler.Types() {
		types = append(types, t.Name)
	}

	return HandlerStatus{
		Name:       h.handler.Name(),
		Running:    h.handler.IsRunning(),
		QueueLen:   h.handler.QueueLen(),
		Dispatches: h.counter.count.Load(),
		EventTypes: types,
	}
}

func (m *Monitor) listHandlers(w http.ResponseWriter, r *http.Request) {
	m.lock.Lock()
	statuses := make([]HandlerStatus, 0, len(m.handlers))
	for _, h := range m.handlers {
		statuses = append(statuses, m.status(h))
	}
	m.lock.Unlock()

	writeJSON(w, statuses)
}

func (m *Monitor) handlerDetail(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.lock.Lock()
	defer m.lock.Unlock()

	for _, h := range m.handlers {
		if h.handler.Name() == name {
			writeJSON(w, m.status(h))
			return
		}
	}

	http.Error(w, "handler not found", http.StatusNotFound)
}

// processResources reports the wallet process's own resource usage.
type processResources struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

func (m *Monitor) processInfo(w http.ResponseWriter, r *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpu, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, processResources{
		CPUPercent: cpu,
		MemoryRSS:  mem.RSS,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
