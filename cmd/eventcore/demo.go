package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/walletforge/eventcore/datarecording"
	"github.com/walletforge/eventcore/event"
	"github.com/walletforge/eventcore/monitoring"
)

var demoFlags struct {
	numHandlers int
	numEvents   int
	period      time.Duration
	duration    time.Duration
	monitor     bool
	port        int
	open        bool
	record      string
	verbose     bool
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a synthetic wallet workload through the event-dispatch core",
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVar(&demoFlags.numHandlers, "handlers", 2,
		"number of handlers to run, one per simulated chain backend")
	demoCmd.Flags().IntVar(&demoFlags.numEvents, "events", 100,
		"number of transfer events to signal per handler")
	demoCmd.Flags().DurationVar(&demoFlags.period, "period",
		500*time.Millisecond, "timeout period of each handler's sync alarm")
	demoCmd.Flags().DurationVar(&demoFlags.duration, "duration",
		3*time.Second, "how long to keep the handlers running")
	demoCmd.Flags().BoolVar(&demoFlags.monitor, "monitor", false,
		"serve live handler state over HTTP")
	demoCmd.Flags().IntVar(&demoFlags.port, "port", 0,
		"monitoring port, 0 picks EVENTCORE_MONITOR_PORT or a random port")
	demoCmd.Flags().BoolVar(&demoFlags.open, "open", false,
		"open the monitoring URL in a browser")
	demoCmd.Flags().StringVar(&demoFlags.record, "record", "",
		"record the dispatch trace into this SQLite database")
	demoCmd.Flags().BoolVar(&demoFlags.verbose, "verbose", false,
		"log every dispatched event")
}

// transferEvent is the demo's stand-in for a backend's wallet event.
type transferEvent struct {
	event.EventBase

	amount int
}

// walletBackend simulates one chain backend: a balance protected by a
// dispatch lock, fed by one handler.
type walletBackend struct {
	lock    sync.Mutex
	name    string
	balance int

	handler *event.Handler
}

func newWalletBackend(name string) *walletBackend {
	b := &walletBackend{name: name}

	transferType := &event.EventType{
		Name: "Transfer Event",
		Dispatcher: func(h *event.Handler, e event.Event) {
			// The handler already holds b.lock for the dispatch.
			b.balance += e.(*transferEvent).amount
		},
	}

	b.handler = event.NewHandler(name,
		[]*event.EventType{transferType}, &b.lock)
	b.handler.SetTimeoutDispatcher(demoFlags.period,
		func(h *event.Handler, e event.Event) {
			backend := e.(*event.TimeoutEvent).Context.(*walletBackend)
			log.Printf("%s: periodic sync, balance %d",
				backend.name, backend.balance)
		},
		b)

	return b
}

func (b *walletBackend) signalTransfer(amount int) {
	t := b.handler.Types()[0]
	b.handler.SignalEvent(&transferEvent{
		EventBase: event.MakeEventBase(t),
		amount:    amount,
	})
}

// monitorPort resolves the monitoring port: the --port flag wins, then
// EVENTCORE_MONITOR_PORT, then 0 for a random port.
func monitorPort(flagPort int, env map[string]string) int {
	if flagPort != 0 {
		return flagPort
	}

	if v, ok := env["EVENTCORE_MONITOR_PORT"]; ok {
		port, err := strconv.Atoi(v)
		if err == nil {
			return port
		}
	}

	return 0
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}

func runDemo(cmd *cobra.Command, args []string) error {
	// A .env file can carry EVENTCORE_MONITOR_PORT; absence is fine.
	_ = godotenv.Load()

	backends := make([]*walletBackend, 0, demoFlags.numHandlers)
	for i := 0; i < demoFlags.numHandlers; i++ {
		backends = append(backends,
			newWalletBackend(fmt.Sprintf("Backend-%d", i)))
	}

	var recorder *datarecording.SQLiteWriter
	if demoFlags.record != "" {
		recorder = datarecording.NewSQLiteWriter(demoFlags.record)
		hook := datarecording.NewDispatchRecorder(recorder)
		for _, b := range backends {
			b.handler.AcceptHook(hook)
		}
	}

	if demoFlags.verbose {
		logger := log.New(os.Stderr, "dispatch ", log.LstdFlags)
		for _, b := range backends {
			b.handler.AcceptHook(event.NewDispatchLogger(logger))
		}
	}

	if demoFlags.monitor {
		monitor := monitoring.NewMonitor().
			WithPortNumber(monitorPort(demoFlags.port, environ()))
		for _, b := range backends {
			monitor.RegisterHandler(b.handler)
		}

		port := monitor.StartServer()
		if demoFlags.open {
			url := fmt.Sprintf(
				"http://localhost:%d/api/handlers", port)
			err := browser.OpenURL(url)
			if err != nil {
				log.Print(err)
			}
		}
	}

	for _, b := range backends {
		b.handler.Start()
	}

	for i := 0; i < demoFlags.numEvents; i++ {
		for _, b := range backends {
			b.signalTransfer(1)
		}
	}

	time.Sleep(demoFlags.duration)

	for _, b := range backends {
		b.handler.Stop()
		log.Printf("%s: final balance %d", b.name, b.balance)
	}

	if recorder != nil {
		recorder.Flush()
	}

	return nil
}
