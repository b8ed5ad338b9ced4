// Package collector records what the page says on the console and which
// responses it receives from the chat backend.
package collector

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
)

// ConsoleEntry is one console message as the page emitted it.
type ConsoleEntry struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func (e ConsoleEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Level, e.Text)
}

// NetworkEvent is a response whose URL contained the marker.
type NetworkEvent struct {
	URL     string            `json:"url"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
}

// Collector accumulates console entries and marked network responses. It is
// fed from the browser's event goroutine and read after the run.
type Collector struct {
	marker string

	mu      sync.Mutex
	console []ConsoleEntry
	network []NetworkEvent
}

// New returns a Collector that keeps responses whose URL contains marker.
// An empty marker keeps every response.
func New(marker string) *Collector {
	return &Collector{marker: marker}
}

// HandleEvent is suitable for chromedp.ListenTarget. Events it does not know
// are ignored.
func (c *Collector) HandleEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		c.AddConsole(string(e.Type), consoleText(e.Args))
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		c.AddResponse(e.Response.URL, int(e.Response.Status), flattenHeaders(e.Response.Headers))
	}
}

// AddConsole records a console message unconditionally.
func (c *Collector) AddConsole(level, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, ConsoleEntry{Level: level, Text: text})
}

// AddResponse records a response if its URL carries the marker and reports
// whether it did.
func (c *Collector) AddResponse(url string, status int, headers map[string]string) bool {
	if !strings.Contains(url, c.marker) {
		return false
	}
	if headers == nil {
		headers = map[string]string{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = append(c.network, NetworkEvent{URL: url, Status: status, Headers: headers})
	return true
}

// Console returns a copy of the console entries in arrival order.
func (c *Collector) Console() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConsoleEntry(nil), c.console...)
}

// Network returns a copy of the recorded network events in arrival order.
func (c *Collector) Network() []NetworkEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]NetworkEvent(nil), c.network...)
}

// consoleText joins the arguments the way a devtools console shows them:
// strings unquoted, other primitives as JSON, objects by description.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case len(arg.Value) > 0:
			var s string
			if err := json.Unmarshal([]byte(arg.Value), &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(arg.Value))
			}
		case arg.UnserializableValue != "":
			parts = append(parts, string(arg.UnserializableValue))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return out
}
