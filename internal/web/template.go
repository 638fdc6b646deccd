package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-bridge/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		case "BLINK":
			return "blink"
		}
		return "unknown"
	},
	"orDisabled": func(s string) string {
		if s == "" {
			return "disabled"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>GPIO Bridge</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.kv th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.blink { color: orange; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>GPIO Bridge</h1>

<h2>Lines</h2>
{{if .Lines}}<table>
<tr><th>ID</th><th>Chip</th><th>Offset</th><th>State</th><th>Last action</th><th>Changes</th><th>Changed</th></tr>
{{range .Lines}}<tr><td>{{.ID}}</td><td>{{.Chip}}</td><td>{{.Offset}}</td><td class="{{stateClass (printf "%s" .State)}}">{{if .State}}{{.State}}{{else}}UNKNOWN{{end}}</td><td>{{.Action}}</td><td>{{.Changes}}</td><td>{{.Changed.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{end}}</table>{{else}}<p>No line has changed yet.</p>{{end}}

<h2>Sessions</h2>
<table class="kv">
<tr><th>Active</th><td>{{.ActiveSessions}}</td></tr>
<tr><th>Total</th><td>{{.TotalSessions}}</td></tr>
<tr><th>ACK</th><td>{{.Counts.ACK}}</td></tr>
<tr><th>NAK</th><td>{{.Counts.NAK}}</td></tr>
</table>

<h2>Connectivity</h2>
<table class="kv">
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orDisabled .Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table class="kv">
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Listen</th><td>{{.Config.Listen}}</td></tr>
<tr><th>Serial</th><td>{{orDisabled .Config.Serial}}</td></tr>
<tr><th>Chips</th><td>{{.Config.Chips}} ({{.Config.ChipPath}}N)</td></tr>
<tr><th>Idle timeout</th><td>{{if eq .Config.IdleTimeoutMs 0}}disabled{{else}}{{.Config.IdleTimeoutMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
