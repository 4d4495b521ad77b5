package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/delivery-sensor/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"stateClass": func(s string) string {
		switch s {
		case "OPEN":
			return "open"
		case "CLOSED":
			return "closed"
		case "ERROR":
			return "error"
		}
		return "unknown"
	},
	"inc": func(i int) int { return i + 1 },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Delivery Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #06c; font-weight: bold; }
.error { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Delivery Sensor</h1>

<h2>Door</h2>
<table>
<tr><th>Door</th><td id="door-state" class="{{stateClass (printf "%s" .Door)}}">{{stateOrUnknown (printf "%s" .Door)}}</td></tr>
{{range $i, $l := .Latches}}<tr><th>Latch {{inc $i}}</th><td class="{{stateClass (printf "%s" $l.State)}}">{{$l.State}} (open={{$l.OpenLimit}} close={{$l.CloseLimit}})</td></tr>
{{end}}<tr><th>Ready</th><td>{{if .Baselined}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Sensors</h2>
<table>
<tr><th>Temperature</th><td>{{if .Sensors.HasTemperature}}{{printf "%.2f" .Sensors.Temperature}} &deg;C{{else}}n/a{{end}}</td></tr>
<tr><th>Distance</th><td>{{if .Sensors.HasDistance}}{{printf "%.0f" .Sensors.Distance}} mm (raw {{printf "%.0f" .Sensors.RawDistance}}){{else}}n/a{{end}}</td></tr>
<tr><th>In range</th><td>{{if .Sensors.InRange}}yes{{else}}no{{end}} ({{.Config.RangeMinMM}}&ndash;{{.Config.RangeMaxMM}} mm)</td></tr>
<tr><th>Sockets</th><td id="sockets">{{range $i, $s := .Sockets}}{{if $i}} {{end}}{{inc $i}}:{{if $s}}1{{else}}0{{end}}{{end}}</td></tr>
</table>

<h2>Link</h2>
<table>
<tr><th>State</th><td id="link-state" class="{{if .Link.State.Connected}}connected{{else}}disconnected{{end}}">{{.Link.State}}</td></tr>
<tr><th>Device</th><td>{{.Config.LinkDevice}}</td></tr>
{{if .Link.SessionID}}<tr><th>Session</th><td>{{.Link.SessionID}}</td></tr>{{end}}
<tr><th>Sent</th><td>{{.Link.Sent}}</td></tr>
<tr><th>Dropped</th><td>{{.Link.Dropped}}</td></tr>
<tr><th>Failed</th><td>{{.Link.Failed}}</td></tr>
<tr><th>Connects</th><td>{{.Link.Connects}} ({{.Link.Sessions}} sessions)</td></tr>
<tr><th>Queued</th><td>{{.Link.Queued}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>DOOR OPEN</th><td>{{.Counts.Open}}</td></tr>
<tr><th>DOOR CLOSED</th><td>{{.Counts.Closed}}</td></tr>
<tr><th>DOOR ERROR</th><td>{{.Counts.Error}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopMs}}ms</td></tr>
<tr><th>Sampling</th><td>limit {{.Config.LimitPollMs}}ms / distance {{.Config.DistancePollMs}}ms / temperature {{.Config.TemperaturePollMs}}ms</td></tr>
<tr><th>Windows</th><td>limit {{.Config.LimitWindow}} / distance {{.Config.DistanceWindow}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
