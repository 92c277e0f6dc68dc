package report

import (
	"fmt"
	"html/template"
	"io"

	api "github.com/retirectl/retirectl/api/v1alpha1"
)

var htmlTemplate = template.Must(template.New("audit").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Retirement run {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #eee; }
.Failed { color: #b00; }
.Partial { color: #b60; }
.Done { color: #070; }
</style>
</head>
<body>
<h1>Retirement run {{.RunID}}</h1>
<p>Started {{.StartedAt.Format "2006-01-02 15:04:05 MST"}}, completed {{.CompletedAt.Format "2006-01-02 15:04:05 MST"}}.</p>

<h2>Phase totals</h2>
<table>
<tr><th>Phase</th><th>Success</th><th>Failed</th><th>Skipped</th><th>NotFound</th></tr>
{{- range $phase, $counts := .PhaseCounts}}
<tr><td>{{$phase}}</td><td>{{$counts.Success}}</td><td>{{$counts.Failed}}</td><td>{{$counts.Skipped}}</td><td>{{$counts.NotFound}}</td></tr>
{{- end}}
</table>

<h2>Devices</h2>
<table>
<tr><th>Serial</th><th>Device ID</th><th>Model</th><th>Overall</th><th>Phases</th></tr>
{{- range .Devices}}
<tr>
<td>{{.SerialNumber}}</td><td>{{.DeviceID}}</td><td>{{.Model}}</td>
<td class="{{.Overall}}">{{.Overall}}</td>
<td>{{- range .Outcomes}}{{.Phase}}={{.Status}}{{if .ErrorDetail}} ({{.ErrorDetail}}){{end}}; {{end}}</td>
</tr>
{{- end}}
</table>

{{- if .NoDecision}}
<h2>No decision</h2>
<p>{{len .NoDecision}} auto-selected device(s) carried no decision and were not processed:</p>
<ul>
{{- range .NoDecision}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}

{{- if .Excluded}}
<h2>Excluded by eligibility</h2>
<table>
<tr><th>Serial</th><th>Model</th><th>Reason</th><th>Detail</th></tr>
{{- range .Excluded}}
<tr><td>{{.Device.SerialNumber}}</td><td>{{.Device.Model}}</td><td>{{.Reason}}</td><td>{{.Detail}}</td></tr>
{{- end}}
</table>
{{- end}}
</body>
</html>
`))

// WriteHTML renders the audit summary as a standalone report page.
func WriteHTML(w io.Writer, summary *api.AuditSummary) error {
	if err := htmlTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("rendering audit report: %w", err)
	}
	return nil
}
