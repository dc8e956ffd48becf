package submissions

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"
)

const viewTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Submissions</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; }
    .submission { border: 1px solid #ddd; border-radius: 4px; margin-bottom: 1rem; padding: 0.5rem 1rem; }
    .timestamp { color: #666; font-size: 0.9rem; }
  </style>
</head>
<body>
  <h1>Submissions</h1>
  <div id="submissions">
{{- range .}}
    <div class="submission">
      <div class="timestamp">{{.Timestamp}}</div>
      <ul>
{{- range .Fields}}
        <li><strong>{{.Key}}:</strong> {{.Value}}</li>
{{- end}}
      </ul>
    </div>
{{- else}}
    <p class="empty">No submissions yet.</p>
{{- end}}
  </div>
</body>
</html>
`

var view = template.Must(template.New("submissions").Parse(viewTemplate))

type viewField struct {
	Key   string
	Value string
}

type viewRecord struct {
	Timestamp string
	Fields    []viewField
}

// render produces the HTML page. html/template escapes every key and value.
func render(records []Record) ([]byte, error) {
	rows := make([]viewRecord, 0, len(records))
	for _, rec := range records {
		row := viewRecord{Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano)}
		keys := make([]string, 0, len(rec.Data))
		for k := range rec.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			row.Fields = append(row.Fields, viewField{Key: k, Value: fmt.Sprint(rec.Data[k])})
		}
		rows = append(rows, row)
	}
	var buf bytes.Buffer
	if err := view.Execute(&buf, rows); err != nil {
		return nil, fmt.Errorf("render submissions view: %w", err)
	}
	return buf.Bytes(), nil
}
