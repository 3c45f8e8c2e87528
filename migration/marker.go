package migration

import (
	"bufio"
	"strings"
)

// NewModelMarker prefixes bookkeeping lines produced by the table generator,
// they name the schema objects a migration creates and are never executed
const NewModelMarker = "### New Model: "

type SchemaObject struct {
	App   string
	Model string
}

func (o SchemaObject) String() string {
	if o.App == "" {
		return o.Model
	}

	return o.App + "." + o.Model
}

func parseSchemaObject(s string) SchemaObject {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return SchemaObject{App: s[:i], Model: s[i+1:]}
	}

	return SchemaObject{Model: s}
}

// StripMarkers removes new-model marker lines from the SQL and returns
// what is left to execute together with the objects the markers announced
func StripMarkers(content string) (string, []SchemaObject) {
	var objects []SchemaObject
	var b strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, NewModelMarker) {
			if obj := parseSchemaObject(strings.TrimPrefix(line, NewModelMarker)); obj.Model != "" {
				objects = append(objects, obj)
			}
			continue
		}

		if !first {
			b.WriteString("\n")
		}
		b.WriteString(line)
		first = false
	}

	return b.String(), objects
}
