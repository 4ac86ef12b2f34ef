package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Field is one flattened key/value pair of a result
type Field struct {
	Key   string
	Value string
}

// Flatten turns any JSON-encodable value into dotted key paths, with array
// elements as key[i]. Object keys are sorted at every level.
func Flatten(v interface{}) ([]Field, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	var fields []Field
	flatten("", generic, &fields)
	return fields, nil
}

func flatten(prefix string, v interface{}, out *[]Field) {
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 && prefix != "" {
			*out = append(*out, Field{Key: prefix, Value: "{}"})
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, t[k], out)
		}
	case []interface{}:
		if len(t) == 0 {
			*out = append(*out, Field{Key: prefix, Value: "[]"})
			return
		}
		for i, item := range t {
			flatten(prefix+"["+strconv.Itoa(i)+"]", item, out)
		}
	case nil:
		*out = append(*out, Field{Key: prefix, Value: "-"})
	default:
		*out = append(*out, Field{Key: prefix, Value: fmt.Sprint(t)})
	}
}

// RenderResult writes result as a two-column table
func RenderResult(w io.Writer, title string, result interface{}) error {
	fields, err := Flatten(result)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, f := range fields {
		t.AppendRow(table.Row{f.Key, f.Value})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()
	return nil
}

// OperationInfo describes one registered operation
type OperationInfo struct {
	Name        string
	Description string
}

// RenderOperations lists the available operations
func RenderOperations(w io.Writer, ops []OperationInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("OPERATIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Description"})
	for _, op := range ops {
		t.AppendRow(table.Row{op.Name, op.Description})
	}
	t.Render()
}
