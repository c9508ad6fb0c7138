package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"lpukit/internal/model"
)

// Document is the JSON form of a unit description.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode graph document: %w", err)
	}
	normalizeNumbers(doc.Nodes, doc.Edges)
	return doc, nil
}

// LoadFile reads a JSON graph document and compiles it.
func LoadFile(path string) (model.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Graph{}, err
	}
	defer f.Close()

	doc, err := ReadJSON(f)
	if err != nil {
		return model.Graph{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc.Compile()
}

func (d Document) Compile() (model.Graph, error) {
	nDict, sDict, err := FromRecords(d.Nodes, d.Edges)
	if err != nil {
		return model.Graph{}, err
	}
	return Compile(nDict, sDict)
}

func normalizeNumbers(nodes []Node, edges []Edge) {
	for i := range nodes {
		nodes[i].ID = fromNumber(nodes[i].ID)
		for k, v := range nodes[i].Attrs {
			nodes[i].Attrs[k] = fromNumber(v)
		}
	}
	for i := range edges {
		edges[i].Pre = fromNumber(edges[i].Pre)
		edges[i].Post = fromNumber(edges[i].Post)
		for k, v := range edges[i].Attrs {
			edges[i].Attrs[k] = fromNumber(v)
		}
	}
}

func fromNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
