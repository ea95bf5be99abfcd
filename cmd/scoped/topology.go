package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/clusterscope/clusterscope/internal/processor"
)

// Topology is the static cluster membership a single-process demo or
// test harness seeds the registry with at startup, in lieu of a live
// libp2p membership announcement (SPEC_FULL.md §4.4).
type Topology struct {
	Workers []WorkerSpec `yaml:"workers"`
}

type WorkerSpec struct {
	ID         uint64       `yaml:"id"`
	Node       string       `yaml:"node"`
	Addr       string       `yaml:"addr,omitempty"`
	Processors []ProcSpec   `yaml:"processors"`
}

type ProcSpec struct {
	Type string `yaml:"type"`
	Tid  uint64 `yaml:"tid,omitempty"`
}

// LoadTopology decodes a cluster topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scoped: reading topology file: %w", err)
	}
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("scoped: parsing topology file: %w", err)
	}
	return &topo, nil
}

// Apply seeds reg with every worker in the topology via WorkerJoined,
// the same ingestion path a live membership announcement uses.
func (t *Topology) Apply(reg *processor.Registry) error {
	for _, w := range t.Workers {
		nodeID, err := uuid.Parse(w.Node)
		if err != nil {
			return fmt.Errorf("scoped: worker %d has invalid node uuid %q: %w", w.ID, w.Node, err)
		}

		wid := processor.WorkerId(w.ID)
		children := make([]processor.Processor, 0, len(w.Processors)+1)
		for _, p := range w.Processors {
			switch p.Type {
			case "thread":
				children = append(children, processor.ThreadProc{WorkerID: wid, ThreadID: p.Tid})
			default:
				return fmt.Errorf("scoped: worker %d has unrecognized processor type %q", w.ID, p.Type)
			}
		}

		reg.WorkerJoined(wid, nodeID, children)
	}
	return nil
}
