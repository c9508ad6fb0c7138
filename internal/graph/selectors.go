package graph

import (
	"strings"

	"lpukit/internal/model"
)

// Selectors lists the port selectors a unit declares, per direction and kind.
type Selectors struct {
	InGpot   []string
	InSpike  []string
	OutGpot  []string
	OutSpike []string
}

// ExtractSelectors collects selectors in model discovery order. Input ports
// come from the port-input pseudo-models, outputs from public neurons.
func ExtractSelectors(g model.Graph) Selectors {
	var s Selectors
	for _, n := range g.Neurons {
		switch n.Model {
		case model.PortInGpot:
			s.InGpot = appendNonEmpty(s.InGpot, n.Selector...)
			continue
		case model.PortInSpike:
			s.InSpike = appendNonEmpty(s.InSpike, n.Selector...)
			continue
		}
		for i, pub := range n.Public {
			if !pub {
				continue
			}
			if n.Spiking {
				s.OutSpike = appendNonEmpty(s.OutSpike, n.Selector[i])
			} else {
				s.OutGpot = appendNonEmpty(s.OutGpot, n.Selector[i])
			}
		}
	}
	return s
}

func (s Selectors) In() string {
	return Join(Join(s.InSpike...), Join(s.InGpot...))
}

func (s Selectors) Out() string {
	return Join(Join(s.OutSpike...), Join(s.OutGpot...))
}

func (s Selectors) Gpot() string {
	return Join(Join(s.InGpot...), Join(s.OutGpot...))
}

func (s Selectors) Spike() string {
	return Join(Join(s.InSpike...), Join(s.OutSpike...))
}

func (s Selectors) All() string {
	return Join(s.In(), s.Out())
}

// Join comma-joins selectors, dropping empty entries.
func Join(parts ...string) string {
	return strings.Join(appendNonEmpty(nil, parts...), ",")
}

func appendNonEmpty(dst []string, parts ...string) []string {
	for _, p := range parts {
		if p != "" {
			dst = append(dst, p)
		}
	}
	return dst
}
