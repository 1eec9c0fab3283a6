package power

import (
	"errors"
	"fmt"

	"github.com/andreyvit/tinyjson"
)

// EmbeddedTopologyLookup resolves a product name to its embedded
// domain-tree JSON. Products register their build-time tables here;
// tests may override it entirely.
var EmbeddedTopologyLookup = func(product string) ([]byte, bool) {
	b, ok := embeddedTopologies[product]
	return b, ok
}

// embeddedTopologies holds compiled-in product domain-tree
// descriptions; empty in this tree, populated at build time by a
// real product.
var embeddedTopologies = map[string][]byte{}

// TopologyNode is one domain in a product's embedded domain-tree
// description: its Type, its parent's name (empty for a root), the
// per-parent-state allowed-child-state mask table, and whether
// pre-transition notifications are enabled for it (spec §4.6.2,
// §4.6.4). Drivers are not JSON-describable, so BuildTopology takes
// them separately, keyed by node name.
type TopologyNode struct {
	Name                 string
	Type                 Type
	Parent               string
	AllowedStates        map[State]Mask
	PreTransitionEnabled bool
}

var topologyTypeNames = map[string]Type{
	"core":         TypeCore,
	"cluster":      TypeCluster,
	"device":       TypeDevice,
	"device_debug": TypeDeviceDebug,
	"system":       TypeSystem,
}

var topologyStateNames = map[string]State{
	"off":   StateOff,
	"on":    StateOn,
	"sleep": StateSleep,
}

// LoadTopology parses a product's embedded JSON domain-tree
// description into an ordered node list, the same raw-then-EnsureEOF
// tinyjson idiom the registry package uses for its own embedded
// config blobs — a plain tinyjson.Raw parse into []any/map[string]any,
// never a struct-tagged Unmarshal. Nodes must list a parent before any
// of its children; BuildTopology enforces this on assembly.
func LoadTopology(product string) ([]TopologyNode, error) {
	raw, ok := EmbeddedTopologyLookup(product)
	if !ok || len(raw) == 0 {
		return nil, errors.New("power: no embedded topology for product: " + product)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	list, ok := val.([]any)
	if !ok {
		return nil, errors.New("power: embedded topology is not a JSON array")
	}

	nodes := make([]TopologyNode, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("power: topology entry %d is not a JSON object", i)
		}
		node, err := parseTopologyNode(obj)
		if err != nil {
			return nil, fmt.Errorf("power: topology entry %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseTopologyNode(obj map[string]any) (TopologyNode, error) {
	name, _ := obj["name"].(string)
	if name == "" {
		return TopologyNode{}, errors.New("missing name")
	}
	typeName, _ := obj["type"].(string)
	typ, ok := topologyTypeNames[typeName]
	if !ok {
		return TopologyNode{}, fmt.Errorf("unknown type %q", typeName)
	}
	parent, _ := obj["parent"].(string)
	preTransition, _ := obj["pre_transition_enabled"].(bool)

	mask, err := parseAllowedStates(obj["allowed_states"])
	if err != nil {
		return TopologyNode{}, err
	}

	return TopologyNode{
		Name:                 name,
		Type:                 typ,
		Parent:               parent,
		AllowedStates:        mask,
		PreTransitionEnabled: preTransition,
	}, nil
}

func parseAllowedStates(raw any) (map[State]Mask, error) {
	if raw == nil {
		return nil, nil
	}
	rawMask, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("allowed_states is not a JSON object")
	}
	mask := make(map[State]Mask, len(rawMask))
	for fromName, toAny := range rawMask {
		from, ok := topologyStateNames[fromName]
		if !ok {
			return nil, fmt.Errorf("unknown state %q", fromName)
		}
		toList, ok := toAny.([]any)
		if !ok {
			return nil, fmt.Errorf("allowed_states[%q] is not an array", fromName)
		}
		var toStates []State
		for _, toNameAny := range toList {
			toName, _ := toNameAny.(string)
			to, ok := topologyStateNames[toName]
			if !ok {
				return nil, fmt.Errorf("unknown state %q", toName)
			}
			toStates = append(toStates, to)
		}
		mask[from] = MaskOf(toStates...)
	}
	return mask, nil
}

// BuildTopology adds each node to m in list order (parents must
// precede children, the order LoadTopology returns them in), using
// drivers supplied by the caller and keyed by node name — the code
// side of the split the spec draws between static topology shape
// (data) and concrete device drivers (code, §6.3). It returns the
// resulting domains keyed by name.
func BuildTopology(m *Machine, nodes []TopologyNode, drivers map[string]Driver) (map[string]*Domain, error) {
	domains := make(map[string]*Domain, len(nodes))
	for i, n := range nodes {
		var parent *Domain
		if n.Parent != "" {
			p, ok := domains[n.Parent]
			if !ok {
				return nil, fmt.Errorf("power: topology node %q references parent %q before it is added", n.Name, n.Parent)
			}
			parent = p
		}
		drv, ok := drivers[n.Name]
		if !ok {
			return nil, fmt.Errorf("power: no driver supplied for topology node %q", n.Name)
		}
		domains[n.Name] = m.AddDomain(i, n.Name, n.Type, drv, n.AllowedStates, parent, n.PreTransitionEnabled)
	}
	return domains, nil
}
