package registry

import (
	"errors"

	"github.com/andreyvit/tinyjson"

	"scpcore-go/corelog"
	"scpcore-go/irq"
	"scpcore-go/notify"
	"scpcore-go/sched"
)

// EmbeddedConfigLookup resolves a product name to its static
// configuration bytes. Products register their build-time JSON
// tables here; tests and products may override it entirely.
var EmbeddedConfigLookup = func(product string) ([]byte, bool) {
	b, ok := embeddedConfigs[product]
	return b, ok
}

// embeddedConfigs holds compiled-in product configuration tables.
// A real product populates this at build time (spec §6.4: "bundled
// at build time as a static list of module descriptors and element
// tables"); it is empty in this tree.
var embeddedConfigs = map[string][]byte{}

// Config carries the pool/queue sizings a product assembles at link
// time: the scheduler's two queue capacities (§3.7) and the
// notification bus's subscription-pool capacity (§3.8). These are the
// only pieces of the lifecycle that are legitimately data rather than
// a static descriptor list.
type Config struct {
	NormalCapacity       int
	ISRCapacity          int
	SubscriptionCapacity int
}

// DefaultConfig supplies every sizing a product's embedded JSON
// leaves unset.
var DefaultConfig = Config{
	NormalCapacity:       32,
	ISRCapacity:          16,
	SubscriptionCapacity: 16,
}

// LoadConfig parses a product's embedded JSON configuration into a
// Config, starting from DefaultConfig and overriding whichever fields
// the JSON object supplies.
func LoadConfig(product string) (Config, error) {
	m, err := LoadStaticConfig(product)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig
	if v, ok := intField(m, "normal_capacity"); ok {
		cfg.NormalCapacity = v
	}
	if v, ok := intField(m, "isr_capacity"); ok {
		cfg.ISRCapacity = v
	}
	if v, ok := intField(m, "subscription_capacity"); ok {
		cfg.SubscriptionCapacity = v
	}
	return cfg, nil
}

// intField reads a JSON number field as an int; tinyjson decodes
// numbers as float64, same as encoding/json.
func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// LoadStaticConfig parses a product's embedded JSON configuration
// into a plain map, the same way the teacher's config service reads
// its embedded device configs: a raw tinyjson.Raw parse followed by
// an EnsureEOF check, never a struct-tagged Unmarshal.
func LoadStaticConfig(product string) (map[string]any, error) {
	raw, ok := EmbeddedConfigLookup(product)
	if !ok || len(raw) == 0 {
		return nil, errors.New("registry: no embedded config for product: " + product)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return nil, errors.New("registry: embedded config is not a JSON object")
	}
	return m, nil
}

// Bootstrap is the link-time wiring point a product's main package
// calls once: it loads product's Config and uses its sizings to
// construct the Scheduler and the notification Bus, then returns a
// fresh Registry (using the same Scheduler as its Dispatcher) ready
// for Register calls. This ties registry.Config's JSON-sourced
// sizings to the components that actually consume them, rather than
// those capacities being hand-set in product code.
func Bootstrap(product string, shim *irq.Shim, log corelog.Logger) (*Registry, *sched.Scheduler, *notify.Bus, error) {
	cfg, err := LoadConfig(product)
	if err != nil {
		return nil, nil, nil, err
	}
	r := New(shim, log)
	sc := sched.New(sched.Config{NormalCapacity: cfg.NormalCapacity, ISRCapacity: cfg.ISRCapacity}, shim, r, log)
	bus := notify.NewBus(cfg.SubscriptionCapacity, shim, sc)
	return r, sc, bus, nil
}
