// Package registry implements the module/element component model and
// its strict-order lifecycle: MODULE_INIT, ELEMENT_INIT, POST_INIT,
// two BIND rounds, then START. The Registry is also the sched.Dispatcher
// that routes dispatched events to the owning module's callbacks.
package registry

import (
	"scpcore-go/corelog"
	"scpcore-go/errcode"
	"scpcore-go/id"
	"scpcore-go/irq"
	"scpcore-go/sched"
	"scpcore-go/x/strx"
)

type elementCtx struct {
	idx   int
	desc  ElementDescriptor
	state State
}

type moduleCtx struct {
	idx      int
	desc     ModuleDescriptor
	cfg      ModuleConfig
	state    State
	elements []*elementCtx
}

func (m *moduleCtx) id() id.ID { return id.Module(m.idx) }

// name returns the module's descriptor name, falling back to a
// placeholder for unnamed modules so log lines never render an empty
// quoted string.
func (m *moduleCtx) name() string { return strx.Coalesce(m.desc.Name, "<unnamed module>") }

// ProcessEvent implements sched.Handler.
func (m *moduleCtx) ProcessEvent(e sched.Event) (sched.Event, errcode.Code) {
	if m.desc.ProcessEvent == nil {
		return sched.Event{}, errcode.ESupport
	}
	return m.desc.ProcessEvent(e)
}

// ProcessNotification implements sched.Handler.
func (m *moduleCtx) ProcessNotification(e sched.Event) (sched.Event, errcode.Code) {
	if m.desc.ProcessNotification == nil {
		return sched.Event{}, errcode.ESupport
	}
	return m.desc.ProcessNotification(e)
}

// Registry owns the ordered module list and drives the lifecycle. It
// is also the sched.Dispatcher used to construct the Scheduler.
type Registry struct {
	shim    *irq.Shim
	log     corelog.Logger
	modules []*moduleCtx
}

// New returns an empty Registry. Modules are added with Register
// before the lifecycle runs.
func New(shim *irq.Shim, log corelog.Logger) *Registry {
	if log == nil {
		log = corelog.Discard{}
	}
	return &Registry{shim: shim, log: log}
}

// Register adds a module descriptor, returning its assigned Module
// ID. Indices are assigned in call order and form the stable
// namespace IDs rely on (spec §4.2).
func (r *Registry) Register(desc ModuleDescriptor, cfg ModuleConfig) id.ID {
	idx := len(r.modules)
	r.modules = append(r.modules, &moduleCtx{idx: idx, desc: desc, cfg: cfg})
	return id.Module(idx)
}

// HandlerFor implements sched.Dispatcher.
func (r *Registry) HandlerFor(moduleIdx int) (sched.Handler, bool) {
	if moduleIdx < 0 || moduleIdx >= len(r.modules) {
		return nil, false
	}
	return r.modules[moduleIdx], true
}

func (r *Registry) moduleByID(target id.ID) (*moduleCtx, errcode.Code) {
	idx := target.ModuleIdx()
	if idx < 0 || idx >= len(r.modules) {
		return nil, errcode.EParam
	}
	return r.modules[idx], errcode.Success
}

// ModuleState reports a registered module's current lifecycle state.
func (r *Registry) ModuleState(moduleID id.ID) (State, errcode.Code) {
	m, code := r.moduleByID(moduleID)
	if code != errcode.Success {
		return StateUninitialized, code
	}
	return m.state, errcode.Success
}

func (r *Registry) moduleBind(source, target id.ID, apiID int) (any, errcode.Code) {
	m, code := r.moduleByID(target)
	if code != errcode.Success {
		return nil, code
	}
	if m.desc.ProcessBindRequest == nil {
		return nil, errcode.ESupport
	}
	return m.desc.ProcessBindRequest(source, target, apiID)
}

// Run drives the entire lifecycle to completion under a single
// interrupts-masked critical section (spec §4.2: "During phases 1–5
// interrupts are globally masked"). Any callback returning a
// non-success code aborts the remaining phases; Run returns that
// code to the caller.
func (r *Registry) Run() errcode.Code {
	var result errcode.Code
	r.shim.Critical(func() {
		result = r.runPhases()
	})
	return result
}

func (r *Registry) runPhases() errcode.Code {
	if code := r.moduleInit(); code != errcode.Success {
		return code
	}
	if code := r.elementInit(); code != errcode.Success {
		return code
	}
	if code := r.postInit(); code != errcode.Success {
		return code
	}
	if code := r.bind(0); code != errcode.Success {
		return code
	}
	if code := r.bind(1); code != errcode.Success {
		return code
	}
	return r.start()
}

func (r *Registry) moduleInit() errcode.Code {
	for _, m := range r.modules {
		var elems []ElementDescriptor
		if m.cfg.Generator != nil {
			elems = m.cfg.Generator(m.id())
		} else {
			elems = m.cfg.Elements
		}
		m.elements = make([]*elementCtx, len(elems))
		for i, ed := range elems {
			m.elements[i] = &elementCtx{idx: i, desc: ed}
		}
		if m.desc.Init != nil {
			if code := m.desc.Init(m.id(), len(elems), m.cfg.Data); code != errcode.Success {
				r.log.Errorf("module_init failed for %q: %v", m.name(), code)
				return code
			}
		}
		m.state = StateInitialized
	}
	return errcode.Success
}

func (r *Registry) elementInit() errcode.Code {
	for _, m := range r.modules {
		for _, e := range m.elements {
			if e.desc.Data == nil {
				r.log.Errorf("element_init rejected: %q element %d has nil data", m.name(), e.idx)
				return errcode.EParam
			}
			eid := id.Element(m.idx, e.idx)
			if m.desc.ElementInit != nil {
				if code := m.desc.ElementInit(eid, e.desc.SubElementCount, e.desc.Data); code != errcode.Success {
					r.log.Errorf("element_init failed for %q element %d: %v", m.name(), e.idx, code)
					return code
				}
			}
			e.state = StateInitialized
		}
	}
	return errcode.Success
}

func (r *Registry) postInit() errcode.Code {
	for _, m := range r.modules {
		if m.desc.PostInit == nil {
			continue
		}
		if code := m.desc.PostInit(m.id()); code != errcode.Success {
			r.log.Errorf("post_init failed for %q: %v", m.name(), code)
			return code
		}
	}
	return errcode.Success
}

func (r *Registry) bind(round int) errcode.Code {
	for _, m := range r.modules {
		if m.desc.Bind == nil {
			continue
		}
		b := &Binder{r: r, source: m.id()}
		if code := m.desc.Bind(b, m.id(), round); code != errcode.Success {
			r.log.Errorf("bind round %d failed for %q: %v", round, m.name(), code)
			return code
		}
		for _, e := range m.elements {
			eid := id.Element(m.idx, e.idx)
			b := &Binder{r: r, source: eid}
			if code := m.desc.Bind(b, eid, round); code != errcode.Success {
				r.log.Errorf("bind round %d failed for %q element %d: %v", round, m.name(), e.idx, code)
				return code
			}
		}
	}
	if round == 1 {
		for _, m := range r.modules {
			m.state = StateBound
		}
	}
	return errcode.Success
}

func (r *Registry) start() errcode.Code {
	for _, m := range r.modules {
		if m.desc.Start != nil {
			if code := m.desc.Start(m.id()); code != errcode.Success {
				r.log.Errorf("start failed for %q: %v", m.name(), code)
				return code
			}
		}
		for _, e := range m.elements {
			eid := id.Element(m.idx, e.idx)
			if m.desc.Start != nil {
				if code := m.desc.Start(eid); code != errcode.Success {
					r.log.Errorf("start failed for %q element %d: %v", m.name(), e.idx, code)
					return code
				}
			}
			e.state = StateStarted
		}
		m.state = StateStarted
		r.log.Lifecyclef("module %q started", m.name())
	}
	return errcode.Success
}
