package calculator

import (
	"sync"

	"github.com/macfox/costcalc/internal/catalog"
)

// State is the user-editable input of a calculator session.
type State struct {
	InputTokens     int64  `json:"input_tokens"`
	OutputTokens    int64  `json:"output_tokens"`
	SelectedModelID string `json:"selected_model_id"`
	Requests        int64  `json:"requests"`
}

// DefaultState selects the first catalog entry, or nothing for an empty catalog.
func DefaultState(cat *catalog.Catalog) State {
	st := State{Requests: 1}
	if first, ok := cat.First(); ok {
		st.SelectedModelID = first.ID
	}
	return st
}

// Snapshot is a consistent view of the inputs and everything derived from them.
type Snapshot struct {
	State     State               `json:"state"`
	Model     *catalog.ModelPrice `json:"model,omitempty"`
	Cost      float64             `json:"cost_usd"`
	Breakdown Breakdown           `json:"breakdown"`
	Notes     string              `json:"notes,omitempty"`
	HasNotes  bool                `json:"-"`
}

func (s Snapshot) SelectedModel() (catalog.ModelPrice, bool) {
	if s.Model == nil {
		return catalog.ModelPrice{}, false
	}
	return *s.Model, true
}

func derive(cat *catalog.Catalog, st State) Snapshot {
	snap := Snapshot{State: st}
	model, ok := SelectModel(cat, st.SelectedModelID)
	if ok {
		snap.Model = &model
	}
	snap.Breakdown = Estimate(st.InputTokens, st.OutputTokens, model, ok, st.Requests)
	snap.Cost = snap.Breakdown.Total
	snap.Notes, snap.HasNotes = Notes(model, ok)
	return snap
}

// Calculator holds one session's input state and keeps the derived values
// current. Subscribers see each accepted update exactly once, after the
// whole snapshot has been recomputed.
type Calculator struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	current Snapshot
	nextID  int
	subs    map[int]func(Snapshot)
	order   []int
}

func New(cat *catalog.Catalog) *Calculator {
	return NewWithState(cat, DefaultState(cat))
}

func NewWithState(cat *catalog.Catalog, st State) *Calculator {
	return &Calculator{
		catalog: cat,
		current: derive(cat, st),
		subs:    map[int]func(Snapshot){},
	}
}

func (c *Calculator) Catalog() *catalog.Catalog {
	return c.catalog
}

func (c *Calculator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.State
}

func (c *Calculator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Calculator) SelectedModel() (catalog.ModelPrice, bool) {
	return c.Snapshot().SelectedModel()
}

func (c *Calculator) Cost() float64 {
	return c.Snapshot().Cost
}

func (c *Calculator) Notes() (string, bool) {
	snap := c.Snapshot()
	return snap.Notes, snap.HasNotes
}

func (c *Calculator) SetInputTokens(n int64) {
	c.update(func(st *State) { st.InputTokens = n })
}

func (c *Calculator) SetOutputTokens(n int64) {
	c.update(func(st *State) { st.OutputTokens = n })
}

func (c *Calculator) SetSelectedModelID(id string) {
	c.update(func(st *State) { st.SelectedModelID = id })
}

func (c *Calculator) SetRequests(n int64) {
	c.update(func(st *State) { st.Requests = n })
}

// Apply replaces all inputs as a single update.
func (c *Calculator) Apply(st State) {
	c.update(func(cur *State) { *cur = st })
}

// Subscribe registers fn for future updates and returns a function that
// removes it. fn runs on the goroutine that made the change.
func (c *Calculator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

func (c *Calculator) update(mutate func(*State)) {
	c.mu.Lock()
	st := c.current.State
	mutate(&st)
	if st == c.current.State {
		c.mu.Unlock()
		return
	}
	c.current = derive(c.catalog, st)
	snap := c.current
	listeners := make([]func(Snapshot), 0, len(c.order))
	for _, id := range c.order {
		listeners = append(listeners, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
