package conversation

// Context is the ordered, chronological history a persona reasons over.
// It is append-only during a turn and replaced wholesale on handoff.
// Context is not safe for concurrent use; owners guard it.
type Context struct {
	items []Item
}

// NewContext creates a context holding copies of the given items.
func NewContext(items ...Item) *Context {
	c := &Context{items: make([]Item, 0, len(items))}
	for _, item := range items {
		c.items = append(c.items, item.Clone())
	}
	return c
}

// Items returns a copy of the items in chronological order.
func (c *Context) Items() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.Clone()
	}
	return out
}

// Len returns the number of items.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Append adds items to the end of the context.
func (c *Context) Append(items ...Item) {
	for _, item := range items {
		c.items = append(c.items, item.Clone())
	}
}

// AddMessage appends a new message and returns it.
func (c *Context) AddMessage(role Role, content string) Item {
	item := NewMessage(role, content)
	c.items = append(c.items, item)
	return item
}

// Copy returns an independent copy of the context.
func (c *Context) Copy() *Context {
	if c == nil {
		return NewContext()
	}
	return NewContext(c.items...)
}

// IDs returns the set of item ids present in the context.
func (c *Context) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, c.Len())
	if c == nil {
		return ids
	}
	for _, item := range c.items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

// Contains reports whether an item with the id is present.
func (c *Context) Contains(id string) bool {
	if c == nil {
		return false
	}
	for _, item := range c.items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// Last returns the most recent item, if any.
func (c *Context) Last() (Item, bool) {
	if c.Len() == 0 {
		return Item{}, false
	}
	return c.items[len(c.items)-1].Clone(), true
}
