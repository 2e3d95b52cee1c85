// Package controller implements the list state controller: a single-goroutine
// actor that owns the fetched characters, the pagination cursor and the filter
// selection for one screen, and publishes immutable model.State snapshots.
package controller

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/filter"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/model"
)

const defaultQueueSize = 32

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for event and fetch logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records controller metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFetchTimeout bounds every page fetch. Zero means no bound beyond the
// controller's lifetime.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) { c.fetchTimeout = d }
}

// WithQueueSize sets the capacity of the pending event queue.
func WithQueueSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithSessionID tags the controller's logs and spans with the owning session.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// Controller serializes events for one list screen. All mutable state below
// the mutex is owned by the event loop goroutine.
type Controller struct {
	fetcher      model.PageFetcher
	logger       *zap.Logger
	metrics      *observability.Metrics
	fetchTimeout time.Duration
	queueSize    int
	sessionID    string

	events   chan model.Event
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	closeOne sync.Once
	inFlight atomic.Bool

	mu      sync.Mutex
	current model.State
	subs    map[chan model.State]struct{}
	closed  bool

	// Loop-owned.
	page           int
	cache          []model.Character
	chips          []model.FilterOption
	activeCategory *model.FilterCategory
	activeSub      *model.FilterOption
	hasMore        bool
}

// New returns a running controller in the Loading state. Call Close to stop it.
func New(fetcher model.PageFetcher, opts ...Option) *Controller {
	c := newController(fetcher, opts...)
	go c.run()
	return c
}

func newController(fetcher model.PageFetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher:   fetcher,
		logger:    zap.NewNop(),
		queueSize: defaultQueueSize,
		stopped:   make(chan struct{}),
		subs:      make(map[chan model.State]struct{}),
		page:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID != "" {
		c.logger = c.logger.With(zap.String("session_id", c.sessionID))
	}
	c.events = make(chan model.Event, c.queueSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.current = model.State{Kind: model.StateLoading, Page: 1}
	return c
}

// Submit enqueues an event for processing. A LoadMore received while a fetch
// is running is dropped. Submit blocks only while the queue is full and
// returns immediately once the controller is closed.
func (c *Controller) Submit(ev model.Event) {
	if ev == nil {
		return
	}
	if _, ok := ev.(model.LoadMore); ok && c.inFlight.Load() {
		c.metrics.RecordTriggerDropped(ev.EventName())
		c.logger.Debug("controller: load more dropped, fetch in flight")
		return
	}
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Subscribe returns a channel that first receives the current snapshot and
// then every published snapshot. A slow subscriber loses its oldest pending
// snapshots, never the latest. The returned func unsubscribes and closes the
// channel.
func (c *Controller) Subscribe(buffer int) (<-chan model.State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan model.State, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	ch <- c.current
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

// State returns the latest published snapshot.
func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close stops the event loop, cancelling any fetch in progress. Pending events
// are dropped and every subscriber channel is closed. Close is idempotent.
func (c *Controller) Close() {
	c.closeOne.Do(func() {
		c.cancel()
		<-c.stopped

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true
		for ch := range c.subs {
			close(ch)
		}
		clear(c.subs)
	})
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.process(c.ctx, ev)
		}
	}
}

// process applies one event. It must only be called from the event loop.
func (c *Controller) process(ctx context.Context, ev model.Event) {
	name := ev.EventName()
	ctx, span := observability.StartEventSpan(ctx, c.sessionID, name)
	defer span.End()

	c.metrics.RecordControllerEvent(name)
	c.logger.Debug("controller: processing event", zap.String("event", name))

	switch e := ev.(type) {
	case model.ViewAppeared, model.Refresh:
		c.refresh(ctx)
	case model.LoadMore:
		c.fetchCycle(ctx, false, false)
	case model.Search:
		c.search(e.Text)
	case model.CategoryTapped:
		c.categoryTapped(e.Name)
	case model.SubcategoryTapped:
		c.subcategoryTapped(ctx, e.Option)
	case model.ToggleCategoryChip:
		c.toggleChip(e.Name)
	}
}

func (c *Controller) refresh(ctx context.Context) {
	c.activeCategory = nil
	if c.chips != nil {
		c.chips = filter.DeselectAll(c.chips)
	}
	c.publish(model.State{Kind: model.StateLoading, Page: 1})
	c.fetchCycle(ctx, true, true)
}

// fetchCycle fetches the current page and publishes the resulting snapshot.
func (c *Controller) fetchCycle(ctx context.Context, resetPagination, resetData bool) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.RecordTriggerDropped("fetch_cycle")
		return
	}

	if resetPagination {
		c.page = 1
		// Page 1 after a reset reflects the API now, never a cached copy.
		ctx = model.WithFresh(ctx)
	}
	if resetData {
		c.cache = nil
		c.activeSub = nil
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	page, err := c.fetcher.FetchPage(fetchCtx, c.page)
	// Released before publishing so a subscriber reacting to this snapshot can
	// trigger the next page.
	c.inFlight.Store(false)
	if err != nil {
		c.metrics.RecordFetchCycle(observability.OutcomeFailure, time.Since(start))
		c.logger.Warn("controller: page fetch failed", zap.Int("page", c.page), zap.Error(err))
		c.publish(model.State{
			Kind:    model.StateError,
			Message: errorMessage(err),
			Page:    c.page,
			HasMore: c.hasMore,
		})
		return
	}
	c.metrics.RecordFetchCycle(observability.OutcomeSuccess, time.Since(start))

	if resetPagination {
		c.cache = slices.Clone(page.Items)
	} else {
		c.cache = append(c.cache, page.Items...)
	}
	c.hasMore = page.HasMore
	c.page++

	c.publishLoaded(c.visible(), nil)
}

func (c *Controller) search(text string) {
	c.publish(model.State{Kind: model.StateLoading, Page: c.page, HasMore: c.hasMore})
	c.publishLoaded(filter.ByName(c.cache, text), nil)
}

func (c *Controller) categoryTapped(name string) {
	cat, ok := model.ParseFilterCategory(name)
	if !ok {
		return
	}
	next := c.State()
	if !next.IsLoaded() {
		return
	}
	next.Subcategories = filter.OptionsFor(cat)
	c.publish(next)
}

func (c *Controller) subcategoryTapped(ctx context.Context, option model.FilterOption) {
	if option.Category == nil {
		return
	}
	cat, ok := model.ParseFilterCategory(string(*option.Category))
	if !ok {
		return
	}
	next := c.State()
	if !next.IsLoaded() {
		return
	}

	option.Category = model.CategoryPtr(cat)
	c.activeSub = &option
	c.activeCategory = model.CategoryPtr(cat)
	c.chips = filter.SelectOnly(c.ensureChips(), cat)

	next.Chips = slices.Clone(c.chips)
	next.ActiveCategory = model.CategoryPtr(cat)
	next.ActiveSubcategory = cloneOption(c.activeSub)
	c.publish(next)

	c.fetchCycle(ctx, false, false)
}

func (c *Controller) toggleChip(name string) {
	next := c.State()
	if !next.IsLoaded() {
		return
	}
	idx := slices.IndexFunc(c.chips, func(o model.FilterOption) bool { return o.Text == name })
	if idx < 0 {
		return
	}

	chips := slices.Clone(c.chips)
	chips[idx].Selected = !chips[idx].Selected
	c.chips = chips
	if chips[idx].Selected {
		cat, _ := model.ParseFilterCategory(name)
		c.activeCategory = model.CategoryPtr(cat)
	} else {
		c.activeCategory = nil
	}

	next.Chips = slices.Clone(chips)
	next.ActiveCategory = clonePtr(c.activeCategory)
	next.Subcategories = nil
	c.publish(next)
}

// visible projects the cache through the active subcategory.
func (c *Controller) visible() []model.Character {
	if c.activeSub == nil {
		return c.cache
	}
	return filter.BySubcategory(c.cache, *c.activeSub)
}

func (c *Controller) ensureChips() []model.FilterOption {
	if c.chips == nil {
		c.chips = filter.Chips()
	}
	return c.chips
}

func (c *Controller) publishLoaded(items []model.Character, subcategories []model.FilterOption) {
	c.publish(model.State{
		Kind:              model.StateLoaded,
		Items:             slices.Clone(items),
		Chips:             slices.Clone(c.ensureChips()),
		ActiveCategory:    clonePtr(c.activeCategory),
		ActiveSubcategory: cloneOption(c.activeSub),
		Subcategories:     subcategories,
		Page:              c.page,
		HasMore:           c.hasMore,
	})
}

// publish stamps the next version on s, stores it and fans it out.
func (c *Controller) publish(s model.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.Version = c.current.Version + 1
	c.current = s
	for ch := range c.subs {
		deliver(ch, s)
	}
}

// deliver sends s without blocking, discarding the oldest queued snapshot
// when ch is full.
func deliver(ch chan model.State, s model.State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func errorMessage(err error) string {
	if fe, ok := model.AsFetchError(err); ok && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}

func clonePtr(c *model.FilterCategory) *model.FilterCategory {
	if c == nil {
		return nil
	}
	return model.CategoryPtr(*c)
}

func cloneOption(o *model.FilterOption) *model.FilterOption {
	if o == nil {
		return nil
	}
	out := *o
	out.Category = clonePtr(o.Category)
	return &out
}
