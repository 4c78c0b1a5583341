// Package quote keeps one venue quote fresh for an interactive caller.
// Parameter changes are debounced, the active quote is refreshed shortly
// before it expires, and a generation counter makes sure a stale fetch can
// never overwrite a newer one. Fetch failures are reported once and not
// retried; the next parameter change, Refresh or the expiry refresh decides
// what happens.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/venue"
)

const (
	defaultDebounce      = 500 * time.Millisecond
	defaultRefreshMargin = 5 * time.Second
	defaultCountdownTick = 1 * time.Second
	fetchTimeout         = 30 * time.Second
)

// Controller state errors.
var (
	ErrClosed   = errors.New("quote controller is closed")
	ErrPaused   = errors.New("quote controller is paused")
	ErrNoParams = errors.New("no swap parameters have been set")
)

// State is where the controller is in its quote lifecycle.
type State string

const (
	// StateIdle means no fetch is pending or live.
	StateIdle State = "idle"
	// StateDebouncing means a parameter change is waiting out the debounce
	// window before fetching.
	StateDebouncing State = "debouncing"
	// StateLoading means a fetch is in flight.
	StateLoading State = "loading"
	// StateQuoted means a live quote is installed.
	StateQuoted State = "quoted"
	// StateError means the last fetch failed and nothing has replaced it.
	StateError State = "error"
)

// EventKind tags controller events.
type EventKind string

const (
	// EventState reports a transition into debouncing or loading.
	EventState EventKind = "state"
	// EventQuote carries a freshly fetched quote.
	EventQuote EventKind = "quote"
	// EventCountdown ticks once per second while a quote is live.
	EventCountdown EventKind = "countdown"
	// EventExpired fires once when the active quote dies unrefreshed.
	EventExpired EventKind = "expired"
	// EventError carries a fetch failure.
	EventError EventKind = "error"
)

// Event is what the listener receives.
type Event struct {
	Kind      EventKind
	State     State
	Quote     *types.Quote
	Remaining time.Duration
	Err       error
	// Retryable is set on EventError when the failure was transport-level
	// rather than a venue rejection or bad input.
	Retryable bool
}

// Listener receives controller events. Called outside the controller lock,
// so it may call back into the controller.
type Listener func(Event)

// SwapParams is the user's side of a quote request: what to swap, how much
// in human decimal notation, and where the proceeds go. The amount is
// converted to smallest units at fetch time against the source token's
// decimals.
type SwapParams struct {
	SourceToken    types.Token
	DestToken      types.Token
	Amount         string
	Recipient      string
	RefundTo       string
	SlippageBps    uint16
	SponsorAddress string
}

// request validates the parameters and converts them into a venue order
// request with a fresh client reference.
func (p SwapParams) request() (*types.OrderRequest, error) {
	const op = "quote.fetch"
	if p.SourceToken.AssetID == "" || p.DestToken.AssetID == "" {
		return nil, types.E(types.CodeInvalidInput, op, errors.New("source and destination tokens are required"))
	}
	if p.Recipient == "" {
		return nil, types.E(types.CodeInvalidInput, op, errors.New("recipient is required"))
	}
	if err := validateRecipient(p.DestToken.ChainID, p.Recipient); err != nil {
		return nil, types.E(types.CodeInvalidInput, op, err)
	}
	amountIn, err := feecalc.SmallestUnits(p.Amount, p.SourceToken.Decimals)
	if err != nil {
		return nil, types.E(types.CodeInvalidInput, op, err)
	}
	req := &types.OrderRequest{
		SourceToken:    p.SourceToken,
		DestToken:      p.DestToken,
		AmountIn:       amountIn,
		Recipient:      p.Recipient,
		RefundTo:       p.RefundTo,
		SlippageBps:    p.SlippageBps,
		SponsorAddress: p.SponsorAddress,
		ClientRef:      uuid.New().String(),
	}
	if err := req.Validate(); err != nil {
		return nil, types.E(types.CodeInvalidInput, op, err)
	}
	return req, nil
}

// validateRecipient checks that the recipient parses as an address on the
// destination chain. Chains outside the solana/EVM model are left to the
// venue to validate.
func validateRecipient(chainID, addr string) error {
	chainType, err := types.ChainTypeOf(chainID)
	if err != nil {
		return nil
	}
	switch chainType {
	case types.ChainEVM:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("recipient %q is not a valid EVM address", addr)
		}
	case types.ChainSolana:
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return fmt.Errorf("recipient %q is not a valid solana address", addr)
		}
	}
	return nil
}

// Config sizes the controller's timers.
type Config struct {
	Debounce      time.Duration
	RefreshMargin time.Duration
	CountdownTick time.Duration
}

func (c *Config) fill() {
	if c.Debounce <= 0 {
		c.Debounce = defaultDebounce
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = defaultRefreshMargin
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = defaultCountdownTick
	}
}

// Snapshot is a point-in-time copy of the controller for display.
type Snapshot struct {
	State     State
	Paused    bool
	Quote     *types.Quote
	Err       error
	Remaining time.Duration
	Expired   bool
}

// Controller owns the quote lifecycle for a single swap form.
type Controller struct {
	provider venue.Provider
	cfg      Config
	listener Listener
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	state         State
	generation    uint64
	params        *SwapParams
	current       *types.Quote
	lastErr       error
	expired       bool
	paused        bool
	closed        bool
	debounceTimer *time.Timer
	refreshTimer  *time.Timer
	countdownStop chan struct{}
	fetchCancel   context.CancelFunc
}

// New returns a controller delivering events to listener.
func New(provider venue.Provider, cfg Config, listener Listener, logger *zap.Logger) *Controller {
	cfg.fill()
	if logger == nil {
		logger = zap.NewNop()
	}
	if listener == nil {
		listener = func(Event) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		provider: provider,
		cfg:      cfg,
		listener: listener,
		logger:   logger.With(zap.String("module", "quote")),
		state:    StateIdle,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetParams registers new swap parameters. Any pending timers and in-flight
// fetch are cancelled, the current quote and error are cleared, and the
// fetch fires after the debounce window; rapid successive calls collapse
// into one fetch for the last parameters. While paused the parameters are
// stored and fetched on Resume.
func (c *Controller) SetParams(p SwapParams) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.params = &p
	c.generation++
	c.stopTimersLocked()
	c.clearResultLocked()
	if c.paused {
		c.state = StateIdle
		c.mu.Unlock()
		return nil
	}
	c.state = StateDebouncing
	c.debounceTimer = time.AfterFunc(c.cfg.Debounce, c.startFetch)
	c.mu.Unlock()
	c.listener(Event{Kind: EventState, State: StateDebouncing})
	return nil
}

// Refresh refetches the current parameters immediately, skipping the
// debounce.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	var err error
	switch {
	case c.closed:
		err = ErrClosed
	case c.paused:
		err = ErrPaused
	case c.params == nil:
		err = ErrNoParams
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.startFetch()
	return nil
}

// Pause stops the debounce and auto-refresh timers and aborts any in-flight
// fetch. The countdown of a live quote keeps ticking so expiry is still
// reported; parameters and quote are kept.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.paused || c.closed {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.stopTimersLocked()
	if c.state == StateDebouncing || c.state == StateLoading {
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.logger.Debug("paused")
}

// Resume re-enables the controller and refetches, since whatever quote was
// live has likely gone stale while paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.paused || c.closed {
		c.mu.Unlock()
		return
	}
	c.paused = false
	hasParams := c.params != nil
	c.mu.Unlock()
	c.logger.Debug("resumed")
	if hasParams {
		c.startFetch()
	}
}

// Current returns the latest installed quote, which may already be
// expired.
func (c *Controller) Current() *types.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Paused reports the pause state.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Snapshot returns a copy of the controller state for display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:   c.state,
		Paused:  c.paused,
		Quote:   c.current,
		Err:     c.lastErr,
		Expired: c.expired,
	}
	if c.current != nil {
		if rem := time.Until(c.current.ExpiresAt); rem > 0 {
			s.Remaining = rem
		} else {
			s.Expired = true
		}
	}
	return s
}

// Close stops the controller permanently and waits for its goroutines.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimersLocked()
	c.stopCountdownLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// stopTimersLocked halts the debounce and refresh timers and cancels any
// in-flight fetch. The countdown is left alone: it belongs to the installed
// quote, not to pending work.
func (c *Controller) stopTimersLocked() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
}

// clearResultLocked drops the installed quote, its countdown and the last
// error.
func (c *Controller) clearResultLocked() {
	c.current = nil
	c.lastErr = nil
	c.expired = false
	c.stopCountdownLocked()
}

func (c *Controller) stopCountdownLocked() {
	if c.countdownStop != nil {
		close(c.countdownStop)
		c.countdownStop = nil
	}
}

// startFetch begins a new fetch generation. Any older fetch is cancelled
// and its late result dropped.
func (c *Controller) startFetch() {
	c.mu.Lock()
	if c.closed || c.paused || c.params == nil {
		c.mu.Unlock()
		return
	}
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.generation++
	gen := c.generation
	if c.fetchCancel != nil {
		c.fetchCancel()
	}

	req, err := c.params.request()
	if err != nil {
		c.state = StateError
		c.lastErr = err
		c.fetchCancel = nil
		c.mu.Unlock()
		c.listener(Event{Kind: EventError, State: StateError, Err: err})
		return
	}

	c.state = StateLoading
	fetchCtx, cancel := context.WithTimeout(c.ctx, fetchTimeout)
	c.fetchCancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()
	c.listener(Event{Kind: EventState, State: StateLoading})

	go func() {
		defer c.wg.Done()
		defer cancel()

		q, err := c.provider.CreateOrder(fetchCtx, req)

		c.mu.Lock()
		if c.closed || gen != c.generation {
			c.mu.Unlock()
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.mu.Unlock()
				return
			}
			c.state = StateError
			c.lastErr = err
			c.mu.Unlock()
			c.logger.Warn("quote fetch failed", zap.Error(err))
			c.listener(Event{Kind: EventError, State: StateError, Err: err, Retryable: Retryable(err)})
			return
		}
		c.installQuoteLocked(q, gen)
		c.mu.Unlock()

		c.logger.Debug("quote installed",
			zap.String("quote_id", q.ID), zap.Time("expires_at", q.ExpiresAt))
		c.listener(Event{Kind: EventQuote, State: StateQuoted, Quote: q, Remaining: time.Until(q.ExpiresAt)})
	}()
}

// installQuoteLocked replaces the active quote and arms its refresh timer
// and countdown. No refresh is scheduled while paused; Resume refetches
// anyway.
func (c *Controller) installQuoteLocked(q *types.Quote, gen uint64) {
	c.current = q
	c.lastErr = nil
	c.expired = false
	c.state = StateQuoted
	c.stopCountdownLocked()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}

	if !c.paused {
		refreshIn := time.Until(q.ExpiresAt) - c.cfg.RefreshMargin
		if refreshIn < 0 {
			refreshIn = 0
		}
		c.refreshTimer = time.AfterFunc(refreshIn, func() { c.refreshDue(gen) })
	}

	stop := make(chan struct{})
	c.countdownStop = stop
	c.wg.Add(1)
	go c.countdown(q, stop)
}

// refreshDue fires when the active quote is about to expire. A generation
// check drops firings that raced a Stop.
func (c *Controller) refreshDue(gen uint64) {
	c.mu.Lock()
	stale := c.paused || c.closed || gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Debug("refreshing quote before expiry")
	c.startFetch()
}

// countdown ticks remaining time for one quote until it is replaced,
// stopped, or expires.
func (c *Controller) countdown(q *types.Quote, stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			remaining := time.Until(q.ExpiresAt)
			if remaining <= 0 {
				c.mu.Lock()
				if c.current == q {
					c.expired = true
				}
				c.mu.Unlock()
				c.listener(Event{Kind: EventExpired, Quote: q})
				return
			}
			c.listener(Event{Kind: EventCountdown, State: StateQuoted, Quote: q, Remaining: remaining})
		}
	}
}

// Retryable reports whether a fetch failure was transport-level. Venue
// rejections and invalid input are final until the parameters change.
func Retryable(err error) bool {
	return types.CodeOf(err) == types.CodeNetwork
}
