package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fert-price-monitor/internal/alert"
)

const (
	defaultNotifyTimeout = 10 * time.Second
	defaultResultQueue   = 64
)

// aliasChannels are channel ids we accept in configuration but deliver via
// the log fallback. 邮件/短信/推送网关不在本服务内实现。
var aliasChannels = map[string]struct{}{
	"email":  {},
	"sms":    {},
	"push":   {},
	"in_app": {},
}

type result struct {
	channel string
	alertID string
	err     error
}

// Dispatcher fans one alert out to its channels. Every delivery runs in its
// own goroutine with a bounded timeout, so a slow channel never holds up the
// monitoring tick that produced the alert.
type Dispatcher struct {
	notifiers map[string]Notifier
	fallback  Notifier
	timeout   time.Duration

	wg        sync.WaitGroup
	results   chan result
	closeOnce sync.Once
	logger    zerolog.Logger
}

// DispatcherOptions configures channel fan-out.
type DispatcherOptions struct {
	// Notifiers are registered under their Name().
	Notifiers []Notifier
	// Fallback serves unknown and alias channel ids. Defaults to the log
	// notifier.
	Fallback Notifier
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// QueueSize bounds the result drain backlog.
	QueueSize int

	Logger zerolog.Logger
}

// NewDispatcher 构造告警分发器并启动结果回收循环。
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultNotifyTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultResultQueue
	}
	logger := opts.Logger.With().Str("component", "alert_dispatcher").Logger()
	if opts.Fallback == nil {
		opts.Fallback = NewLogNotifier(opts.Logger)
	}

	d := &Dispatcher{
		notifiers: make(map[string]Notifier, len(opts.Notifiers)),
		fallback:  opts.Fallback,
		timeout:   opts.Timeout,
		results:   make(chan result, opts.QueueSize),
		logger:    logger,
	}
	for _, n := range opts.Notifiers {
		d.notifiers[n.Name()] = n
	}

	go d.drain()
	return d
}

// Dispatch sends the alert to every requested channel and returns without
// waiting for the deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, a alert.Alert, channels []string) {
	for _, channel := range channels {
		notifier := d.resolve(channel)
		d.wg.Add(1)
		go func(channel string, notifier Notifier) {
			defer d.wg.Done()

			// Deliveries outlive the tick that requested them; only the
			// per-attempt timeout bounds them.
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
			defer cancel()

			err := notifier.Notify(nctx, a)
			select {
			case d.results <- result{channel: channel, alertID: a.ID, err: err}:
			default:
				d.logResult(result{channel: channel, alertID: a.ID, err: err})
			}
		}(channel, notifier)
	}
}

func (d *Dispatcher) resolve(channel string) Notifier {
	if n, ok := d.notifiers[channel]; ok {
		return n
	}
	if _, ok := aliasChannels[channel]; ok {
		d.logger.Debug().Str("channel", channel).Msg("渠道未内建, 由 log 兜底")
		return d.fallback
	}
	d.logger.Debug().Str("channel", channel).Msg("未知渠道, 由 log 兜底")
	return d.fallback
}

func (d *Dispatcher) drain() {
	for r := range d.results {
		d.logResult(r)
	}
}

func (d *Dispatcher) logResult(r result) {
	if r.err != nil {
		d.logger.Warn().Err(r.err).
			Str("channel", r.channel).
			Str("alert_id", r.alertID).
			Msg("告警投递失败")
		return
	}
	d.logger.Debug().
		Str("channel", r.channel).
		Str("alert_id", r.alertID).
		Msg("告警投递完成")
}

// Close waits for in-flight deliveries and stops the result loop.
func (d *Dispatcher) Close() {
	d.wg.Wait()
	d.closeOnce.Do(func() { close(d.results) })
}
