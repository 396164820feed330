package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeLauncher returns a Launcher backed by chromedp. With a websocket
// endpoint it attaches to a remote browser (browserless and similar);
// otherwise it starts a local headless Chrome.
func ChromeLauncher(wsEndpoint, userAgent string) Launcher {
	return func(ctx context.Context) (Browser, error) {
		var (
			allocCtx    context.Context
			allocCancel context.CancelFunc
		)
		// The browser outlives the Open call; it is released by Close.
		parent := context.WithoutCancel(ctx)
		if wsEndpoint != "" {
			allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, wsEndpoint)
		} else {
			opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(userAgent))
			allocCtx, allocCancel = chromedp.NewExecAllocator(parent, opts...)
		}

		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}
		return &chromeBrowser{
			ctx:         browserCtx,
			cancel:      browserCancel,
			allocCancel: allocCancel,
		}, nil
	}
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func (b *chromeBrowser) NewTab(ctx context.Context) (Tab, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		cancel()
		return nil, err
	}
	return &chromeTab{ctx: tabCtx, cancel: cancel, stop: stop}, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	return err
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func (t *chromeTab) Load(ctx context.Context, url string, headers http.Header, ready Ready) error {
	var actions []chromedp.Action
	if len(headers) > 0 {
		extra := make(network.Headers, len(headers))
		for k, vs := range headers {
			extra[k] = strings.Join(vs, ", ")
		}
		actions = append(actions, network.Enable(), network.SetExtraHTTPHeaders(extra))
	}

	var idle chan struct{}
	if ready == ReadyNetworkIdle {
		idle = make(chan struct{})
		var (
			once    sync.Once
			mu      sync.Mutex
			started bool
		)
		chromedp.ListenTarget(t.ctx, func(ev any) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch e.Name {
			case "init":
				started = true
			case "networkIdle":
				if started {
					once.Do(func() { close(idle) })
				}
			}
		})
		actions = append(actions, page.SetLifecycleEventsEnabled(true))
	}

	actions = append(actions, chromedp.Navigate(url))
	if err := chromedp.Run(t.ctx, actions...); err != nil {
		return err
	}

	if idle == nil {
		return chromedp.Run(t.ctx, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *chromeTab) HTML(context.Context) (string, error) {
	var html string
	if err := chromedp.Run(t.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (t *chromeTab) Close() error {
	t.stop()
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
