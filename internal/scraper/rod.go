package scraper

import (
	"context"
	"fmt"
	"io"
	"time"

	"finlit-rag/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodPrinter prints pages with a single Chrome instance. It either connects
// to a running browser at ControlURL or launches its own.
type RodPrinter struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	wait      time.Duration
	timeout   time.Duration
	userAgent string
}

func NewRodPrinter(ctx context.Context, cfg config.ScraperConfig) (*RodPrinter, error) {
	p := &RodPrinter{wait: cfg.Wait, timeout: cfg.Timeout, userAgent: cfg.UserAgent}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		headless := cfg.Headless == nil || *cfg.Headless
		p.launcher = launcher.New().Headless(headless)
		u, err := p.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		p.cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	p.browser = browser
	return p, nil
}

// PrintPDF opens url in a new tab, waits for it to load and settle, then
// prints it with backgrounds at the page's CSS size.
func (p *RodPrinter) PrintPDF(ctx context.Context, url string) ([]byte, error) {
	page, err := p.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if p.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: p.userAgent}); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	loading := page.Timeout(p.timeout)
	if err := loading.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := loading.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	loading.CancelTimeout()

	// Anti-bot interstitials need time to clear after the load event.
	if err := sleep(ctx, p.wait); err != nil {
		return nil, err
	}

	r, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return io.ReadAll(r)
}

func (p *RodPrinter) Close() error {
	var err error
	if p.browser != nil {
		err = p.browser.Close()
	}
	p.cleanup()
	return err
}

func (p *RodPrinter) cleanup() {
	if p.launcher != nil {
		p.launcher.Cleanup()
	}
}
