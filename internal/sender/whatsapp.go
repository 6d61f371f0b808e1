package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/compose"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

const waHome = "https://web.whatsapp.com/"

// Selectors on the WhatsApp Web UI. The composer box moved between
// data-tab values across releases, so Send races several.
var (
	composerSelectors = []string{
		`div[contenteditable='true'][data-tab='10']`,
		`div[contenteditable='true'][data-tab='9']`,
		`div[contenteditable='true'][data-tab='6']`,
		`footer div[contenteditable='true']`,
	}
	qrSelector        = `canvas[aria-label*='Scan']`
	chatListSelector  = `div[aria-label='Chat list'], #pane-side`
	sentTickSelector  = `span[data-icon='msg-check'], span[data-icon='msg-dblcheck'], span[data-icon='msg-time']`
	invalidPhoneMarks = []string{"invalid", "url is invalid"}
)

// WhatsAppConfig controls the browser-backed sender.
type WhatsAppConfig struct {
	Headless    bool
	ProfileDir  string
	LoginWait   time.Duration
	SendTimeout time.Duration
}

// WhatsApp drives WhatsApp Web through a Chromium instance. The
// profile directory keeps the login session across runs, so the QR
// scan is only needed once.
type WhatsApp struct {
	cfg     WhatsAppConfig
	log     logx.Logger
	browser *rod.Browser
	page    *rod.Page
}

// NewWhatsApp builds the sender without touching the browser yet.
func NewWhatsApp(cfg WhatsAppConfig, log logx.Logger) *WhatsApp {
	if cfg.LoginWait <= 0 {
		cfg.LoginWait = 3 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 45 * time.Second
	}
	return &WhatsApp{cfg: cfg, log: log.With(logx.String("component", "sender"))}
}

// Start launches the browser, opens WhatsApp Web and waits for the
// session to be ready. With no stored session it waits up to LoginWait
// for the operator to scan the QR code.
func (w *WhatsApp) Start(ctx context.Context) error {
	l := launcher.New().Headless(w.cfg.Headless)
	if w.cfg.ProfileDir != "" {
		l = l.UserDataDir(w.cfg.ProfileDir)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	w.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: waHome})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	w.page = page

	if _, err := page.Timeout(30 * time.Second).Element(chatListSelector); err == nil {
		w.log.Info("session restored from profile")
		return nil
	}

	if _, err := page.Timeout(15 * time.Second).Element(qrSelector); err != nil {
		return fmt.Errorf("whatsapp web did not load: %w", err)
	}
	w.log.Info("waiting for QR scan", logx.Duration("timeout", w.cfg.LoginWait))
	if _, err := page.Timeout(w.cfg.LoginWait).Element(chatListSelector); err != nil {
		return fmt.Errorf("login not completed: %w", ErrSessionInvalid)
	}
	w.log.Info("logged in")
	return nil
}

// Send opens the prefilled composer for msg's recipient, submits the
// text and waits for a delivery tick. Once the enter key is pressed
// the delivery is never abandoned, even on cancellation.
func (w *WhatsApp) Send(ctx context.Context, msg Message) (time.Duration, error) {
	if w.page == nil {
		return 0, errors.New("sender not started")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()

	page := w.page.Context(ctx)
	if err := page.Timeout(w.cfg.SendTimeout).Navigate(compose.SendURL(msg.Phone, msg.Text)); err != nil {
		return 0, Transient("navigate", err)
	}

	box, err := w.waitComposer(page)
	if err != nil {
		return 0, err
	}

	// From submission on, run cancellation no longer applies; only
	// SendTimeout bounds the remaining steps.
	dctx := deliveryContext(ctx)
	if err := box.Context(dctx).Type(input.Enter); err != nil {
		return 0, Transient("submit", err)
	}
	if _, err := w.page.Context(dctx).Timeout(w.cfg.SendTimeout).Element(sentTickSelector); err != nil {
		return time.Since(start), Transient("confirm delivery", err)
	}
	return time.Since(start), nil
}

// deliveryContext keeps a started delivery alive across run
// cancellation. Values survive, cancellation does not.
func deliveryContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// waitComposer waits for the message box, classifying the page states
// that mean the box will never appear.
func (w *WhatsApp) waitComposer(page *rod.Page) (*rod.Element, error) {
	deadline := time.Now().Add(w.cfg.SendTimeout)
	for {
		for _, sel := range composerSelectors {
			if el, err := page.Timeout(2 * time.Second).Element(sel); err == nil {
				return el, nil
			}
		}
		if has, _, _ := page.Has(qrSelector); has {
			return nil, fmt.Errorf("login screen shown mid-run: %w", ErrSessionInvalid)
		}
		if w.invalidRecipientShown(page) {
			return nil, Permanent("recipient rejected by channel", nil)
		}
		if time.Now().After(deadline) {
			return nil, Transientf("open composer", "message box not found within %s", w.cfg.SendTimeout)
		}
	}
}

func (w *WhatsApp) invalidRecipientShown(page *rod.Page) bool {
	el, err := page.Timeout(time.Second).Element(`div[role='dialog']`)
	if err != nil {
		return false
	}
	text, err := el.Text()
	if err != nil {
		return false
	}
	for _, mark := range invalidPhoneMarks {
		if containsFold(text, mark) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (w *WhatsApp) Close() error {
	if w.browser == nil {
		return nil
	}
	err := w.browser.Close()
	w.browser = nil
	w.page = nil
	return err
}
