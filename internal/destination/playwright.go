package destination

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Options controls the browser session.
type Options struct {
	Headless    bool
	StepTimeout time.Duration
	// CategoryURL is the admin category page new entries are created under,
	// e.g. "https://www.motobuzz.lv/admin/kategorie-1929".
	CategoryURL string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:    true,
		StepTimeout: 15 * time.Second,
	}
}

// PlaywrightSession implements Session against a Chromium instance.
type PlaywrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	opts    *Options
	logger  *slog.Logger
}

func NewPlaywrightSession(opts *Options) (*PlaywrightSession, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.StepTimeout == 0 {
		opts.StepTimeout = 15 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.StepTimeout.Milliseconds()))

	return &PlaywrightSession{
		pw:      pw,
		browser: browser,
		page:    page,
		opts:    opts,
		logger:  slog.Default().With("component", "destination"),
	}, nil
}

func (s *PlaywrightSession) Close() error {
	var errs []error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// step wraps one UI transition so that timeouts surface as recoverable
// StepErrors. Cancellation is honored between steps, not mid-step.
func (s *PlaywrightSession) step(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StepError{Step: name, Err: err}
	}
	if err := fn(); err != nil {
		return &StepError{Step: name, Err: err}
	}
	return nil
}

func (s *PlaywrightSession) Login(ctx context.Context, adminURL, username, password string) error {
	return s.step(ctx, "login", func() error {
		if _, err := s.page.Goto(adminURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return err
		}
		if err := s.page.Locator(`input[name="_username"]`).Fill(username); err != nil {
			return err
		}
		if err := s.page.Locator(`input[name="_password"]`).Fill(password); err != nil {
			return err
		}
		if err := s.page.Locator(`button[type="submit"]`).Click(); err != nil {
			return err
		}
		return s.waitVisible(".sidebar")
	})
}

func (s *PlaywrightSession) CreateEntry(ctx context.Context, name, price string) (string, error) {
	var entryURL string
	err := s.step(ctx, "create-entry", func() error {
		if _, err := s.page.Goto(s.opts.CategoryURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return err
		}
		if err := s.waitVisible(".sidebar"); err != nil {
			return err
		}
		if err := s.page.Locator("a.pridat.btn.btn-xs.btn-success").First().Click(); err != nil {
			return err
		}
		if err := s.page.Locator("#nazev").Fill(name); err != nil {
			return err
		}
		if err := s.page.Locator("#cena").Fill(strings.ReplaceAll(price, ",", ".")); err != nil {
			return err
		}
		if err := s.page.Locator(".modal-footer button[type=submit]").Click(); err != nil {
			return err
		}
		if err := s.page.WaitForURL("**/zbozi-*"); err != nil {
			return err
		}
		entryURL = s.page.URL()
		return nil
	})
	return entryURL, err
}

func (s *PlaywrightSession) EditInlineField(ctx context.Context, fieldKey, value string) error {
	return s.step(ctx, "edit-"+fieldKey, func() error {
		anchor := s.page.Locator(fmt.Sprintf("a.inlineedit[data-name='%s']", fieldKey)).First()
		if err := anchor.Click(); err != nil {
			return err
		}
		form := s.page.Locator("form.editableform").First()
		if err := form.WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateVisible,
		}); err != nil {
			return err
		}
		field := form.Locator("input:visible, textarea:visible").First()
		if err := field.Fill(value); err != nil {
			return err
		}
		if err := form.Locator("button.editable-submit").Click(); err != nil {
			return err
		}
		return form.WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateHidden,
		})
	})
}

func (s *PlaywrightSession) SelectFromDropdown(ctx context.Context, fieldKey, optionLabel string) error {
	return s.step(ctx, "select-"+fieldKey, func() error {
		anchor := s.page.Locator(fmt.Sprintf("a.inlineedit[data-name='%s']", fieldKey)).First()
		if err := anchor.Click(); err != nil {
			return err
		}
		form := s.page.Locator("form.editableform").First()
		if err := form.WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateVisible,
		}); err != nil {
			return err
		}
		if _, err := form.Locator("select").SelectOption(playwright.SelectOptionValues{
			Labels: &[]string{optionLabel},
		}); err != nil {
			return err
		}
		// x-editable selects submit on change; fall back to the submit
		// button when the form is still up.
		submit := form.Locator("button.editable-submit")
		if visible, _ := submit.IsVisible(); visible {
			if err := submit.Click(); err != nil {
				return err
			}
		}
		return form.WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateHidden,
		})
	})
}

func (s *PlaywrightSession) SetRichText(ctx context.Context, fieldKey, text string) error {
	return s.step(ctx, "richtext-"+fieldKey, func() error {
		header := s.page.Locator(fmt.Sprintf("h4[data-for^='%s']", fieldKey)).First()
		if err := header.Click(); err != nil {
			return err
		}
		body := s.page.FrameLocator("iframe[id^='mce_']").Locator("#tinymce")
		if err := body.Fill(text); err != nil {
			return err
		}
		if err := s.page.Locator("button[data-mce-name='save']").Click(); err != nil {
			return err
		}
		if err := s.waitVisible("button[data-mce-name='savedone']"); err != nil {
			return err
		}
		// The editor leaves the page in a modal state; reload to settle.
		if _, err := s.page.Reload(); err != nil {
			return err
		}
		return s.waitVisible(".sidebar")
	})
}

func (s *PlaywrightSession) UploadImages(ctx context.Context, paths []string) error {
	return s.step(ctx, "upload-images", func() error {
		if err := s.page.Locator("a[data-presenter='img_galerie']").Click(); err != nil {
			return err
		}
		if err := s.waitVisible("div.galerie_container"); err != nil {
			return err
		}
		input := s.page.Locator("div.galerie_container input[name='upload[]']")
		if _, err := input.Evaluate("el => el.classList.remove('hidden')", nil); err != nil {
			return err
		}
		if err := input.SetInputFiles(paths); err != nil {
			return err
		}
		return s.waitVisible("div.galerie_upload .galerie_telo")
	})
}

func (s *PlaywrightSession) AddVariant(ctx context.Context, name string) error {
	return s.step(ctx, "add-variant", func() error {
		if err := s.page.Locator("a[data-presenter='zbozi_varianty']").Click(); err != nil {
			return err
		}
		if err := s.waitVisible(".sidebar"); err != nil {
			return err
		}
		if err := s.page.Locator("a.pridat.btn.btn-xs.btn-success").First().Click(); err != nil {
			return err
		}
		form := s.page.Locator("form.modal").First()
		if err := form.WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateVisible,
		}); err != nil {
			return err
		}
		if err := form.Locator("#nazev").Fill(name); err != nil {
			return err
		}
		if err := form.Locator("div.modal-footer button[type=submit]").Click(); err != nil {
			return err
		}
		if err := form.WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateHidden,
		}); err != nil {
			return err
		}
		row := s.page.Locator(fmt.Sprintf("a.inlineedit.editable.editable-click:text-is('%s')", name))
		return row.First().WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateVisible,
		})
	})
}

func (s *PlaywrightSession) SetPriceSource(ctx context.Context, mode string) error {
	return s.step(ctx, "set-price-source", func() error {
		sel := s.page.Locator("select[data-name='CZbozi.cena_zdroj']").First()
		_, err := sel.SelectOption(playwright.SelectOptionValues{
			Values: &[]string{mode},
		})
		return err
	})
}

func (s *PlaywrightSession) SetAvailability(ctx context.Context, available bool) error {
	return s.step(ctx, "set-availability", func() error {
		box := s.page.Locator("input[data-name='CZbozi.aktivni']").First()
		return box.SetChecked(available)
	})
}

func (s *PlaywrightSession) OpenRelationEditor(ctx context.Context, internalID string) error {
	return s.step(ctx, "open-relations", func() error {
		entryURL := fmt.Sprintf("%s/zbozi-%s", s.opts.CategoryURL, internalID)
		if _, err := s.page.Goto(entryURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return err
		}
		if err := s.waitVisible(".sidebar"); err != nil {
			return err
		}
		if err := s.page.Locator("a[data-presenter='zbozi_souvisejici']").Click(); err != nil {
			return err
		}
		return s.waitVisible("div.souvisejici_container")
	})
}

func (s *PlaywrightSession) FilterAndSelectRelation(ctx context.Context, targetExternalID string) error {
	return s.step(ctx, "link-"+targetExternalID, func() error {
		if err := s.page.Locator("a[data-mode='vyber-filtr']").Click(); err != nil {
			return err
		}
		filter := s.page.Locator("input[name='filtr_kod']")
		if err := filter.Fill(targetExternalID); err != nil {
			return err
		}
		if err := filter.Press("Enter"); err != nil {
			return err
		}
		row := s.page.Locator(fmt.Sprintf("tr:has-text('%s') input[type=checkbox]", targetExternalID)).First()
		if err := row.Check(); err != nil {
			return err
		}
		if err := s.page.Locator("button.potvrdit").Click(); err != nil {
			return err
		}
		return s.waitVisible("div.souvisejici_container")
	})
}

func (s *PlaywrightSession) waitVisible(selector string) error {
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
}
