package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// playwrightPage adapts a Playwright page to the driver contract.
type playwrightPage struct {
	page playwright.Page
}

func newPlaywrightPage(page playwright.Page) *playwrightPage {
	return &playwrightPage{page: page}
}

func (p *playwrightPage) Navigate(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Elements(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query %q failed: %w", selector, err)
	}
	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{handle: h})
	}
	return elements, nil
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	err := p.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) WaitVisible(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// WaitFor polls the predicate every pollInterval. This keeps bounded
// condition waits driver-agnostic instead of leaning on driver-specific
// wait-for-function plumbing.
func (p *playwrightPage) WaitFor(predicate func() (bool, error), timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := predicate()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition wait timeout after %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

// playwrightElement adapts a Playwright element handle.
type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Text() (string, error) {
	text, err := e.handle.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *playwrightElement) Attribute(name string) (string, error) {
	value, err := e.handle.GetAttribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute %q read failed: %w", name, err)
	}
	return value, nil
}

func (e *playwrightElement) Click() error {
	if err := e.handle.Click(); err != nil {
		return fmt.Errorf("element click failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Disabled() bool {
	disabled, err := e.handle.IsDisabled()
	if err != nil {
		return true
	}
	return disabled
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

const pollInterval = 250 * time.Millisecond
