package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/apptwatch/apptwatch/pkg/automation"
)

// fakeElement implements automation.Element for tests.
type fakeElement struct {
	text     string
	attrs    map[string]string
	disabled bool
	clickErr error
	onClick  func()
	clicks   int
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(name string) (string, error) {
	return e.attrs[name], nil
}

func (e *fakeElement) Click() error {
	e.clicks++
	if e.clickErr != nil {
		return e.clickErr
	}
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Disabled() bool { return e.disabled }

// fakePage implements automation.Page over an in-memory selector map.
type fakePage struct {
	url      string
	elements map[string][]*fakeElement

	navErr     error
	onNavigate func(url string)

	navigations []string
	clicks      []string
	closed      int
}

func newFakePage() *fakePage {
	return &fakePage{elements: make(map[string][]*fakeElement)}
}

func (p *fakePage) Navigate(url string, _ time.Duration) error {
	p.navigations = append(p.navigations, url)
	if p.navErr != nil {
		return p.navErr
	}
	p.url = url
	if p.onNavigate != nil {
		p.onNavigate(url)
	}
	return nil
}

func (p *fakePage) Elements(selector string) ([]automation.Element, error) {
	elements := p.elements[selector]
	out := make([]automation.Element, 0, len(elements))
	for _, e := range elements {
		out = append(out, e)
	}
	return out, nil
}

func (p *fakePage) Click(selector string, _ time.Duration) error {
	p.clicks = append(p.clicks, selector)
	elements := p.elements[selector]
	if len(elements) == 0 {
		return errors.New("click target not found")
	}
	return elements[0].Click()
}

func (p *fakePage) WaitVisible(selector string, _ time.Duration) error {
	if len(p.elements[selector]) == 0 {
		return errors.New("wait timeout: " + selector)
	}
	return nil
}

func (p *fakePage) WaitFor(predicate func() (bool, error), _ time.Duration) error {
	for i := 0; i < 10; i++ {
		ok, err := predicate()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errors.New("condition wait timeout")
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

// fakeLeaser hands out leases over a fixed page.
type fakeLeaser struct {
	page   *fakePage
	err    error
	leases int
}

func (l *fakeLeaser) LeasePage() (*automation.PageLease, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.leases++
	return automation.NewPageLease(l.page, nil), nil
}

// fakeRestarter counts restarts.
type fakeRestarter struct {
	restarts int
	err      error
}

func (r *fakeRestarter) Restart(_ context.Context) error {
	r.restarts++
	return r.err
}
