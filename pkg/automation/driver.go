// Package automation provides the page-automation capability used by the
// monitoring engine.
//
// The package is split in two layers:
//
//  1. A small driver contract (Page, Element) covering exactly the
//     operations the engine needs: navigate, find elements, read
//     text/attributes, click, and bounded waits. Any controllable browser
//     driver can implement it; the rest of the codebase never imports the
//     driver library directly.
//  2. A Playwright-backed implementation plus the Controller that owns the
//     single long-lived browser process, leases isolated pages, and
//     health-checks/restarts itself.
package automation

import (
	"sync"
	"time"
)

// Page is one isolated browser page. Implementations are not safe for
// concurrent use; the engine drives a page from a single goroutine.
type Page interface {
	// Navigate loads the URL and waits for the DOM content to be ready,
	// bounded by timeout.
	Navigate(url string, timeout time.Duration) error

	// Elements returns all elements currently matching the selector.
	// A selector matching nothing returns an empty slice, not an error.
	Elements(selector string) ([]Element, error)

	// Click clicks the first element matching the selector, waiting up to
	// timeout for it to become actionable.
	Click(selector string, timeout time.Duration) error

	// WaitVisible blocks until an element matching the selector is visible,
	// or the timeout elapses.
	WaitVisible(selector string, timeout time.Duration) error

	// WaitFor polls the predicate until it reports true, returns an error,
	// or the timeout elapses. Predicate errors abort the wait.
	WaitFor(predicate func() (bool, error), timeout time.Duration) error

	// URL reports the page's current URL.
	URL() string

	// Close releases the page. Closing twice is harmless.
	Close() error
}

// Element is a handle to a single rendered element.
type Element interface {
	// Text returns the element's visible text content, trimmed.
	Text() (string, error)

	// Attribute returns the named attribute, or "" when absent.
	Attribute(name string) (string, error)

	// Click clicks the element.
	Click() error

	// Disabled reports whether the element is flagged disabled. Lookup
	// failures are reported as disabled so broken handles are skipped
	// rather than extracted.
	Disabled() bool
}

// PageLease is a scoped, single-use borrow of a Page. The holder must call
// Close on every exit path; Close is idempotent.
type PageLease struct {
	Page Page

	once    sync.Once
	release func()
}

// NewPageLease wraps a page and its release hook. The release hook may be
// nil when the page's own Close covers all cleanup.
func NewPageLease(page Page, release func()) *PageLease {
	return &PageLease{Page: page, release: release}
}

// Close returns the lease, closing the page and any backing resources.
func (l *PageLease) Close() {
	l.once.Do(func() {
		if l.Page != nil {
			_ = l.Page.Close()
		}
		if l.release != nil {
			l.release()
		}
	})
}

// Leaser hands out page leases. Implemented by Controller.
type Leaser interface {
	LeasePage() (*PageLease, error)
}
