// Package destination drives the browser-only admin interface products are
// synced into.
package destination

import (
	"context"
	"fmt"
	"regexp"
)

// StepError reports a UI-automation step that did not reach its expected
// state within the settle timeout. Recoverable: the sync engine fails the
// affected product and moves on.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("destination step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Session is an authenticated handle to the destination admin interface.
// Implementations are driven through one interactive browser session whose
// UI state is mutated by each step; a Session must never be shared between
// goroutines.
type Session interface {
	Login(ctx context.Context, adminURL, username, password string) error

	// CreateEntry opens the new-entry form, submits name and price and
	// returns the entry-specific address the UI navigates to.
	CreateEntry(ctx context.Context, name, price string) (entryURL string, err error)

	EditInlineField(ctx context.Context, fieldKey, value string) error
	SelectFromDropdown(ctx context.Context, fieldKey, optionLabel string) error
	SetRichText(ctx context.Context, fieldKey, text string) error
	UploadImages(ctx context.Context, paths []string) error
	AddVariant(ctx context.Context, name string) error
	// SetPriceSource selects how the shop derives the displayed price,
	// e.g. "manual" or "supplier".
	SetPriceSource(ctx context.Context, mode string) error
	SetAvailability(ctx context.Context, available bool) error

	OpenRelationEditor(ctx context.Context, internalID string) error
	FilterAndSelectRelation(ctx context.Context, targetExternalID string) error

	Close() error
}

var entryURLPattern = regexp.MustCompile(`/zbozi-(\d+)$`)

// IdentifiersFromEntryURL reads both identifiers out of an entry address.
// The internal identifier is assigned by the destination and embedded in the
// address; the external identifier is derived deterministically from it and
// is what the relation filter searches by.
func IdentifiersFromEntryURL(entryURL string) (internalID, externalID string, err error) {
	m := entryURLPattern.FindStringSubmatch(entryURL)
	if m == nil {
		return "", "", fmt.Errorf("no entry id in address %q", entryURL)
	}
	internalID = m[1]
	externalID = "Z" + internalID
	return internalID, externalID, nil
}
