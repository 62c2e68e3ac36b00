package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-sync/internal/models"
)

const testScope = "https://www.jopa.nl/jopa"

// fakeSession replays the destination admin without a browser. Entry ids are
// assigned sequentially; individual steps can be made to fail per product or
// per link target.
type fakeSession struct {
	nextID int

	loggedIn      bool
	failCreateFor map[string]bool
	failBrandFor  map[string]bool
	failLinkTo    map[string]bool

	createdIDs map[string]string
	fields     map[string][]string
	richText   map[string]string
	variants    []string
	uploaded    [][]string
	priceSource string
	available   bool
	opened     []string
	linked     []string

	onUpload func(paths []string) error
	afterN   int
	cancel   context.CancelFunc
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		failCreateFor: make(map[string]bool),
		failBrandFor:  make(map[string]bool),
		failLinkTo:    make(map[string]bool),
		createdIDs:    make(map[string]string),
		fields:        make(map[string][]string),
		richText:      make(map[string]string),
	}
}

func (s *fakeSession) Login(ctx context.Context, adminURL, username, password string) error {
	s.loggedIn = true
	return nil
}

func (s *fakeSession) CreateEntry(ctx context.Context, name, price string) (string, error) {
	if s.cancel != nil {
		s.afterN--
		if s.afterN < 0 {
			s.cancel()
			return "", ctx.Err()
		}
	}
	if s.failCreateFor[name] {
		return "", errors.New("modal never settled")
	}
	s.nextID++
	id := fmt.Sprintf("%d", 1000+s.nextID)
	s.createdIDs[name] = id
	return "https://www.motobuzz.lv/admin/kategorie-1929/zbozi-" + id, nil
}

func (s *fakeSession) EditInlineField(ctx context.Context, fieldKey, value string) error {
	s.fields[fieldKey] = append(s.fields[fieldKey], value)
	return nil
}

func (s *fakeSession) SelectFromDropdown(ctx context.Context, fieldKey, optionLabel string) error {
	for name := range s.failBrandFor {
		if s.lastCreated() == name {
			return errors.New("option not present")
		}
	}
	s.fields[fieldKey] = append(s.fields[fieldKey], optionLabel)
	return nil
}

func (s *fakeSession) SetRichText(ctx context.Context, fieldKey, text string) error {
	s.richText[fieldKey] = text
	return nil
}

func (s *fakeSession) UploadImages(ctx context.Context, paths []string) error {
	s.uploaded = append(s.uploaded, append([]string(nil), paths...))
	if s.onUpload != nil {
		return s.onUpload(paths)
	}
	return nil
}

func (s *fakeSession) AddVariant(ctx context.Context, name string) error {
	s.variants = append(s.variants, name)
	return nil
}

func (s *fakeSession) SetPriceSource(ctx context.Context, mode string) error {
	s.priceSource = mode
	return nil
}

func (s *fakeSession) SetAvailability(ctx context.Context, available bool) error {
	s.available = available
	return nil
}

func (s *fakeSession) OpenRelationEditor(ctx context.Context, internalID string) error {
	s.opened = append(s.opened, internalID)
	return nil
}

func (s *fakeSession) FilterAndSelectRelation(ctx context.Context, targetExternalID string) error {
	if s.failLinkTo[targetExternalID] {
		return errors.New("filter found no row")
	}
	s.linked = append(s.linked, s.opened[len(s.opened)-1]+"->"+targetExternalID)
	return nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) lastCreated() string {
	var last string
	var max int
	for name, id := range s.createdIDs {
		var n int
		fmt.Sscanf(id, "%d", &n)
		if n > max {
			max = n
			last = name
		}
	}
	return last
}

type fakeByteFetcher struct {
	body []byte
	err  error
}

func (f *fakeByteFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	return nil, errors.New("not supported")
}

func (f *fakeByteFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	return f.body, f.err
}

type recordingJournal struct {
	synced []string
	failed []string
	links  []string
	err    error
}

func (j *recordingJournal) ProductSynced(ctx context.Context, entry *models.ReconciliationEntry, name string) error {
	j.synced = append(j.synced, name)
	return j.err
}

func (j *recordingJournal) ProductFailed(ctx context.Context, sourceURL, name string, cause error) error {
	j.failed = append(j.failed, name)
	return j.err
}

func (j *recordingJournal) RelationLinked(ctx context.Context, fromInternalID, toExternalID string) error {
	j.links = append(j.links, fromInternalID+"->"+toExternalID)
	return j.err
}

func product(name, subcategory string) *models.ProductRecord {
	return &models.ProductRecord{
		SourceCategoryURL: testScope + "/" + subcategory + "/pagina-1",
		SourceProductURL:  "https://www.jopa.nl/product/" + name,
		Name:              name,
		Price:             "89,95",
		EAN:               models.EANNotFound,
		Sizes:             []string{"M", "L"},
	}
}

func newEngine(session *fakeSession) *Engine {
	return New(session, &fakeByteFetcher{body: []byte("jpeg")}, Config{
		AdminURL:    "https://www.motobuzz.lv/admin",
		Username:    "importer",
		Password:    "secret",
		BrandOption: "Jopa",
		SiteScope:   testScope,
	})
}

func TestRunCreatesEveryProductAndSurvivesOneFailure(t *testing.T) {
	session := newFakeSession()
	session.failBrandFor["gamma"] = true

	records := []*models.ProductRecord{
		product("alpha", "helmen"),
		product("beta", "helmen"),
		product("gamma", "helmen"),
		product("delta", "jassen"),
		product("epsilon", "jassen"),
	}

	engine := newEngine(session)
	summary, err := engine.Run(context.Background(), records)
	require.NoError(t, err)

	assert.True(t, session.loggedIn)
	assert.Equal(t, 5, summary.ProductsExtracted)
	assert.Equal(t, 4, summary.ProductsCreated)
	assert.Equal(t, 1, summary.ProductsFailed)

	assert.Equal(t, StateCreated, engine.StateOf(records[0].SourceProductURL))
	assert.Equal(t, StateCreateFailed, engine.StateOf(records[2].SourceProductURL))

	recon := engine.Reconciliation()
	assert.Len(t, recon, 4)
	assert.NotContains(t, recon, records[2].SourceProductURL)
}

func TestReconciliationEntryJoinsSourceAndDestination(t *testing.T) {
	session := newFakeSession()
	records := []*models.ProductRecord{product("alpha", "helmen")}

	engine := newEngine(session)
	_, err := engine.Run(context.Background(), records)
	require.NoError(t, err)

	entry := engine.Lookup(records[0].SourceProductURL)
	require.NotNil(t, entry)
	assert.Equal(t, session.createdIDs["alpha"], entry.InternalID)
	assert.Equal(t, "Z"+session.createdIDs["alpha"], entry.ExternalID)
	assert.Equal(t, records[0].SourceProductURL, entry.SourceProductURL)
}

func TestCreateStepsWriteEveryField(t *testing.T) {
	session := newFakeSession()
	rec := product("alpha", "helmen")
	rec.EAN = "4001234567890"
	rec.ShortDescription = "Short copy."
	rec.LongDescription = "Long copy."

	engine := newEngine(session)
	_, err := engine.Run(context.Background(), []*models.ProductRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, []string{"4001234567890"}, session.fields["CPolozka.ean"])
	assert.Equal(t, []string{rec.SourceProductURL}, session.fields["CZbozi.dodavatelurl"])
	assert.Equal(t, []string{"Jopa"}, session.fields["CZbozi.vyrobce_id"])
	assert.Equal(t, "Short copy.", session.richText["zbozi.popis"])
	assert.Equal(t, "Long copy.", session.richText["zbozi.popis2"])
	assert.Equal(t, []string{"M", "L"}, session.variants)
	assert.Equal(t, "manual", session.priceSource)
	assert.True(t, session.available)
}

func TestConfiguredPriceSourceIsSelected(t *testing.T) {
	session := newFakeSession()
	engine := New(session, &fakeByteFetcher{body: []byte("jpeg")}, Config{
		BrandOption: "Jopa",
		SiteScope:   testScope,
		PriceSource: "supplier",
	})

	_, err := engine.Run(context.Background(), []*models.ProductRecord{product("alpha", "helmen")})
	require.NoError(t, err)
	assert.Equal(t, "supplier", session.priceSource)
}

func TestEmptyDescriptionsSkipRichTextEditor(t *testing.T) {
	session := newFakeSession()
	engine := newEngine(session)

	_, err := engine.Run(context.Background(), []*models.ProductRecord{product("alpha", "helmen")})
	require.NoError(t, err)
	assert.Empty(t, session.richText)
}

func TestImagesAreStagedLocallyAndReleased(t *testing.T) {
	session := newFakeSession()
	rec := product("alpha", "helmen")
	rec.Images = []string{
		"https://www.jopa.nl/media/alpha-front.jpg",
		"https://www.jopa.nl/media/alpha-back.png",
	}

	var seen []string
	session.onUpload = func(paths []string) error {
		seen = append([]string(nil), paths...)
		for _, p := range paths {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("staged file missing: %w", err)
			}
		}
		return nil
	}

	engine := newEngine(session)
	_, err := engine.Run(context.Background(), []*models.ProductRecord{rec})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Contains(t, seen[0], "image-00")
	assert.Contains(t, seen[1], "image-01")
	for _, p := range seen {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "staging for %s should be released", p)
	}
}

func TestImageDownloadFailureFailsTheProduct(t *testing.T) {
	session := newFakeSession()
	rec := product("alpha", "helmen")
	rec.Images = []string{"https://www.jopa.nl/media/alpha.jpg"}

	engine := New(session, &fakeByteFetcher{err: errors.New("connection reset")}, Config{
		BrandOption: "Jopa",
		SiteScope:   testScope,
	})
	summary, err := engine.Run(context.Background(), []*models.ProductRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ProductsCreated)
	assert.Equal(t, 1, summary.ProductsFailed)
	assert.Empty(t, session.uploaded)
}

func TestLinkingScopedToSubcategoryGroups(t *testing.T) {
	session := newFakeSession()
	records := []*models.ProductRecord{
		product("alpha", "helmen"),
		product("beta", "helmen"),
		product("gamma", "helmen"),
		product("delta", "jassen"),
		product("epsilon", "jassen"),
		product("zeta", "laarzen"),
	}

	engine := newEngine(session)
	summary, err := engine.Run(context.Background(), records)
	require.NoError(t, err)

	// 3*2 directed links in helmen, 2*1 in jassen, none for the lone boot.
	assert.Equal(t, 8, summary.LinksEstablished)
	assert.Equal(t, 0, summary.LinksFailed)
	assert.Len(t, session.linked, 8)

	for _, link := range session.linked {
		parts := strings.Split(link, "->")
		require.Len(t, parts, 2)
		assert.NotEqual(t, "Z"+parts[0], parts[1], "self-link in %s", link)
	}
}

func TestFailedProductCountsAsReconciliationGap(t *testing.T) {
	session := newFakeSession()
	session.failCreateFor["beta"] = true

	records := []*models.ProductRecord{
		product("alpha", "helmen"),
		product("beta", "helmen"),
		product("gamma", "helmen"),
	}

	engine := newEngine(session)
	summary, err := engine.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ReconciliationGaps)
	// The two surviving products link only to each other.
	assert.Equal(t, 2, summary.LinksEstablished)
}

func TestPairFailureDoesNotStopLinking(t *testing.T) {
	session := newFakeSession()
	records := []*models.ProductRecord{
		product("alpha", "helmen"),
		product("beta", "helmen"),
		product("gamma", "helmen"),
	}

	engine := newEngine(session)
	summary, err := engine.Run(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 6, summary.LinksEstablished)

	// Rerun with one target poisoned: the four other attempts still land.
	session = newFakeSession()
	engine = newEngine(session)
	session.failLinkTo["Z1001"] = true
	summary, err = engine.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.LinksEstablished)
	assert.Equal(t, 2, summary.LinksFailed)
}

func TestCancellationStopsBetweenProducts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := newFakeSession()
	session.cancel = cancel
	session.afterN = 2

	records := []*models.ProductRecord{
		product("alpha", "helmen"),
		product("beta", "helmen"),
		product("gamma", "helmen"),
		product("delta", "helmen"),
	}

	engine := newEngine(session)
	summary, err := engine.Run(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.ProductsCreated)
}

func TestJournalFailureNeverAbortsTheRun(t *testing.T) {
	session := newFakeSession()
	journal := &recordingJournal{err: errors.New("connection refused")}

	records := []*models.ProductRecord{
		product("alpha", "helmen"),
		product("beta", "helmen"),
	}

	engine := newEngine(session).WithJournal(journal)
	summary, err := engine.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ProductsCreated)
	assert.Equal(t, []string{"alpha", "beta"}, journal.synced)
	assert.Len(t, journal.links, 2)
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	_, err := transition(StateCreated, StateCreating)
	assert.Error(t, err)
	_, err = transition(StateCreateFailed, StateCreated)
	assert.Error(t, err)

	s, err := transition(StateNotStarted, StateCreating)
	require.NoError(t, err)
	s, err = transition(s, StateCreated)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, s)
}
