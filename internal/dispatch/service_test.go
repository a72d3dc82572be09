package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sitestock/sitestock/internal/billing"
	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/notify"
	"github.com/sitestock/sitestock/internal/requests"
	"github.com/sitestock/sitestock/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(v float64) *float64 { return &v }

// memoryDispatchRepo backs the purchase_history table plus the request flips
// and ledger appends the transactional repository performs.
type memoryDispatchRepo struct {
	byID      map[string]PurchaseHistory
	byRequest map[string]string
	requests  *fakeRequests
	ledger    *fakeLedger
}

func newMemoryDispatchRepo(reqs *fakeRequests, led *fakeLedger) *memoryDispatchRepo {
	return &memoryDispatchRepo{
		byID:      make(map[string]PurchaseHistory),
		byRequest: make(map[string]string),
		requests:  reqs,
		ledger:    led,
	}
}

func (r *memoryDispatchRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryDispatchRepo) Get(ctx context.Context, id string) (PurchaseHistory, error) {
	h, ok := r.byID[id]
	if !ok {
		return PurchaseHistory{}, fmt.Errorf("dispatch: history %s: %w", id, shared.ErrNotFound)
	}
	return h, nil
}

func (r *memoryDispatchRepo) GetByRequest(ctx context.Context, requestID string) (PurchaseHistory, bool, error) {
	id, ok := r.byRequest[requestID]
	if !ok {
		return PurchaseHistory{}, false, nil
	}
	return r.byID[id], true, nil
}

func (r *memoryDispatchRepo) List(ctx context.Context, filters ListFilters, limit, offset int) ([]PurchaseHistory, int, error) {
	var out []PurchaseHistory
	for _, h := range r.byID {
		if filters.ProjectID != "" && h.ProjectID != filters.ProjectID {
			continue
		}
		if filters.Status != "" && h.Status != filters.Status {
			continue
		}
		out = append(out, h)
	}
	return out, len(out), nil
}

func (r *memoryDispatchRepo) InsertHistory(ctx context.Context, h PurchaseHistory) error {
	if _, exists := r.byRequest[h.RequestID]; exists {
		return fmt.Errorf("dispatch: request %s: %w", h.RequestID, shared.ErrAlreadySent)
	}
	r.byID[h.ID] = h
	r.byRequest[h.RequestID] = h.ID
	return nil
}

func (r *memoryDispatchRepo) MarkRequestSent(ctx context.Context, requestID string, at time.Time) error {
	req, ok := r.requests.byID[requestID]
	if !ok || req.Status != requests.StatusApproved {
		return fmt.Errorf("dispatch: request %s not approved: %w", requestID, shared.ErrInvalidState)
	}
	req.Status = requests.StatusSent
	r.requests.byID[requestID] = req
	return nil
}

func (r *memoryDispatchRepo) MarkReceived(ctx context.Context, h PurchaseHistory) error {
	stored, ok := r.byID[h.ID]
	if !ok || !stored.Status.AwaitingGRN() {
		return fmt.Errorf("dispatch: history %s: %w", h.ID, shared.ErrAlreadyReceived)
	}
	r.byID[h.ID] = h
	return nil
}

func (r *memoryDispatchRepo) MarkRequestReceived(ctx context.Context, requestID string, at time.Time) error {
	req, ok := r.requests.byID[requestID]
	if !ok || req.Status != requests.StatusSent {
		return fmt.Errorf("dispatch: request %s not sent: %w", requestID, shared.ErrInvalidState)
	}
	req.Status = requests.StatusReceived
	r.requests.byID[requestID] = req
	return nil
}

func (r *memoryDispatchRepo) AppendLedgerEntry(ctx context.Context, entry ledger.Entry) error {
	entry.ID = fmt.Sprintf("led-%d", len(r.ledger.entries)+1)
	r.ledger.entries = append(r.ledger.entries, entry)
	return nil
}

// commitFailRepo rolls one transaction back after the callback and reports a
// commit error, as Repository.WithTx does when tx.Commit fails. Later calls
// pass through.
type commitFailRepo struct {
	*memoryDispatchRepo
	tripped bool
}

func (r *commitFailRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.tripped {
		return r.memoryDispatchRepo.WithTx(ctx, fn)
	}
	r.tripped = true
	byID := maps.Clone(r.byID)
	byRequest := maps.Clone(r.byRequest)
	reqs := maps.Clone(r.requests.byID)
	entries := len(r.ledger.entries)
	if err := r.memoryDispatchRepo.WithTx(ctx, fn); err != nil {
		return err
	}
	r.byID = byID
	r.byRequest = byRequest
	r.requests.byID = reqs
	r.ledger.entries = r.ledger.entries[:entries]
	return errors.New("dispatch: commit tx: connection reset")
}

type fakeRequests struct {
	byID map[string]requests.MaterialRequest
}

func (f *fakeRequests) Get(ctx context.Context, requestID string) (requests.MaterialRequest, error) {
	req, ok := f.byID[requestID]
	if !ok {
		return requests.MaterialRequest{}, fmt.Errorf("requests: %s: %w", requestID, shared.ErrNotFound)
	}
	return req, nil
}

type fakeCatalog struct {
	prices map[string]decimal.Decimal
}

func (f *fakeCatalog) UnitPrice(ctx context.Context, materialID string) (decimal.Decimal, bool) {
	price, ok := f.prices[materialID]
	if !ok {
		return decimal.Zero, false
	}
	return price, true
}

type fakeDirectory struct {
	roles map[string]directory.Role
	state string
}

func (f *fakeDirectory) HasAnyRole(ctx context.Context, projectID, userID string, roles ...directory.Role) (bool, error) {
	have, ok := f.roles[userID]
	if !ok {
		return false, nil
	}
	for _, r := range roles {
		if r == have {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDirectory) MembersByRole(ctx context.Context, projectID string, roles ...directory.Role) ([]directory.Member, error) {
	var out []directory.Member
	for userID, have := range f.roles {
		for _, r := range roles {
			if r == have {
				out = append(out, directory.Member{UserID: userID, Role: have})
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) Project(ctx context.Context, projectID string) (directory.Project, error) {
	return directory.Project{ID: projectID, Name: "Site A", State: f.state}, nil
}

type fakeLedger struct {
	entries     []ledger.Entry
	invalidated []string
}

func (f *fakeLedger) InvalidateBalance(ctx context.Context, projectID string) {
	f.invalidated = append(f.invalidated, projectID)
}

type fakeInvoices struct {
	issued    []billing.IssueInput
	byHistory map[string]bool
	failErr   error
}

func (f *fakeInvoices) Issue(ctx context.Context, input billing.IssueInput) (billing.Invoice, error) {
	if f.failErr != nil {
		return billing.Invoice{}, f.failErr
	}
	if f.byHistory[input.HistoryID] {
		return billing.Invoice{}, fmt.Errorf("billing: history %s: %w", input.HistoryID, shared.ErrDuplicateInvoice)
	}
	f.byHistory[input.HistoryID] = true
	f.issued = append(f.issued, input)
	return billing.Invoice{
		ID:          fmt.Sprintf("inv-%d", len(f.issued)),
		Number:      fmt.Sprintf("INV-2026-%06d", len(f.issued)),
		HistoryID:   input.HistoryID,
		TotalAmount: input.TotalAmount,
	}, nil
}

type recordingDispatcher struct {
	sent []notify.Notification
}

func (r *recordingDispatcher) Notify(ctx context.Context, n notify.Notification) {
	r.sent = append(r.sent, n)
}

type fixture struct {
	svc        *Service
	repo       *memoryDispatchRepo
	requests   *fakeRequests
	ledger     *fakeLedger
	invoices   *fakeInvoices
	dispatcher *recordingDispatcher
}

func newFixture(clientState string) *fixture {
	reqs := &fakeRequests{byID: map[string]requests.MaterialRequest{
		"req-1": {
			ID:           "req-1",
			ProjectID:    "p1",
			MaterialID:   "m-cement",
			MaterialName: "Cement OPC 53",
			Qty:          d("50"),
			Unit:         "bags",
			RequestedBy:  "eng",
			Status:       requests.StatusApproved,
		},
	}}
	led := &fakeLedger{}
	repo := newMemoryDispatchRepo(reqs, led)
	inv := &fakeInvoices{byHistory: make(map[string]bool)}
	dispatcher := &recordingDispatcher{}
	dir := &fakeDirectory{
		roles: map[string]directory.Role{
			"buyer": directory.RolePurchase,
			"eng":   directory.RoleEngineer,
			"mgr":   directory.RoleManager,
			"owner": directory.RoleOwner,
		},
		state: clientState,
	}
	svc := NewService(repo, reqs, &fakeCatalog{prices: map[string]decimal.Decimal{"m-cement": d("350")}},
		dir, led, inv, dispatcher, nil, nil,
		Config{SupplierState: "Maharashtra", DefaultGSTRate: d("18")})
	return &fixture{svc: svc, repo: repo, requests: reqs, ledger: led, invoices: inv, dispatcher: dispatcher}
}

func TestSendComputesPricing(t *testing.T) {
	f := newFixture("Karnataka")
	ctx := context.Background()

	h, err := f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	// 50 bags at 350 → 17500 base, 18% GST → 3150, total 20650.
	require.True(t, h.BasePrice.Equal(d("17500.00")), "base = %s", h.BasePrice)
	require.True(t, h.GSTAmount.Equal(d("3150.00")), "gst = %s", h.GSTAmount)
	require.True(t, h.TotalCost.Equal(d("20650.00")), "total = %s", h.TotalCost)
	require.Equal(t, StatusPendingGRN, h.Status)
	require.Equal(t, "buyer", h.SentBy)

	require.Equal(t, requests.StatusSent, f.requests.byID["req-1"].Status)

	// The requester hears about the dispatch.
	require.Len(t, f.dispatcher.sent, 1)
	require.Equal(t, "eng", f.dispatcher.sent[0].UserID)
	require.Equal(t, notify.TypeMaterialSent, f.dispatcher.sent[0].Type)
}

func TestSendTwice(t *testing.T) {
	f := newFixture("Karnataka")
	ctx := context.Background()

	_, err := f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.ErrorIs(t, err, shared.ErrAlreadySent)
	require.Len(t, f.repo.byID, 1, "exactly one history row")
}

func TestSendRequiresApprovedRequest(t *testing.T) {
	f := newFixture("Karnataka")
	ctx := context.Background()

	req := f.requests.byID["req-1"]
	req.Status = requests.StatusPending
	f.requests.byID["req-1"] = req

	_, err := f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSendRequiresPurchaseRole(t *testing.T) {
	f := newFixture("Karnataka")

	_, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "eng"})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSendWithMissingPrice(t *testing.T) {
	f := newFixture("Karnataka")
	f.svc.catalog = &fakeCatalog{prices: map[string]decimal.Decimal{}}

	h, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err, "a missing price never blocks dispatch")
	require.True(t, h.UnitPrice.IsZero())
	require.True(t, h.TotalCost.IsZero())
}

func TestSendMissingRequest(t *testing.T) {
	f := newFixture("Karnataka")
	_, err := f.svc.Send(context.Background(), SendInput{RequestID: "nope", ActorID: "buyer"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func sendAndReceive(t *testing.T, f *fixture) PurchaseHistory {
	t.Helper()
	ctx := context.Background()
	sent, err := f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	received, err := f.svc.Receive(ctx, ReceiveInput{
		HistoryID:     sent.ID,
		ActorID:       "eng",
		ProofPhotoURL: "https://cdn.example/grn/req-1.jpg",
		Latitude:      ptr(19.076),
		Longitude:     ptr(72.877),
		GeoLocation:   "Site A gate 2",
	})
	require.NoError(t, err)
	return received
}

func TestReceiveConfirmsGRN(t *testing.T) {
	f := newFixture("Karnataka")
	h := sendAndReceive(t, f)

	require.Equal(t, StatusReceived, h.Status)
	require.Equal(t, "eng", h.ReceivedBy)
	require.NotNil(t, h.ReceivedAt)
	require.True(t, h.GRNGenerated)

	// Request reached its terminal state.
	require.Equal(t, requests.StatusReceived, f.requests.byID["req-1"].Status)

	// Stock arrived: one IN entry for the full quantity, referencing the
	// request.
	require.Len(t, f.ledger.entries, 1)
	entry := f.ledger.entries[0]
	require.Equal(t, ledger.MovementIn, entry.Movement)
	require.Equal(t, ledger.SourcePurchase, entry.Source)
	require.Equal(t, ledger.RefMaterialRequest, entry.RefKind)
	require.Equal(t, "req-1", entry.RefID)
	require.True(t, entry.Qty.Equal(d("50")))
	require.Equal(t, []string{"p1"}, f.ledger.invalidated, "cached balance dropped after commit")

	// Invoice issued once, amounts copied from the history.
	require.Len(t, f.invoices.issued, 1)
	require.True(t, f.invoices.issued[0].TotalAmount.Equal(d("20650.00")))
	require.Equal(t, h.ID, f.invoices.issued[0].HistoryID)
}

func TestReceiveTwice(t *testing.T) {
	f := newFixture("Karnataka")
	h := sendAndReceive(t, f)

	_, err := f.svc.Receive(context.Background(), ReceiveInput{
		HistoryID:     h.ID,
		ActorID:       "eng",
		ProofPhotoURL: "https://cdn.example/grn/again.jpg",
		Latitude:      ptr(19.0),
		Longitude:     ptr(72.8),
	})
	require.ErrorIs(t, err, shared.ErrAlreadyReceived)
	require.Len(t, f.ledger.entries, 1, "no second stock entry")
	require.Len(t, f.invoices.issued, 1, "no second invoice")
}

func TestReceiveEvidence(t *testing.T) {
	cases := []struct {
		name  string
		photo string
		lat   *float64
		lng   *float64
		ok    bool
	}{
		{"valid", "https://cdn.example/p.jpg", ptr(19.07), ptr(72.87), true},
		{"zero coordinates are valid", "https://cdn.example/p.jpg", ptr(0), ptr(0), true},
		{"missing photo", "", ptr(19.07), ptr(72.87), false},
		{"missing latitude", "https://cdn.example/p.jpg", nil, ptr(72.87), false},
		{"missing longitude", "https://cdn.example/p.jpg", ptr(19.07), nil, false},
		{"latitude out of range", "https://cdn.example/p.jpg", ptr(91), ptr(72.87), false},
		{"longitude out of range", "https://cdn.example/p.jpg", ptr(19.07), ptr(-181), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture("Karnataka")
			sent, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "buyer"})
			require.NoError(t, err)

			_, err = f.svc.Receive(context.Background(), ReceiveInput{
				HistoryID:     sent.ID,
				ActorID:       "eng",
				ProofPhotoURL: tc.photo,
				Latitude:      tc.lat,
				Longitude:     tc.lng,
			})
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, shared.ErrMissingEvidence)
				require.Empty(t, f.ledger.entries, "no stock movement without evidence")
			}
		})
	}
}

func TestReceiveRequiresEngineerRole(t *testing.T) {
	f := newFixture("Karnataka")
	sent, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	_, err = f.svc.Receive(context.Background(), ReceiveInput{
		HistoryID:     sent.ID,
		ActorID:       "buyer",
		ProofPhotoURL: "https://cdn.example/p.jpg",
		Latitude:      ptr(19.07),
		Longitude:     ptr(72.87),
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestReceiveSurvivesInvoiceFailure(t *testing.T) {
	f := newFixture("Karnataka")
	f.invoices.failErr = fmt.Errorf("billing: sequence unavailable")

	h := sendAndReceive(t, f)
	require.Equal(t, StatusReceived, h.Status, "invoice failure never undoes the receipt")
	require.Len(t, f.ledger.entries, 1)
}

func TestReceiveAcceptsLegacySentStatus(t *testing.T) {
	f := newFixture("Karnataka")
	ctx := context.Background()
	sent, err := f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	// Old rows carry SENT instead of PENDING_GRN; both await the GRN.
	legacy := f.repo.byID[sent.ID]
	legacy.Status = StatusSent
	f.repo.byID[sent.ID] = legacy

	h, err := f.svc.Receive(ctx, ReceiveInput{
		HistoryID:     sent.ID,
		ActorID:       "eng",
		ProofPhotoURL: "https://cdn.example/p.jpg",
		Latitude:      ptr(19.07),
		Longitude:     ptr(72.87),
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, h.Status)
}

func TestReceiveCommitFailureLeavesNoLedgerEntry(t *testing.T) {
	f := newFixture("Karnataka")
	ctx := context.Background()
	sent, err := f.svc.Send(ctx, SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	f.svc.repo = &commitFailRepo{memoryDispatchRepo: f.repo}

	in := ReceiveInput{
		HistoryID:     sent.ID,
		ActorID:       "eng",
		ProofPhotoURL: "https://cdn.example/grn/req-1.jpg",
		Latitude:      ptr(19.076),
		Longitude:     ptr(72.877),
	}
	_, err = f.svc.Receive(ctx, in)
	require.Error(t, err)

	// Nothing from the failed receipt survives: the history still awaits its
	// GRN, the request is still in transit and the ledger holds no stock.
	require.Equal(t, StatusPendingGRN, f.repo.byID[sent.ID].Status)
	require.Equal(t, requests.StatusSent, f.requests.byID["req-1"].Status)
	require.Empty(t, f.ledger.entries)
	require.Empty(t, f.invoices.issued)

	// The retry lands exactly one movement for the request.
	h, err := f.svc.Receive(ctx, in)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, h.Status)
	require.Len(t, f.ledger.entries, 1)
	require.Equal(t, "req-1", f.ledger.entries[0].RefID)
}

func TestIssueInvoiceRetriesFailedIssuance(t *testing.T) {
	f := newFixture("Karnataka")
	f.invoices.failErr = fmt.Errorf("billing: sequence unavailable")

	h := sendAndReceive(t, f)
	require.Empty(t, f.invoices.issued, "receive swallowed the issuance failure")

	f.invoices.failErr = nil
	inv, err := f.svc.IssueInvoice(context.Background(), h.ID, "mgr")
	require.NoError(t, err)
	require.Equal(t, h.ID, inv.HistoryID)
	require.True(t, inv.TotalAmount.Equal(d("20650.00")))
	require.Len(t, f.invoices.issued, 1)
	require.Equal(t, "mgr", f.invoices.issued[0].GeneratedBy)
}

func TestIssueInvoiceDuplicate(t *testing.T) {
	f := newFixture("Karnataka")
	h := sendAndReceive(t, f)
	require.Len(t, f.invoices.issued, 1)

	_, err := f.svc.IssueInvoice(context.Background(), h.ID, "mgr")
	require.ErrorIs(t, err, shared.ErrDuplicateInvoice)
	require.Len(t, f.invoices.issued, 1, "no second invoice")
}

func TestIssueInvoiceRequiresReceivedHistory(t *testing.T) {
	f := newFixture("Karnataka")
	sent, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)

	_, err = f.svc.IssueInvoice(context.Background(), sent.ID, "mgr")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestIssueInvoiceRequiresBillingRole(t *testing.T) {
	f := newFixture("Karnataka")
	h := sendAndReceive(t, f)

	_, err := f.svc.IssueInvoice(context.Background(), h.ID, "eng")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSendIntraStateGST(t *testing.T) {
	f := newFixture("Maharashtra")

	h, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "buyer"})
	require.NoError(t, err)
	// The split differs but the total is the same either side of the state
	// line.
	require.True(t, h.GSTAmount.Equal(d("3150.00")))
	require.True(t, h.TotalCost.Equal(d("20650.00")))
}

func TestSendCustomGSTRate(t *testing.T) {
	f := newFixture("Karnataka")

	h, err := f.svc.Send(context.Background(), SendInput{RequestID: "req-1", ActorID: "buyer", GSTRate: d("5")})
	require.NoError(t, err)
	require.True(t, h.GSTAmount.Equal(d("875.00")), "gst = %s", h.GSTAmount)
	require.True(t, h.TotalCost.Equal(d("18375.00")))
}
