package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soulsadhna/booking-service/internal/domain"
	"github.com/soulsadhna/booking-service/internal/store"
	"github.com/soulsadhna/booking-service/pkg/cashfree"
	"github.com/soulsadhna/booking-service/pkg/gcalendar"
)

type bookingRepoStub struct {
	store.Repository

	user    *domain.User
	event   *domain.Event
	pending *domain.Payment
	success *domain.Payment
	byOrder map[string]*domain.Payment

	// pendingLater is returned by the pending lookup only after the first
	// call, emulating a concurrent initiation landing mid-flight.
	pendingLater *domain.Payment
	pendingCalls int

	createPaymentErr error
	created          *domain.Payment

	markTerminalErr    error
	markedOrderID      string
	markedParams       store.TerminalUpdateParams
	markTerminalCalled bool

	listPending []domain.Payment
}

func (s *bookingRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *bookingRepoStub) FindEventByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	if s.event == nil {
		return nil, store.ErrEventNotFound
	}
	return s.event, nil
}

func (s *bookingRepoStub) FindPendingPaymentByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Payment, error) {
	s.pendingCalls++
	if s.pending != nil {
		return s.pending, nil
	}
	if s.pendingLater != nil && s.pendingCalls > 1 {
		return s.pendingLater, nil
	}
	return nil, store.ErrPaymentNotFound
}

func (s *bookingRepoStub) FindSuccessfulPaymentByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Payment, error) {
	if s.success == nil {
		return nil, store.ErrPaymentNotFound
	}
	return s.success, nil
}

func (s *bookingRepoStub) FindPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	if p, ok := s.byOrder[orderID]; ok {
		return p, nil
	}
	return nil, store.ErrPaymentNotFound
}

func (s *bookingRepoStub) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	if s.createPaymentErr != nil {
		return s.createPaymentErr
	}
	s.created = payment
	return nil
}

func (s *bookingRepoStub) MarkPaymentTerminal(ctx context.Context, orderID string, params store.TerminalUpdateParams) (*domain.Payment, error) {
	s.markTerminalCalled = true
	s.markedOrderID = orderID
	s.markedParams = params
	if s.markTerminalErr != nil {
		return nil, s.markTerminalErr
	}
	p, ok := s.byOrder[orderID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	updated := *p
	updated.Status = params.Status
	if params.ProviderPaymentID != "" {
		pid := params.ProviderPaymentID
		updated.ProviderPaymentID = &pid
	}
	return &updated, nil
}

func (s *bookingRepoStub) ListPendingPaymentsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	return s.listPending, nil
}

type gatewayStub struct {
	createOrderErr error
	createdOrderID string
	createdAmount  int64

	getOrderErr    error
	orderStatuses  map[string]string
	getOrderCalled bool

	verifyErr   error
	verifyEvent *cashfree.WebhookEvent
}

func (g *gatewayStub) CreateOrder(ctx context.Context, orderID string, amountPaise int64, currency string, customer cashfree.Customer, returnURL, notifyURL string) (*cashfree.Order, error) {
	if g.createOrderErr != nil {
		return nil, g.createOrderErr
	}
	g.createdOrderID = orderID
	g.createdAmount = amountPaise
	return &cashfree.Order{
		OrderID:     orderID,
		OrderStatus: cashfree.OrderStatusActive,
		Raw:         map[string]any{"order_id": orderID, "payment_session_id": "session_abc"},
	}, nil
}

func (g *gatewayStub) GetOrder(ctx context.Context, orderID string) (*cashfree.Order, error) {
	g.getOrderCalled = true
	if g.getOrderErr != nil {
		return nil, g.getOrderErr
	}
	status := cashfree.OrderStatusActive
	if g.orderStatuses != nil {
		if s, ok := g.orderStatuses[orderID]; ok {
			status = s
		}
	}
	return &cashfree.Order{
		OrderID:     orderID,
		OrderStatus: status,
		Raw:         map[string]any{"order_id": orderID},
	}, nil
}

func (g *gatewayStub) VerifyWebhook(body []byte, signature, timestamp string) (*cashfree.WebhookEvent, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.verifyEvent != nil {
		return g.verifyEvent, nil
	}
	var event cashfree.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

type calendarStub struct {
	createMeetingErr error
	updateErr        error
	deleteErr        error
	addAttendeeErr   error

	deleteCalled   bool
	addedAttendees []string
}

func (c *calendarStub) CreateMeeting(ctx context.Context, title, description string, start, end time.Time, requestID string) (*gcalendar.Meeting, error) {
	if c.createMeetingErr != nil {
		return nil, c.createMeetingErr
	}
	return &gcalendar.Meeting{ID: "cal_evt_123", JoinLink: "https://meet.google.com/abc-defg-hij"}, nil
}

func (c *calendarStub) UpdateMeeting(ctx context.Context, meetingID, title, description string, start, end time.Time) error {
	return c.updateErr
}

func (c *calendarStub) DeleteMeeting(ctx context.Context, meetingID string) error {
	c.deleteCalled = true
	return c.deleteErr
}

func (c *calendarStub) AddAttendee(ctx context.Context, meetingID, email string) error {
	if c.addAttendeeErr != nil {
		return c.addAttendeeErr
	}
	c.addedAttendees = append(c.addedAttendees, email)
	return nil
}

type publisherStub struct {
	routingKeys []string
	payloads    []interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	p.payloads = append(p.payloads, body)
	return nil
}

func (p *publisherStub) Close() {}

func newTestService(repo store.Repository, gateway *gatewayStub, calendar *calendarStub, publisher *publisherStub, requirePayment bool) *Service {
	return NewService(repo, gateway, calendar, publisher, "test.events", "https://app.example/return", "https://api.example/payments/webhook", requirePayment)
}

func testUser() *domain.User {
	return &domain.User{ID: uuid.New(), Email: "asha@example.com", Name: "Asha", Role: domain.RoleUser}
}

func testEvent() *domain.Event {
	return &domain.Event{
		ID:              uuid.New(),
		Title:           "Morning Meditation",
		Price:           49900,
		CalendarEventID: "cal_evt_123",
		CalendarStatus:  domain.CalendarStatusSynced,
		MeetLink:        "https://meet.google.com/abc-defg-hij",
		StartTime:       time.Now().Add(24 * time.Hour),
		EndTime:         time.Now().Add(25 * time.Hour),
	}
}

func TestInitiateBooking_CreatesPendingLedgerEntry(t *testing.T) {
	user := testUser()
	event := testEvent()
	repo := &bookingRepoStub{user: user, event: event}
	gateway := &gatewayStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	initiation, err := svc.InitiateBooking(context.Background(), user.ID, event.ID, domain.CustomerContact{Phone: "9999999999"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.HasPrefix(initiation.OrderID, "order_") {
		t.Fatalf("unexpected order id format: %s", initiation.OrderID)
	}
	if initiation.ExistingAttempt {
		t.Fatal("fresh initiation must not be flagged as existing")
	}
	if repo.created == nil {
		t.Fatal("expected a ledger entry to be recorded")
	}
	if repo.created.Status != domain.PaymentStatusPending {
		t.Fatalf("expected PENDING entry, got %s", repo.created.Status)
	}
	if repo.created.Amount != event.Price {
		t.Fatalf("ledger amount %d does not match event price %d", repo.created.Amount, event.Price)
	}
	if gateway.createdOrderID != initiation.OrderID {
		t.Fatalf("gateway order %s does not match ledger order %s", gateway.createdOrderID, initiation.OrderID)
	}
}

func TestInitiateBooking_UnknownEventWritesNothing(t *testing.T) {
	user := testUser()
	repo := &bookingRepoStub{user: user}
	gateway := &gatewayStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	_, err := svc.InitiateBooking(context.Background(), user.ID, uuid.New(), domain.CustomerContact{})
	if !errors.Is(err, store.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if gateway.createdOrderID != "" {
		t.Fatal("no gateway order may be created for an unknown event")
	}
	if repo.created != nil {
		t.Fatal("no ledger entry may be written for an unknown event")
	}
}

func TestInitiateBooking_GatewayFailureLeavesNoLedgerEntry(t *testing.T) {
	user := testUser()
	event := testEvent()
	repo := &bookingRepoStub{user: user, event: event}
	gateway := &gatewayStub{createOrderErr: &cashfree.ErrorResponse{StatusCode: 503, Message: "unavailable"}}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	_, err := svc.InitiateBooking(context.Background(), user.ID, event.ID, domain.CustomerContact{})
	if err == nil {
		t.Fatal("expected gateway error to surface")
	}
	if repo.created != nil {
		t.Fatal("a failed order creation must not leave a PENDING entry")
	}
}

func TestInitiateBooking_ReusesOpenAttempt(t *testing.T) {
	user := testUser()
	event := testEvent()
	pending := &domain.Payment{
		OrderID: "order_1700000000000_ab12cd",
		UserID:  user.ID,
		EventID: event.ID,
		Amount:  event.Price,
		Status:  domain.PaymentStatusPending,
	}
	repo := &bookingRepoStub{user: user, event: event, pending: pending}
	gateway := &gatewayStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	initiation, err := svc.InitiateBooking(context.Background(), user.ID, event.ID, domain.CustomerContact{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !initiation.ExistingAttempt {
		t.Fatal("expected the open attempt to be flagged")
	}
	if initiation.OrderID != pending.OrderID {
		t.Fatalf("expected order %s, got %s", pending.OrderID, initiation.OrderID)
	}
	if gateway.createdOrderID != "" {
		t.Fatal("a second order must not be created while one is open")
	}
	if !gateway.getOrderCalled {
		t.Fatal("expected the open order to be refreshed from the provider")
	}
}

func TestInitiateBooking_DuplicateRaceReturnsWinner(t *testing.T) {
	user := testUser()
	event := testEvent()
	winner := &domain.Payment{
		OrderID: "order_1700000000000_zz99xx",
		UserID:  user.ID,
		EventID: event.ID,
		Amount:  event.Price,
		Status:  domain.PaymentStatusPending,
	}
	repo := &bookingRepoStub{
		user:             user,
		event:            event,
		createPaymentErr: store.ErrDuplicatePendingPayment,
		pendingLater:     winner,
	}
	gateway := &gatewayStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	initiation, err := svc.InitiateBooking(context.Background(), user.ID, event.ID, domain.CustomerContact{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if initiation.OrderID != winner.OrderID {
		t.Fatalf("expected the winner's order %s, got %s", winner.OrderID, initiation.OrderID)
	}
	if !initiation.ExistingAttempt {
		t.Fatal("the losing initiation must surface the winner as an existing attempt")
	}
}

func paidWebhook(orderID string) *cashfree.WebhookEvent {
	evt := &cashfree.WebhookEvent{Type: "PAYMENT_SUCCESS_WEBHOOK"}
	evt.Data.Order.OrderID = orderID
	evt.Data.Payment.CfPaymentID = json.Number("5114911130")
	evt.Data.Payment.PaymentStatus = "SUCCESS"
	evt.Data.Payment.PaymentGroup = "upi"
	evt.Data.Payment.PaymentTime = time.Now().Format(time.RFC3339)
	return evt
}

func failedWebhook(orderID string) *cashfree.WebhookEvent {
	evt := &cashfree.WebhookEvent{Type: "PAYMENT_FAILED_WEBHOOK"}
	evt.Data.Order.OrderID = orderID
	evt.Data.Payment.PaymentStatus = "FAILED"
	return evt
}

func TestHandlePaymentCallback_PaidTransitionsToSuccess(t *testing.T) {
	user := testUser()
	event := testEvent()
	pending := &domain.Payment{
		OrderID: "order_1700000000000_ab12cd",
		UserID:  user.ID,
		EventID: event.ID,
		Status:  domain.PaymentStatusPending,
	}
	repo := &bookingRepoStub{user: user, event: event, byOrder: map[string]*domain.Payment{pending.OrderID: pending}}
	gateway := &gatewayStub{verifyEvent: paidWebhook(pending.OrderID)}
	publisher := &publisherStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, publisher, true)

	updated, err := svc.HandlePaymentCallback(context.Background(), []byte("{}"), "sig", "ts")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", updated.Status)
	}
	if repo.markedParams.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS transition, got %s", repo.markedParams.Status)
	}
	if repo.markedParams.ProviderPaymentID != "5114911130" {
		t.Fatalf("expected provider payment id to be stamped, got %q", repo.markedParams.ProviderPaymentID)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "payment.status.success" {
		t.Fatalf("expected payment.status.success publish, got %v", publisher.routingKeys)
	}
}

func TestHandlePaymentCallback_FailedTransitionsToFailed(t *testing.T) {
	pending := &domain.Payment{OrderID: "order_1_aa", UserID: uuid.New(), EventID: uuid.New(), Status: domain.PaymentStatusPending}
	repo := &bookingRepoStub{byOrder: map[string]*domain.Payment{pending.OrderID: pending}}
	gateway := &gatewayStub{verifyEvent: failedWebhook(pending.OrderID)}
	publisher := &publisherStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, publisher, true)

	updated, err := svc.HandlePaymentCallback(context.Background(), []byte("{}"), "sig", "ts")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", updated.Status)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "payment.status.failed" {
		t.Fatalf("expected payment.status.failed publish, got %v", publisher.routingKeys)
	}
}

func TestHandlePaymentCallback_InvalidSignatureMutatesNothing(t *testing.T) {
	pending := &domain.Payment{OrderID: "order_1_aa", Status: domain.PaymentStatusPending}
	repo := &bookingRepoStub{byOrder: map[string]*domain.Payment{pending.OrderID: pending}}
	gateway := &gatewayStub{verifyErr: cashfree.ErrInvalidSignature}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	_, err := svc.HandlePaymentCallback(context.Background(), []byte("{}"), "bad", "ts")
	if !errors.Is(err, cashfree.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if repo.markTerminalCalled {
		t.Fatal("an unverified payload must not touch the ledger")
	}
}

func TestHandlePaymentCallback_ReplayOnTerminalIsNoOp(t *testing.T) {
	terminal := &domain.Payment{OrderID: "order_1_aa", Status: domain.PaymentStatusSuccess}
	repo := &bookingRepoStub{byOrder: map[string]*domain.Payment{terminal.OrderID: terminal}}
	gateway := &gatewayStub{verifyEvent: paidWebhook(terminal.OrderID)}
	publisher := &publisherStub{}
	svc := newTestService(repo, gateway, &calendarStub{}, publisher, true)

	got, err := svc.HandlePaymentCallback(context.Background(), []byte("{}"), "sig", "ts")
	if err != nil {
		t.Fatalf("replay must be acknowledged, got %v", err)
	}
	if got.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected terminal status to be reported, got %s", got.Status)
	}
	if repo.markTerminalCalled {
		t.Fatal("a replay must not attempt another transition")
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatal("a replay must not re-publish the terminal event")
	}
}

func TestHandlePaymentCallback_PaidAfterFailedDoesNotFlip(t *testing.T) {
	// The row left PENDING between the read and the conditional update.
	failed := &domain.Payment{OrderID: "order_1_aa", Status: domain.PaymentStatusPending}
	repo := &bookingRepoStub{
		byOrder:         map[string]*domain.Payment{failed.OrderID: failed},
		markTerminalErr: store.ErrPaymentAlreadyTerminal,
	}
	gateway := &gatewayStub{verifyEvent: paidWebhook(failed.OrderID)}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	failed.Status = domain.PaymentStatusFailed
	got, err := svc.HandlePaymentCallback(context.Background(), []byte("{}"), "sig", "ts")
	if err != nil {
		t.Fatalf("losing the transition race must not error, got %v", err)
	}
	if got.Status != domain.PaymentStatusFailed {
		t.Fatalf("terminal status must not flip, got %s", got.Status)
	}
}

func TestHandlePaymentCallback_UnknownOrderIsRejected(t *testing.T) {
	repo := &bookingRepoStub{byOrder: map[string]*domain.Payment{}}
	gateway := &gatewayStub{verifyEvent: paidWebhook("order_never_seen")}
	svc := newTestService(repo, gateway, &calendarStub{}, &publisherStub{}, true)

	_, err := svc.HandlePaymentCallback(context.Background(), []byte("{}"), "sig", "ts")
	if !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	if repo.markTerminalCalled {
		t.Fatal("webhook data must never fabricate a ledger entry")
	}
}

func TestConfirmAttendance_RequiresSuccessfulPayment(t *testing.T) {
	user := testUser()
	event := testEvent()
	repo := &bookingRepoStub{user: user, event: event}
	calendar := &calendarStub{}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	err := svc.ConfirmAttendance(context.Background(), user.ID, event.ID)
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	if len(calendar.addedAttendees) != 0 {
		t.Fatal("no attendee may be registered without a SUCCESS entry")
	}
}

func TestConfirmAttendance_RegistersPaidUser(t *testing.T) {
	user := testUser()
	event := testEvent()
	repo := &bookingRepoStub{
		user:    user,
		event:   event,
		success: &domain.Payment{OrderID: "order_1_aa", Status: domain.PaymentStatusSuccess},
	}
	calendar := &calendarStub{}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	if err := svc.ConfirmAttendance(context.Background(), user.ID, event.ID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(calendar.addedAttendees) != 1 || calendar.addedAttendees[0] != user.Email {
		t.Fatalf("expected %s to be registered, got %v", user.Email, calendar.addedAttendees)
	}
}

func TestConfirmAttendance_PaymentGateDisabled(t *testing.T) {
	user := testUser()
	event := testEvent()
	repo := &bookingRepoStub{user: user, event: event}
	calendar := &calendarStub{}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, false)

	if err := svc.ConfirmAttendance(context.Background(), user.ID, event.ID); err != nil {
		t.Fatalf("expected registration without payment check, got %v", err)
	}
	if len(calendar.addedAttendees) != 1 {
		t.Fatal("expected the attendee to be registered")
	}
}

func TestConfirmAttendance_CalendarFailureKeepsPayment(t *testing.T) {
	user := testUser()
	event := testEvent()
	repo := &bookingRepoStub{
		user:    user,
		event:   event,
		success: &domain.Payment{OrderID: "order_1_aa", Status: domain.PaymentStatusSuccess},
	}
	calendar := &calendarStub{addAttendeeErr: errors.New("upstream 500")}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	err := svc.ConfirmAttendance(context.Background(), user.ID, event.ID)
	if !errors.Is(err, ErrAttendeeRegistrationPending) {
		t.Fatalf("expected ErrAttendeeRegistrationPending, got %v", err)
	}
}
