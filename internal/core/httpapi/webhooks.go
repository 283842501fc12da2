package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/common/trace"
	"github.com/arocore/core/internal/core/adapters"
	"github.com/arocore/core/internal/core/privacy"
	"github.com/arocore/core/internal/core/store"
	"github.com/arocore/core/internal/core/workflow"
)

// reminderOffsets are how far ahead of an appointment each SMS reminder is
// scheduled: one two days out, one the day before.
var reminderOffsets = []struct {
	template string
	before   time.Duration
}{
	{template: "reminder_48h", before: 48 * time.Hour},
	{template: "reminder_24h", before: 24 * time.Hour},
}

type reminderInfo struct {
	Template     string    `json:"template"`
	ScheduledFor time.Time `json:"scheduledFor"`
	ExecutionID  string    `json:"executionId,omitempty"`
}

type bookingResponse struct {
	AppointmentID string         `json:"appointmentId"`
	Status        string         `json:"status"`
	Reminders     []reminderInfo `json:"reminders,omitempty"`
}

// handleBookingWebhook serves POST /v1/webhooks/booking: a Calendly invitee
// webhook that creates an appointment pending the customer's confirmation
// and schedules the 48h/24h SMS reminder commands that nudge them toward it.
func (s *Server) handleBookingWebhook(w http.ResponseWriter, r *http.Request) error {
	tenantID := r.Header.Get("X-Tenant-Id")
	if tenantID == "" {
		return badRequest("X-Tenant-Id header is required")
	}

	adapter, ok := s.deps.Adapters["calendly"]
	if !ok {
		return newAPIError(http.StatusServiceUnavailable, envelope.CodeServiceUnavailable, "calendly adapter not configured")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("failed to read request body")
	}

	if err := adapter.VerifySignature(r.Header.Get("Calendly-Webhook-Signature"), body, []byte(s.cfg.webhookSecret("calendly"))); err != nil {
		return newAPIError(http.StatusUnauthorized, envelope.CodeUnauthorized, err.Error())
	}

	evt, err := adapter.Normalize(body)
	if err != nil {
		return badRequest(err.Error())
	}

	ctx := r.Context()
	correlationID := trace.FromContext(ctx)
	idempotencyID := uuid.NewString()
	if reserveErr := s.deps.Store.ReserveIdempotencyKey(ctx, idempotencyID, tenantID, "calendly", adapters.IdempotencyKey(evt), s.cfg.IdempotencyTTL); reserveErr != nil {
		// Already processed this delivery; acknowledge without reprocessing.
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return nil
	}

	name, _ := evt.Payload["customerName"].(string)
	email, _ := evt.Payload["customerEmail"].(string)
	startTime, _ := evt.Payload["startTime"].(string)

	cust, err := s.resolveCustomerByEmail(ctx, tenantID, email, name)
	if err != nil {
		return internalError(err)
	}

	scheduledAt := time.Now()
	if startTime != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, startTime); parseErr == nil {
			scheduledAt = parsed
		}
	}

	appt := &store.Appointment{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		CustomerID:      cust.ID,
		ScheduledAt:     scheduledAt,
		Timezone:        "UTC",
		DurationMinutes: 30,
		Status:          string(workflow.StatusPendingConfirm),
	}
	appt.ExternalID.String = evt.ExternalID
	appt.ExternalID.Valid = true

	if err := s.deps.Store.CreateAppointment(ctx, appt); err != nil {
		return internalError(err)
	}

	_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
		"booking.received",
		tenantID,
		envelope.Aggregate{Type: "appointment", ID: appt.ID},
		map[string]interface{}{"customerId": cust.ID, "externalId": evt.ExternalID},
		envelope.Metadata{CorrelationID: correlationID},
	))

	reminders := s.scheduleReminders(ctx, tenantID, correlationID, appt, cust)

	writeJSON(w, http.StatusAccepted, bookingResponse{
		AppointmentID: appt.ID,
		Status:        string(workflow.StatusPendingConfirm),
		Reminders:     reminders,
	})
	return nil
}

// scheduleReminders enqueues one integration.twilio.send_sms command per
// reminderOffsets entry whose fire time still lies in the future, deferring
// each to its offset ahead of the appointment rather than dispatching it
// immediately. A nil Queue (e.g. in unit tests that don't wire one) simply
// skips scheduling; the booking itself still succeeds.
func (s *Server) scheduleReminders(ctx context.Context, tenantID, correlationID string, appt *store.Appointment, cust *store.Customer) []reminderInfo {
	if s.deps.Queue == nil {
		return nil
	}

	var reminders []reminderInfo
	for _, offset := range reminderOffsets {
		fireAt := appt.ScheduledAt.Add(-offset.before)
		if !fireAt.After(time.Now()) {
			continue
		}

		cmd := envelope.Command{
			CommandType: "integration.twilio.send_sms",
			Payload: map[string]interface{}{
				"aggregateId": appt.ID,
				"to":          cust.Phone,
				"template":    offset.template,
			},
		}
		headers := envelope.CommandHeaders{
			TenantID:      tenantID,
			CorrelationID: correlationID,
		}

		entry, err := s.deps.Queue.Enqueue(cmd, headers, 0)
		if err != nil {
			continue
		}
		if err := s.deps.Queue.Defer(entry.ID, fireAt); err != nil {
			continue
		}
		reminders = append(reminders, reminderInfo{Template: offset.template, ScheduledFor: fireAt, ExecutionID: entry.ExecutionID})
	}
	return reminders
}

// handleInboundReply serves POST /v1/webhooks/inbound-reply: a Twilio
// inbound SMS webhook. The reply body is classified synchronously by
// dispatching integration.nlp.classify_reply to the Executor (the Core
// process never runs NLP itself) and the resulting intent drives the
// matching appointment's FSM transition, a reschedule-link request, or the
// privacy opt-out path.
func (s *Server) handleInboundReply(w http.ResponseWriter, r *http.Request) error {
	tenantID := r.Header.Get("X-Tenant-Id")
	if tenantID == "" {
		return badRequest("X-Tenant-Id header is required")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("failed to read request body")
	}

	adapter, ok := s.deps.Adapters["twilio"]
	if ok {
		if err := adapter.VerifySignature(r.Header.Get("X-Twilio-Signature"), body, []byte(s.cfg.webhookSecret("twilio"))); err != nil {
			return newAPIError(http.StatusUnauthorized, envelope.CodeUnauthorized, err.Error())
		}
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return badRequest("failed to parse form body")
	}
	from := values.Get("From")
	messageSid := values.Get("MessageSid")
	text := values.Get("Body")
	if from == "" || messageSid == "" {
		return badRequest("missing From or MessageSid")
	}

	ctx := r.Context()
	correlationID := trace.FromContext(ctx)
	idempotencyID := uuid.NewString()
	if reserveErr := s.deps.Store.ReserveIdempotencyKey(ctx, idempotencyID, tenantID, "inbound-reply", messageSid, s.cfg.IdempotencyTTL); reserveErr != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return nil
	}

	cust, err := s.deps.Store.GetCustomerByPhone(ctx, tenantID, from)
	if err != nil {
		return notFound(envelope.CodeAppointmentNotFound, "no customer found for this phone number")
	}

	appts, err := s.deps.Store.ListUpcomingAppointments(ctx, tenantID, time.Now(), time.Now().AddDate(1, 0, 0))
	if err != nil {
		return internalError(err)
	}
	var target *store.Appointment
	for _, a := range appts {
		if a.CustomerID == cust.ID {
			target = a
			break
		}
	}
	if target == nil {
		return notFound(envelope.CodeAppointmentNotFound, "no upcoming appointment for this customer")
	}

	_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
		"inbound.reply.received",
		tenantID,
		envelope.Aggregate{Type: "appointment", ID: target.ID},
		map[string]interface{}{"from": from, "messageSid": messageSid, "body": text},
		envelope.Metadata{CorrelationID: correlationID},
	))

	if s.deps.Executor == nil {
		return newAPIError(http.StatusServiceUnavailable, envelope.CodeServiceUnavailable, "executor not configured; cannot classify reply")
	}

	classifyResult, err := s.deps.Executor.Execute(ctx, uuid.NewString(), tenantID, correlationID, "integration.nlp.classify_reply",
		map[string]interface{}{"text": text, "from": from})
	if err != nil {
		return internalError(err)
	}
	intent, _ := classifyResult.Payload["intent"].(string)

	_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
		"reply_classified",
		tenantID,
		envelope.Aggregate{Type: "appointment", ID: target.ID},
		map[string]interface{}{"intent": intent},
		envelope.Metadata{CorrelationID: correlationID},
	))

	switch intent {
	case "opt_out":
		if s.deps.Privacy != nil {
			_ = s.deps.Privacy.OptOut(ctx, privacy.OptOutRequest{TenantID: tenantID, Phone: from})
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "opted_out"})
		return nil

	case "confirm":
		if err := workflow.TransitionAppointment(workflow.AppointmentStatus(target.Status), workflow.StatusConfirmed, "customer"); err != nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": err.Error()})
			return nil
		}
		if err := s.deps.Store.ConfirmAppointment(ctx, target.ID, "sms_reply"); err != nil {
			return internalError(err)
		}
		_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
			"appointment.confirmed",
			tenantID,
			envelope.Aggregate{Type: "appointment", ID: target.ID},
			map[string]interface{}{"actor": "customer", "via": "sms_reply"},
			envelope.Metadata{CorrelationID: correlationID},
		))
		writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
		return nil

	case "reschedule":
		if s.deps.Queue != nil {
			_, _ = s.deps.Queue.Enqueue(envelope.Command{
				CommandType: "integration.booking.request_reschedule_link",
				Payload:     map[string]interface{}{"aggregateId": target.ID, "to": from},
			}, envelope.CommandHeaders{TenantID: tenantID, CorrelationID: correlationID}, 0)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reschedule_requested"})
		return nil

	case "cancel":
		_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
			"appointment.cancel_requested",
			tenantID,
			envelope.Aggregate{Type: "appointment", ID: target.ID},
			map[string]interface{}{"actor": "customer", "via": "sms_reply"},
			envelope.Metadata{CorrelationID: correlationID},
		))
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancel_requested"})
		return nil

	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "unclassified"})
		return nil
	}
}

// resolveCustomerByEmail looks up a customer keyed by a synthetic
// "email:<address>" phone-column value, since Calendly webhooks carry no
// phone number. A bare booking with no email at all is keyed on a random ID
// so distinct anonymous bookings never collide.
func (s *Server) resolveCustomerByEmail(ctx context.Context, tenantID, email, name string) (*store.Customer, error) {
	key := "email:" + email
	if email == "" {
		key = "anon:" + uuid.NewString()
	}

	cust, err := s.deps.Store.GetCustomerByPhone(ctx, tenantID, key)
	if err == nil {
		return cust, nil
	}

	cust = &store.Customer{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Phone:         key,
		PaymentStatus: "no_history",
		RiskCategory:  "low",
	}
	if name != "" {
		cust.Name.String = name
		cust.Name.Valid = true
	}
	if err := s.deps.Store.CreateCustomer(ctx, cust); err != nil {
		return nil, err
	}
	return cust, nil
}
