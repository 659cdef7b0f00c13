// Package orders is the Order Ledger: patients order medicines against their
// prescriptions and the chosen pharmacy moves each order out of pending.
package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/internal/prescriptions"
)

var tracer = otel.Tracer("rams.internal.orders")

const ledgerName = "orders"

// PrescriptionReader follows a prescription reference. Implemented by
// prescriptions.Ledger.
type PrescriptionReader interface {
	Prescription(ctx context.Context, prescriptionID string) (*prescriptions.Prescription, error)
}

// PharmacyLookup resolves a pharmacy profile. Implemented by
// directory.Service.
type PharmacyLookup interface {
	GetPharmacy(ctx context.Context, pharmacyID string) (*identity.PharmacyProfile, error)
}

// Ledger owns order records.
type Ledger struct {
	store         docstore.Store
	prescriptions PrescriptionReader
	pharmacies    PharmacyLookup
	hooks         ledger.Hooks
}

// NewLedger wires the ledger to its store and references.
func NewLedger(store docstore.Store, rx PrescriptionReader, pharmacies PharmacyLookup, hooks ledger.Hooks) *Ledger {
	if store == nil {
		panic("orders: store required")
	}
	if rx == nil || pharmacies == nil {
		panic("orders: prescription reader and pharmacy lookup required")
	}
	return &Ledger{store: store, prescriptions: rx, pharmacies: pharmacies, hooks: hooks.Defaults()}
}

// Create places a pending order for one of the caller's prescriptions.
func (l *Ledger) Create(ctx context.Context, patientID string, req OrderRequest) (_ *Order, err error) {
	defer l.hooks.Observe(ledgerName, "create", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "orders.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.patient_id", patientID),
		attribute.String("rams.prescription_id", req.PrescriptionID),
		attribute.String("rams.pharmacy_id", req.PharmacyID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	rx, err := l.prescriptions.Prescription(ctx, req.PrescriptionID)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return nil, ErrPrescriptionNotFound
		}
		return nil, failure.From(err)
	}
	if patientID == "" || rx.PatientID != patientID {
		return nil, ErrNotPrescriptionPatient
	}
	req.PharmacyID = strings.TrimSpace(req.PharmacyID)
	if req.PharmacyID == "" {
		return nil, ErrPharmacyNotFound
	}
	if _, err := l.pharmacies.GetPharmacy(ctx, req.PharmacyID); err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return nil, ErrPharmacyNotFound
		}
		return nil, failure.From(err)
	}

	now := l.hooks.Now().UTC()
	order := &Order{
		OrderID:        uuid.NewString(),
		PharmacyID:     req.PharmacyID,
		PrescriptionID: rx.PrescriptionID,
		PatientID:      rx.PatientID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := docstore.InsertAs(ctx, l.store, Collection, order.OrderID, order); err != nil {
		fe := l.hooks.StoreFailure(err, "order insert failed", "prescription_id", rx.PrescriptionID)
		if fe.Kind == failure.KindUnexpected {
			return nil, ErrOrderFailed.Wrap(err)
		}
		return nil, fe
	}
	span.SetAttributes(attribute.String("rams.order_id", order.OrderID))
	l.hooks.Logger.Info("order placed", "order_id", order.OrderID, "patient_id", patientID, "pharmacy_id", order.PharmacyID)

	l.hooks.Publish(ctx, "order:"+order.OrderID, events.OrderPlacedV1{
		OrderID:        order.OrderID,
		PrescriptionID: order.PrescriptionID,
		PatientID:      order.PatientID,
		PharmacyID:     order.PharmacyID,
		PlacedAt:       now,
	})
	l.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionOrderPlaced,
		ActorID:  patientID,
		Entity:   "order",
		EntityID: order.OrderID,
		Subjects: []string{order.PatientID, order.PharmacyID},
		Details:  audit.Details(map[string]string{"prescriptionId": order.PrescriptionID}),
	})
	return order, nil
}

// UpdateStatus moves a pending order to fulfilled or cancelled. Only the
// order's pharmacy may do so, and only once.
func (l *Ledger) UpdateStatus(ctx context.Context, pharmacyID, orderID string, next Status) (_ *Order, err error) {
	defer l.hooks.Observe(ledgerName, "update_status", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "orders.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.order_id", orderID),
		attribute.String("rams.status", string(next)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	order, err := l.order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pharmacyID == "" || order.PharmacyID != pharmacyID {
		return nil, ErrNotOrderPharmacy
	}
	if !next.Terminal() {
		return nil, ErrUnsupportedStatus
	}
	if order.Status != StatusPending {
		return nil, ErrNotPending
	}

	now := l.hooks.Now().UTC()
	err = l.store.Update(ctx, Collection, orderID, docstore.Patch{
		Expect: []docstore.Eq{{Field: "status", Value: string(StatusPending)}},
		Set: map[string]any{
			"status":    string(next),
			"updatedAt": now,
		},
	})
	switch {
	case errors.Is(err, docstore.ErrConditionFailed):
		return nil, ErrNotPending
	case errors.Is(err, docstore.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, l.hooks.StoreFailure(err, "order status update failed", "order_id", orderID)
	}

	from := order.Status
	order.Status = next
	order.UpdatedAt = now
	l.hooks.Metrics.ObserveTransition("order", string(from), string(next))
	l.hooks.Logger.Info("order status changed", "order_id", orderID, "from", from, "to", next)

	l.hooks.Publish(ctx, "order:"+orderID, events.OrderStatusChangedV1{
		OrderID:    orderID,
		PatientID:  order.PatientID,
		PharmacyID: order.PharmacyID,
		From:       string(from),
		To:         string(next),
		ChangedAt:  now,
	})
	l.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionOrderStatusChanged,
		ActorID:  pharmacyID,
		Entity:   "order",
		EntityID: orderID,
		Subjects: []string{order.PatientID, order.PharmacyID},
		Details:  audit.Details(map[string]string{"from": string(from), "to": string(next)}),
	})
	return order, nil
}

func (l *Ledger) order(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrNotFound
	}
	order, err := docstore.GetAs[Order](ctx, l.store, Collection, orderID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, l.hooks.StoreFailure(err, "order lookup failed", "order_id", orderID)
	}
	return order, nil
}

// PrescriptionForOrder lets a pharmacy read the prescription referenced by
// one of its orders.
func (l *Ledger) PrescriptionForOrder(ctx context.Context, pharmacyID, orderID string) (_ *prescriptions.Prescription, err error) {
	defer l.hooks.Observe(ledgerName, "prescription_for_order", time.Now(), &err)
	order, err := l.order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pharmacyID == "" || order.PharmacyID != pharmacyID {
		return nil, ErrNotOrderPharmacy
	}
	rx, err := l.prescriptions.Prescription(ctx, order.PrescriptionID)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return nil, ErrPrescriptionNotFound
		}
		return nil, failure.From(err)
	}
	return rx, nil
}

// ListForPharmacy returns the orders addressed to the pharmacy, newest first,
// each joined with the patient's name and mobile.
func (l *Ledger) ListForPharmacy(ctx context.Context, pharmacyID string) (_ []PharmacyOrder, err error) {
	defer l.hooks.Observe(ledgerName, "list_for_pharmacy", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "orders.list_for_pharmacy")
	defer span.End()

	list, err := l.list(ctx, "pharmacyId", pharmacyID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	patients := map[string]*identity.PatientProfile{}
	out := make([]PharmacyOrder, len(list))
	for i, o := range list {
		p, ok := patients[o.PatientID]
		if !ok {
			var err error
			p, err = docstore.GetAs[identity.PatientProfile](ctx, l.store, identity.CollectionPatients, o.PatientID)
			if err != nil && !errors.Is(err, docstore.ErrNotFound) {
				l.hooks.Logger.Warn("patient join failed", "patient_id", o.PatientID, "error", err)
			}
			patients[o.PatientID] = p
		}
		out[i] = PharmacyOrder{Order: o}
		if p != nil {
			out[i].PatientName = p.Name
			out[i].PatientMobile = p.Mobile
		}
	}
	return out, nil
}

// ListForPatient returns the patient's orders, newest first, each joined with
// the pharmacy's name.
func (l *Ledger) ListForPatient(ctx context.Context, patientID string) (_ []PatientOrder, err error) {
	defer l.hooks.Observe(ledgerName, "list_for_patient", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "orders.list_for_patient")
	defer span.End()

	list, err := l.list(ctx, "patientId", patientID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	names := map[string]string{}
	out := make([]PatientOrder, len(list))
	for i, o := range list {
		name, ok := names[o.PharmacyID]
		if !ok {
			if ph, err := l.pharmacies.GetPharmacy(ctx, o.PharmacyID); err == nil {
				name = ph.PharmacyName
			} else if failure.KindOf(err) != failure.KindNotFound {
				l.hooks.Logger.Warn("pharmacy join failed", "pharmacy_id", o.PharmacyID, "error", err)
			}
			names[o.PharmacyID] = name
		}
		out[i] = PatientOrder{Order: o, PharmacyName: name}
	}
	return out, nil
}

func (l *Ledger) list(ctx context.Context, field, accountID string) ([]Order, error) {
	if strings.TrimSpace(accountID) == "" {
		return []Order{}, nil
	}
	list, err := docstore.FindAs[Order](ctx, l.store, Collection, docstore.Query{
		Where: []docstore.Eq{{Field: field, Value: accountID}},
	})
	if err != nil {
		return nil, l.hooks.StoreFailure(err, "order list failed", field, accountID)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}
