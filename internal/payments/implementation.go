// internal/payments/implementation.go
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/apperr"
	"libradesk/internal/circulation"
	"libradesk/internal/patron"
	"libradesk/internal/telemetry"
)

// service implements the Service interface.
type service struct {
	fees    FeeQuoter
	books   BookFinder
	gateway Gateway
	log     logrus.FieldLogger
	tracer  trace.Tracer

	payments metric.Int64Counter
	refunds  metric.Int64Counter
}

// Option configures a payments service.
type Option func(*service)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *service) { s.log = log }
}

// NewService creates a new payments service charging through gateway.
func NewService(fees FeeQuoter, books BookFinder, gateway Gateway, opts ...Option) Service {
	meter := otel.Meter("libradesk/payments")
	s := &service{
		fees:     fees,
		books:    books,
		gateway:  gateway,
		log:      logrus.StandardLogger(),
		tracer:   otel.Tracer("libradesk/payments"),
		payments: telemetry.Counter(meter, "libradesk.payments.charges", "Late fee charges, by outcome."),
		refunds:  telemetry.Counter(meter, "libradesk.payments.refunds", "Late fee refunds, by outcome."),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PayLateFee charges the patron the tiered late fee owed on the book. The
// gateway is not contacted unless there is something to pay.
func (s *service) PayLateFee(ctx context.Context, patronID string, bookID int64) (*PaymentReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "payments.pay_late_fee", trace.WithAttributes(
		attribute.String("patron.id", patronID),
		attribute.Int64("book.id", bookID),
	))
	defer span.End()

	log := s.log.WithFields(logrus.Fields{"patron_id": patronID, "book_id": bookID})

	if !patron.ValidID(patronID) {
		return nil, apperr.New(apperr.ErrInvalidPatron, msgInvalidPatron)
	}

	quote, err := s.fees.CalculateLateFee(ctx, patronID, bookID)
	if err != nil || quote == nil {
		log.WithError(err).Error(msgFeeUnavailable)
		return nil, apperr.Wrap(apperr.ErrStorage, msgFeeUnavailable, err)
	}
	if quote.FeeAmount <= 0 {
		log.WithField("status", quote.Status).Info("no late fees to pay")
		return nil, apperr.New(apperr.ErrNoFees, msgNoFees)
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Float64("payment.amount", quote.FeeAmount))
	res, err := s.gateway.ProcessPayment(ctx, patronID, quote.FeeAmount, fmt.Sprintf("Late fees for '%s'", book.Title))
	if err != nil {
		s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return nil, s.gatewayFault(span, log, "Payment processing error: "+err.Error(), err)
	}
	if !res.Success {
		s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "declined")))
		log.WithField("gateway_message", res.Message).Warn("payment declined")
		return nil, apperr.New(apperr.ErrGateway, "Payment failed: "+res.Message)
	}

	s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	span.SetAttributes(attribute.String("transaction.id", res.TransactionID))
	log.WithFields(logrus.Fields{"transaction_id": res.TransactionID, "amount": quote.FeeAmount}).Info("late fee paid")
	return &PaymentReceipt{
		Message:       "Payment successful! " + res.Message,
		TransactionID: res.TransactionID,
		Amount:        quote.FeeAmount,
	}, nil
}

// RefundPayment returns up to one book's maximum late fee on a previous
// transaction. Repeated refunds of the same transaction are not tracked.
func (s *service) RefundPayment(ctx context.Context, transactionID string, amount float64) (string, error) {
	ctx, span := s.tracer.Start(ctx, "payments.refund_payment", trace.WithAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.Float64("refund.amount", amount),
	))
	defer span.End()

	log := s.log.WithFields(logrus.Fields{"transaction_id": transactionID, "amount": amount})

	switch {
	case !strings.HasPrefix(transactionID, TransactionPrefix):
		return "", apperr.New(apperr.ErrInvalidInput, msgInvalidTxn)
	case amount <= 0:
		return "", apperr.New(apperr.ErrInvalidInput, msgRefundNotPositive)
	case amount > circulation.MaxLateFee:
		return "", apperr.New(apperr.ErrInvalidInput, msgRefundTooLarge)
	}

	res, err := s.gateway.RefundPayment(ctx, transactionID, amount)
	if err != nil {
		s.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return "", s.gatewayFault(span, log, "Refund processing error: "+err.Error(), err)
	}
	if !res.Success {
		s.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "declined")))
		log.WithField("gateway_message", res.Message).Warn("refund declined")
		return "", apperr.New(apperr.ErrGateway, "Refund failed: "+res.Message)
	}

	s.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	log.Info("late fee refunded")
	return res.Message, nil
}

func (s *service) gatewayFault(span trace.Span, log logrus.FieldLogger, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	log.WithError(err).Error("payment gateway fault")
	return apperr.Wrap(apperr.ErrGateway, msg, err)
}
