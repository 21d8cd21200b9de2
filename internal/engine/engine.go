// Package engine orchestrates the path from an inbound message to venue
// action: classification, signal parsing and split creation, and the arming
// of management commands. Price-triggered follow-up work is left to the
// watcher loops.
package engine

import (
	"context"
	"log/slog"

	"goldbot/internal/domain"
	"goldbot/internal/metrics"
	"goldbot/internal/parser"
)

// Engine routes every inbound message to the signal or management service
// based on classification.
type Engine struct {
	classifier *parser.Classifier
	signals    *SignalService
	mgmt       *ManagementService
	log        *slog.Logger
}

// NewEngine creates an Engine wired with the given services.
func NewEngine(classifier *parser.Classifier, signals *SignalService, mgmt *ManagementService, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		classifier: classifier,
		signals:    signals,
		mgmt:       mgmt,
		log:        log.With("component", "engine"),
	}
}

// HandleMessage classifies the message and dispatches it. Errors are venue
// or persistence failures; a message that is noise or fails to parse is not
// an error.
func (e *Engine) HandleMessage(ctx context.Context, msg domain.Message) error {
	category := e.classifier.Classify(msg.Text)
	metrics.IncMessage(string(category))

	switch category {
	case parser.CategoryManagement:
		return e.mgmt.Handle(ctx, msg)
	case parser.CategorySignal:
		return e.signals.Handle(ctx, msg)
	default:
		e.log.Debug("message dropped as noise", "msg_id", msg.ID)
		return nil
	}
}
