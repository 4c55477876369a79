// Package pipeline implements the inbound message intake flow: payload
// archival, deduplication, the ordered handler chain, and outbound dispatch.
package pipeline

import (
	"context"
	"time"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

// ApologyText is the static last-resort reply when every handler fails.
// Plain language, never an error code.
const ApologyText = "Sorry, we couldn't process your message right now. Please try again in a few minutes."

// Handler is one stage of the intake chain. A nil Reply with a nil error
// means the handler declined and the next one runs. Errors and panics are
// logged and treated as declines; they never abort the chain.
type Handler interface {
	Name() string
	Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error)
}

// Pipeline drives one webhook delivery from raw payload to outbound reply:
// received, deduped-or-new, classified, handled, acknowledged.
type Pipeline struct {
	messageLog out.MessageLog
	archive    out.PayloadArchive
	sender     out.MessageSender
	handlers   []Handler
	log        *logger.Logger
}

func New(messageLog out.MessageLog, archive out.PayloadArchive, sender out.MessageSender, handlers []Handler) *Pipeline {
	return &Pipeline{
		messageLog: messageLog,
		archive:    archive,
		sender:     sender,
		handlers:   handlers,
		log:        logger.Default().WithField("component", "pipeline"),
	}
}

// HandleInbound processes one delivery. It never returns an error: the
// webhook was already acknowledged, so every failure is absorbed here — the
// customer gets an apology instead of silence, and the provider never sees a
// retryable status for a message we accepted.
func (p *Pipeline) HandleInbound(ctx context.Context, business *domain.Business, msg *domain.InboundMessage, rawPayload []byte) {
	log := p.log.WithMessage(msg.MessageID, business.ID.String())
	started := time.Now()

	p.archivePayload(ctx, msg.MessageID, rawPayload)

	// The insert is the single point of truth for duplicate-delivery races:
	// whichever concurrent insert succeeds first owns the message.
	fresh, err := p.messageLog.Insert(ctx, msg.MessageID, business.ID)
	if err != nil {
		log.WithError(err).Error("dedup insert failed, dropping delivery")
		return
	}
	if !fresh {
		log.Debug("duplicate delivery, already handled")
		return
	}

	reply, handlerName := p.runChain(ctx, business, msg)
	if reply == nil {
		reply = &domain.Reply{Text: ApologyText}
		handlerName = "apology"
	}

	if !reply.Silent {
		outbound := &domain.OutboundMessage{To: msg.From, Text: reply.Text}
		if err := p.sender.SendText(ctx, business.ID.String(), outbound); err != nil {
			// Never retried: a duplicate customer-visible message is worse
			// than a dropped one.
			log.WithError(err).Error("outbound send failed")
		}
	}

	if err := p.messageLog.MarkHandled(ctx, msg.MessageID, handlerName); err != nil {
		log.WithError(err).Warn("failed to mark message handled")
	}

	log.WithDuration(time.Since(started)).WithField("handler", handlerName).Info("message handled")
}

// runChain walks the handlers in order until one produces a reply. A
// handler that errors or panics is logged with enough context to replay and
// treated as a decline.
func (p *Pipeline) runChain(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, string) {
	for _, handler := range p.handlers {
		reply, err := p.runHandler(ctx, handler, business, msg)
		if err != nil {
			p.log.WithMessage(msg.MessageID, business.ID.String()).
				WithField("handler", handler.Name()).
				WithError(err).
				Error("handler failed, degrading to next")
			continue
		}
		if reply != nil {
			return reply, handler.Name()
		}
	}
	return nil, ""
}

func (p *Pipeline) runHandler(ctx context.Context, handler Handler, business *domain.Business, msg *domain.InboundMessage) (reply *domain.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = nil
			err = &handlerPanic{handler: handler.Name(), value: r}
		}
	}()
	return handler.Handle(ctx, business, msg)
}

func (p *Pipeline) archivePayload(ctx context.Context, messageID string, payload []byte) {
	if p.archive == nil || len(payload) == 0 {
		return
	}
	if err := p.archive.Store(ctx, messageID, payload); err != nil {
		p.log.WithError(err).WithField("message_id", messageID).Warn("payload archive failed")
	}
}

type handlerPanic struct {
	handler string
	value   any
}

func (e *handlerPanic) Error() string {
	return "handler panicked: " + e.handler
}
