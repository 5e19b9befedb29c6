package main

import (
	"context"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/workflow"
	"github.com/sirupsen/logrus"
)

// RunLedgerWorkflow starts the pull subscription that feeds the change
// subscriber. At-least-once: a Nack (or missed ack deadline) redelivers, so
// the handler is written to be safe under duplicates.
func RunLedgerWorkflow(subscriber *workflow.ChangeSubscriber) error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_LEDGER_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_LEDGER_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Concurrency ceiling for in-flight handlers.
	sub.ReceiveSettings.MaxOutstandingMessages = config.PubSubMaxOutstanding()

	callback := func(ctx context.Context, msg *pubsub.Message) {
		event, err := workflow.DecodeEventPayload(msg.Data)
		if err != nil {
			config.LogError(logger, "ledgerWorkflow.go", "RunLedgerWorkflow", "Decoding event payload", string(msg.Data), err)
			// Malformed payloads never become valid; ack to stop redelivery.
			msg.Ack()
			return
		}

		ctx = utils.SetOrgIdInContext(ctx, event.OrgId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, msg.ID)

		if err := subscriber.ProcessEvent(ctx, event, msg.ID); err != nil {
			logger.WithFields(logrus.Fields{
				"module":     "LedgerWorkflow",
				"org_id":     event.OrgId,
				"event_id":   event.EventId,
				"event_type": event.EventType,
				"message_id": msg.ID,
			}).Error("event processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "ledgerWorkflow.go", "RunLedgerWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}
