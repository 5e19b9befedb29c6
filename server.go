package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/models"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/models/reports"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// pushEnvelope is the Pub/Sub push-delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ledgerPushHandler handles Pub/Sub push delivery. The subscriber is published
// through an atomic pointer because the HTTP server starts serving before the
// DB and Redis are connected; until then deliveries get 503 and redeliver.
// Returning 2xx acks; 5xx redelivers.
func ledgerPushHandler(logger *logrus.Logger, subscriber *atomic.Pointer[workflow.ChangeSubscriber]) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := subscriber.Load()
		if sub == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		var envelope pushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "server.go", "ledgerPushHandler", "Unmarshal push envelope", string(body), err)
			// Malformed request: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}
		event, err := workflow.DecodeEventPayload(envelope.Message.Data)
		if err != nil {
			config.LogError(logger, "server.go", "ledgerPushHandler", "Decode event payload", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		ctx := utils.SetOrgIdInContext(c.Request.Context(), event.OrgId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, envelope.Message.ID)

		if err := sub.ProcessEvent(ctx, event, envelope.Message.ID); err != nil {
			config.LogError(logger, "server.go", "ledgerPushHandler", "Process event", event.EventId, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func main() {
	godotenv.Load()
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	var subscriber atomic.Pointer[workflow.ChangeSubscriber]
	batcher := workflow.NewInvalidationBatcher(
		workflow.DefaultInvalidationBatcherConfig(),
		workflow.CacheInvalidatorFunc(reports.InvalidateRange),
		logger,
	)

	router := gin.Default()
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":               "ok",
			"invalidation_backlog": batcher.PendingItems(),
		})
	})

	router.POST("/pubsub/ledger", ledgerPushHandler(logger, &subscriber))

	// Internal ops: read the drawer report (cache-first).
	router.GET("/internal/reports/daily-balance", func(c *gin.Context) {
		orgId := c.Query("org_id")
		propertyId, _ := strconv.Atoi(c.Query("property_id"))
		report, err := reports.GetDailyBalanceReport(c.Request.Context(), config.GetDB(),
			orgId, propertyId, c.Query("from"), c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	// Internal ops: force a ledger day recalculation.
	router.POST("/internal/ledger/recalculate", func(c *gin.Context) {
		orgId := c.Query("org_id")
		propertyId, _ := strconv.Atoi(c.Query("property_id"))
		day, err := utils.ToCanonicalDay(c.Query("day"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := workflow.RecalculateDayGuarded(c.Request.Context(), config.GetDB(), logger, orgId, propertyId, day); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Start listening before the slow dependency dance (Cloud Run needs $PORT fast).
	go func() {
		if err := router.Run(":" + port); err != nil {
			logger.Fatal("http server: " + err.Error())
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batcher.Start(ctx)
	subscriber.Store(workflow.NewChangeSubscriber(config.GetDB(), logger,
		workflow.CacheInvalidatorFunc(reports.InvalidateRange), batcher))

	dispatcher := workflow.NewOutboxDispatcher(config.GetDB(), logger)
	go dispatcher.Run(ctx)

	if err := RunLedgerWorkflow(subscriber.Load()); err != nil {
		logger.Error("ledger workflow not started: " + err.Error())
	}

	<-ctx.Done()
	batcher.Stop()
	logger.Info("shutdown complete")
}
