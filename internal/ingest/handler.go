// Package ingest consumes merge requests from MQTT and publishes results.
package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/segmerge/internal/database"
	"github.com/snarg/segmerge/internal/merge"
	"github.com/snarg/segmerge/internal/metrics"
)

// Message types published on the result topic.
const (
	TypeMergeResult = "merge_result"
	TypeMergeError  = "merge_error"
)

const storeTimeout = 5 * time.Second

// Publisher sends a payload to a topic. *mqttclient.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Store persists merge runs. *database.DB implements it.
type Store interface {
	InsertMergeRun(ctx context.Context, row *database.MergeRunRow) (time.Time, error)
}

// ResultMessage is published for every routed request.
type ResultMessage struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	SourceID  string          `json:"source_id,omitempty"`
	Result    *merge.Response `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type HandlerOptions struct {
	Service     *merge.Service
	Store       Store // optional
	Publisher   Publisher
	ResultTopic string // results go to {ResultTopic}/{source_id}
	Log         zerolog.Logger
}

// Handler turns MQTT merge requests into published results.
type Handler struct {
	svc         *merge.Service
	store       Store
	pub         Publisher
	resultTopic string
	log         zerolog.Logger

	msgCount  atomic.Int64
	failCount atomic.Int64
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		svc:         opts.Service,
		store:       opts.Store,
		pub:         opts.Publisher,
		resultTopic: strings.TrimRight(opts.ResultTopic, "/"),
		log:         opts.Log.With().Str("component", "ingest").Logger(),
	}
}

// HandleMessage is the mqttclient.MessageHandler for merge requests.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	h.msgCount.Add(1)

	route := ParseTopic(topic)
	if route == nil {
		metrics.IngestMessagesTotal.WithLabelValues("unrouted").Inc()
		h.log.Warn().Str("topic", topic).Msg("unknown topic, skipping")
		return
	}

	var req merge.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		h.fail(route.SourceID, "invalid", err)
		return
	}
	if req.SourceID == "" {
		req.SourceID = route.SourceID
	}

	resp, err := h.svc.Run(&req)
	if err != nil {
		h.fail(req.SourceID, "invalid", err)
		return
	}

	if h.store != nil {
		h.save(resp)
	}

	metrics.IngestMessagesTotal.WithLabelValues("merged").Inc()
	h.publish(ResultMessage{
		Type:      TypeMergeResult,
		Timestamp: time.Now().Unix(),
		SourceID:  resp.SourceID,
		Result:    resp,
	})
}

// save stores resp and sets its ID. A failed insert is logged and the result
// is still published without an ID.
func (h *Handler) save(resp *merge.Response) {
	row, err := merge.Row(uuid.NewString(), resp)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		_, err = h.store.InsertMergeRun(ctx, row)
		cancel()
	}
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("store_failed").Inc()
		h.log.Error().Err(err).Str("source_id", resp.SourceID).Msg("failed to store merge run")
		return
	}
	resp.ID = row.ID
}

func (h *Handler) fail(sourceID, outcome string, err error) {
	h.failCount.Add(1)
	metrics.IngestMessagesTotal.WithLabelValues(outcome).Inc()
	h.log.Warn().Err(err).Str("source_id", sourceID).Msg("rejected merge request")
	h.publish(ResultMessage{
		Type:      TypeMergeError,
		Timestamp: time.Now().Unix(),
		SourceID:  sourceID,
		Error:     err.Error(),
	})
}

func (h *Handler) publish(msg ResultMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode result")
		return
	}
	topic := h.ResultTopic(msg.SourceID)
	if err := h.pub.Publish(topic, payload); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("publish_failed").Inc()
		h.log.Error().Err(err).Str("topic", topic).Msg("failed to publish result")
	}
}

// ResultTopic returns the topic a result for sourceID is published on.
func (h *Handler) ResultTopic(sourceID string) string {
	if sourceID == "" {
		return h.resultTopic
	}
	return h.resultTopic + "/" + sourceID
}

// Run logs message counts every minute until ctx is done.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	var lastTotal int64
	for {
		select {
		case <-ctx.Done():
			h.log.Info().
				Int64("total_messages", h.msgCount.Load()).
				Int64("rejected", h.failCount.Load()).
				Msg("ingest stopped")
			return
		case <-ticker.C:
			total := h.msgCount.Load()
			if delta := total - lastTotal; delta > 0 {
				h.log.Info().
					Int64("total", total).
					Int64("last_60s", delta).
					Int64("rejected", h.failCount.Load()).
					Msg("ingest stats")
			}
			lastTotal = total
		}
	}
}
