// Package pipeline runs uploaded recordings through transcription,
// extraction, validation and CRM sync, advancing the recording status at
// each step. This is where every recording ends up either synced or
// failed with a reason a farmer can act on.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mbreslin/voicesync/internal/blob"
	"github.com/mbreslin/voicesync/internal/cache"
	"github.com/mbreslin/voicesync/internal/config"
	"github.com/mbreslin/voicesync/internal/crm"
	"github.com/mbreslin/voicesync/internal/extract"
	"github.com/mbreslin/voicesync/internal/mapping"
	"github.com/mbreslin/voicesync/internal/schema"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/internal/transcribe"
	"github.com/mbreslin/voicesync/pkg/models"
)

// statusMirrorTTL bounds how long the cached status copy outlives the
// recording row it mirrors.
const statusMirrorTTL = 24 * time.Hour

// Processor drives a single recording through the full pipeline. It is
// safe for concurrent use; each Process call works on one recording and
// holds its processing lock for the duration.
type Processor struct {
	store       store.Store
	cache       cache.Cache
	blobs       blob.Store
	transcriber transcribe.Transcriber
	extractor   extract.Extractor
	crm         crm.Creator
	retry       *retrier
	cfg         config.PipelineConfig
	logger      *slog.Logger
}

func NewProcessor(st store.Store, c cache.Cache, blobs blob.Store, tr transcribe.Transcriber, ex extract.Extractor, creator crm.Creator, cfg config.Config, logger *slog.Logger) *Processor {
	return &Processor{
		store:       st,
		cache:       c,
		blobs:       blobs,
		transcriber: tr,
		extractor:   ex,
		crm:         creator,
		retry: &retrier{
			maxAttempts: cfg.Extract.MaxAttempts,
			logger:      logger,
		},
		cfg:    cfg.Pipeline,
		logger: logger,
	}
}

// WithRetryTimer swaps the backoff timer used between rate-limited
// extraction attempts. Tests use this to avoid real sleeps.
func (p *Processor) WithRetryTimer(t backoff.Timer) *Processor {
	p.retry.timer = t
	return p
}

// Process runs the pipeline for one recording. A recording already locked
// by another worker is skipped. Errors that fail the recording are
// recorded on the row itself; only infrastructure errors (store or cache
// unreachable) surface as a returned error.
func (p *Processor) Process(ctx context.Context, recordingID uuid.UUID) (err error) {
	log := p.logger.With(slog.String("recording_id", recordingID.String()))

	acquired, err := p.cache.AcquireProcessingLock(ctx, recordingID, p.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquiring processing lock: %w", err)
	}
	if !acquired {
		log.Warn("recording already being processed, skipping")
		return nil
	}
	defer func() {
		if relErr := p.cache.ReleaseProcessingLock(context.WithoutCancel(ctx), recordingID); relErr != nil {
			log.Error("failed to release processing lock", slog.String("error", relErr.Error()))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing recording", slog.Any("panic", r))
			p.fail(ctx, log, recordingID, fmt.Sprintf("Internal error: %v", r))
			err = fmt.Errorf("panic while processing recording %s: %v", recordingID, r)
		}
	}()

	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("loading recording: %w", err)
	}
	if rec.Terminal() {
		log.Warn("recording already in terminal status, skipping", slog.String("status", rec.Status))
		return nil
	}

	tenant, err := p.store.GetTenant(ctx, rec.TenantID)
	if err != nil {
		return fmt.Errorf("loading tenant %s: %w", rec.TenantID, err)
	}

	log.Info("processing recording",
		slog.String("tenant", tenant.Name),
		slog.String("filename", rec.Filename))

	audio, err := p.blobs.Fetch(ctx, rec.AudioRef)
	if err != nil {
		p.fail(ctx, log, recordingID, fmt.Sprintf("Failed to download audio file: %v", err))
		return nil
	}

	if err := p.advance(ctx, recordingID, models.StatusTranscribing); err != nil {
		return err
	}

	tres, err := p.transcriber.Transcribe(ctx, audio, rec.Filename)
	if err != nil {
		p.fail(ctx, log, recordingID, fmt.Sprintf("Transcription failed: %v", err))
		return nil
	}
	if err := p.advance(ctx, recordingID, models.StatusTranscribed,
		store.WithTranscript(tres.Text, tres.Confidence)); err != nil {
		return err
	}
	log.Info("transcription complete", slog.String("confidence", tres.Confidence))

	if err := p.advance(ctx, recordingID, models.StatusProcessing); err != nil {
		return err
	}

	mappings, err := p.store.ListActiveSchemaMappings(ctx, rec.TenantID)
	if err != nil {
		return fmt.Errorf("loading schema mappings: %w", err)
	}
	if len(mappings) == 0 {
		p.fail(ctx, log, recordingID, "No schema mappings configured for this client")
		return nil
	}

	eres, err := p.retry.extract(ctx, p.extractor, tres.Text, mappings)
	if err != nil {
		p.fail(ctx, log, recordingID, fmt.Sprintf("Extraction failed: %v", err))
		return nil
	}
	if eres.EntityType == extract.EntityUnknown {
		p.fail(ctx, log, recordingID, "Could not determine entity type from transcription",
			store.WithExtraction("", eres.Fields))
		return nil
	}
	log.Info("extraction complete",
		slog.String("entity_type", eres.EntityType),
		slog.String("confidence", eres.Confidence))

	extracted := store.WithExtraction(eres.EntityType, eres.Fields)

	category, _ := eres.Fields["category"].(string)
	if missing := schema.MissingRequiredFields(eres.Fields, category); len(missing) > 0 {
		log.Warn("required fields missing", slog.Any("fields", missing))
		p.fail(ctx, log, recordingID, schema.FormatMissingFieldsPrompt(missing), extracted)
		return nil
	}

	var matched *models.SchemaMapping
	for _, m := range mappings {
		if m.EntityName == eres.EntityType {
			matched = m
			break
		}
	}
	if matched == nil {
		p.fail(ctx, log, recordingID,
			fmt.Sprintf("No schema mapping found for entity type: %s", eres.EntityType), extracted)
		return nil
	}

	vres := mapping.Validate(eres.Fields, matched.ValidationRules)
	for _, w := range vres.Warnings {
		log.Warn("validation warning", slog.String("warning", w))
	}
	if !vres.OK {
		p.fail(ctx, log, recordingID, "Validation errors: "+strings.Join(vres.Errors, ", "), extracted)
		return nil
	}

	remoteFields := mapping.MapFields(eres.Fields, matched.FieldMappings)

	remoteID, err := p.crm.CreateRecord(ctx, tenant, matched.RemoteEntityName, remoteFields)
	if err != nil {
		p.fail(ctx, log, recordingID, fmt.Sprintf("CRM sync failed: %v", err), extracted)
		return nil
	}

	if err := p.advance(ctx, recordingID, models.StatusSynced,
		extracted,
		store.WithRemoteRecordID(remoteID),
		store.WithCompletedAt(time.Now().UTC())); err != nil {
		return err
	}

	log.Info("recording synced", slog.String("remote_record_id", remoteID))
	return nil
}

// advance moves the recording to the next status and mirrors it into the
// cache so status polls skip the database.
func (p *Processor) advance(ctx context.Context, id uuid.UUID, status string, opts ...store.RecordingUpdateOption) error {
	if err := p.store.UpdateRecordingStatus(ctx, id, status, opts...); err != nil {
		return fmt.Errorf("updating recording %s to %s: %w", id, status, err)
	}
	if err := p.cache.SetRecordingStatus(ctx, id, status, statusMirrorTTL); err != nil {
		p.logger.Warn("failed to mirror recording status",
			slog.String("recording_id", id.String()),
			slog.String("error", err.Error()))
	}
	return nil
}

// fail marks the recording failed with a reason. Marking failed must not
// itself fail the caller, so errors here are only logged.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, id uuid.UUID, reason string, opts ...store.RecordingUpdateOption) {
	log.Error("recording failed", slog.String("reason", reason))
	opts = append(opts, store.WithSyncError(reason))
	if err := p.store.UpdateRecordingStatus(ctx, id, models.StatusFailed, opts...); err != nil {
		log.Error("failed to mark recording as failed", slog.String("error", err.Error()))
		return
	}
	if err := p.cache.SetRecordingStatus(ctx, id, models.StatusFailed, statusMirrorTTL); err != nil {
		log.Warn("failed to mirror recording status", slog.String("error", err.Error()))
	}
}
