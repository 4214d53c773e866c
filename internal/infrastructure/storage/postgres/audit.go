package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// AuditAction is the kind of audited ledger operation.
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionPost     AuditAction = "post"
	AuditActionReserve  AuditAction = "reserve"
	AuditActionRelease  AuditAction = "release"
	AuditActionConsume  AuditAction = "consume"
	AuditActionDispatch AuditAction = "dispatch"
	AuditActionReceive  AuditAction = "receive"
	AuditActionCancel   AuditAction = "cancel"
)

// CompressionAlgo names the compression applied to the changes payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one sys_audit_log row.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	LegalEntityID     id.ID           `db:"legal_entity_id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            AuditAction     `db:"action"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes the operation trail of the ledger. Large change
// payloads (bulk adjustment posts, inbound event bodies) are compressed
// before storage.
type AuditService struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

func NewAuditService() (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditService{
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Log records one audit entry, joining the caller's transaction when
// present.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entry.CompressionAlgo = CompressionNone
	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	_, err := querier.Exec(ctx, `
		INSERT INTO sys_audit_log (
			id, legal_entity_id, entity_type, entity_id, action,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID, entry.LegalEntityID, entry.EntityType, entry.EntityID,
		entry.Action, entry.Changes, entry.ChangesCompressed,
		entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// LogChange marshals changes and records them for an entity.
func (s *AuditService) LogChange(ctx context.Context, sc scope.Scope, entityType string, entityID id.ID, action AuditAction, changes any) error {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	return s.Log(ctx, AuditEntry{
		LegalEntityID: sc.LegalEntityID,
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        action,
		Changes:       changesJSON,
	})
}

// EntityHistory returns the audit trail of one entity, newest first.
// Compressed payloads are inflated on the way out.
func (s *AuditService) EntityHistory(ctx context.Context, sc scope.Scope, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	rows, err := querier.Query(ctx, `
		SELECT id, legal_entity_id, entity_type, entity_id, action,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit_log
		WHERE legal_entity_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC
		LIMIT $4
	`, sc.LegalEntityID, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.LegalEntityID, &e.EntityType, &e.EntityID, &e.Action,
			&e.Changes, &e.ChangesCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			inflated, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit entry %s: %w", e.ID, err)
			}
			e.Changes = inflated
			e.ChangesCompressed = nil
			e.CompressionAlgo = CompressionNone
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Close releases the compressor resources.
func (s *AuditService) Close() {
	s.encoder.Close()
	s.decoder.Close()
}
