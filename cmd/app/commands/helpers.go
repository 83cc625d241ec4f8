// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"

	"github.com/convosec/keycore/internal/app"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}

// parseKeyID converts a key ID string to a UUID.
// Returns an error if the string is not a valid UUID.
func parseKeyID(keyIDStr string) (uuid.UUID, error) {
	keyID, err := uuid.Parse(keyIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid key id: %s", keyIDStr)
	}
	return keyID, nil
}

// keyRecordView is the operator-facing projection of a key record. Sealed key
// material is never printed.
type keyRecordView struct {
	ID                   uuid.UUID  `json:"id"`
	TenantID             string     `json:"tenant_id"`
	Name                 string     `json:"name"`
	KeyType              string     `json:"key_type"`
	ConversationID       *string    `json:"conversation_id,omitempty"`
	Status               string     `json:"status"`
	Algorithm            string     `json:"algorithm"`
	KeyLengthBits        int        `json:"key_length_bits"`
	Version              uint       `json:"version"`
	Fingerprint          string     `json:"fingerprint"`
	ValidFrom            time.Time  `json:"valid_from"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
	RevocationReason     string     `json:"revocation_reason,omitempty"`
	AutoRotate           bool       `json:"auto_rotate"`
	RotationIntervalDays int        `json:"rotation_interval_days,omitempty"`
	UsageCount           int64      `json:"usage_count"`
	CreatedBy            string     `json:"created_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// newKeyRecordView projects a key record onto its printable form.
func newKeyRecordView(key *keysDomain.KeyRecord) keyRecordView {
	return keyRecordView{
		ID:                   key.ID,
		TenantID:             key.TenantID,
		Name:                 key.Name,
		KeyType:              string(key.KeyType),
		ConversationID:       key.ConversationID,
		Status:               string(key.Status),
		Algorithm:            string(key.Algorithm),
		KeyLengthBits:        key.KeyLengthBits,
		Version:              key.Version,
		Fingerprint:          key.Fingerprint,
		ValidFrom:            key.ValidFrom,
		ValidUntil:           key.ValidUntil,
		RevocationReason:     key.RevocationReason,
		AutoRotate:           key.AutoRotate,
		RotationIntervalDays: key.RotationIntervalDays,
		UsageCount:           key.UsageCount,
		CreatedBy:            key.CreatedBy,
		CreatedAt:            key.CreatedAt,
	}
}

// printJSON outputs a value as indented JSON for machine consumption.
func printJSON(v any) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Println(string(jsonBytes))
}
