// Package crm creates records in a tenant's CRM system. The pipeline only
// sees the Creator interface; authentication and token refresh are the
// implementation's problem.
package crm

import (
	"context"
	"errors"

	"github.com/mbreslin/voicesync/pkg/models"
)

var (
	ErrAuthFailed     = errors.New("crm authentication failed")
	ErrCreateRejected = errors.New("crm rejected record creation")
	ErrUnreachable    = errors.New("crm unreachable")
)

// Creator is the remote record-creation capability the pipeline depends
// on. Credentials come from the tenant so one Creator serves all tenants.
type Creator interface {
	CreateRecord(ctx context.Context, tenant *models.Tenant, entityName string, fields map[string]any) (string, error)
}
