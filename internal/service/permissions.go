package service

import (
	"github.com/fieldops/dispatch-service/internal/domain"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// Operation names an engine operation for authorization, audit rows and metrics.
type Operation string

const (
	OpCreateTicket       Operation = "create"
	OpViewTicket         Operation = "view"
	OpAutoAssign         Operation = "auto_assign"
	OpManualAssign       Operation = "manual_assign"
	OpReassign           Operation = "reassign"
	OpUnassign           Operation = "unassign"
	OpStartWork          Operation = "start_work"
	OpReportNoResponse   Operation = "no_response"
	OpConfirmReject      Operation = "reject"
	OpCancelReject       Operation = "cancel_reject"
	OpCloseByHelpdesk    Operation = "close_by_helpdesk"
	OpClose              Operation = "close"
	OpReopen             Operation = "reopen"
	OpReopenRejected     Operation = "reopen_rejected"
	OpChangeType         Operation = "change_type"
	OpListPerformance    Operation = "list_performance"
	OpRecalculateBonuses Operation = "recalculate_bonuses"
	OpNormalizeLegacy    Operation = "normalize_legacy"
	OpManageSettings     Operation = "manage_settings"
	OpManageDirectory    Operation = "manage_directory"
)

var (
	staffRoles = []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleHelpdesk}
	adminRoles = []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin}
	fieldRoles = []domain.Role{domain.RoleTechnician}
	anyRole    = []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleHelpdesk, domain.RoleTechnician}
)

// allowedRoles is the single table consulted by every operation.
var allowedRoles = map[Operation][]domain.Role{
	OpCreateTicket:       staffRoles,
	OpViewTicket:         anyRole,
	OpAutoAssign:         fieldRoles,
	OpManualAssign:       staffRoles,
	OpReassign:           staffRoles,
	OpUnassign:           staffRoles,
	OpStartWork:          fieldRoles,
	OpReportNoResponse:   fieldRoles,
	OpConfirmReject:      staffRoles,
	OpCancelReject:       staffRoles,
	OpCloseByHelpdesk:    staffRoles,
	OpClose:              fieldRoles,
	OpReopen:             staffRoles,
	OpReopenRejected:     staffRoles,
	OpChangeType:         staffRoles,
	OpListPerformance:    anyRole,
	OpRecalculateBonuses: adminRoles,
	OpNormalizeLegacy:    adminRoles,
	OpManageSettings:     adminRoles,
	OpManageDirectory:    adminRoles,
}

// Authorize fails with FORBIDDEN unless the actor's role may run op.
func Authorize(actor domain.Actor, op Operation) error {
	if actor.UserID == "" {
		return apperrors.NewUnauthorized("actor required")
	}
	for _, role := range allowedRoles[op] {
		if role == actor.Role {
			return nil
		}
	}
	return apperrors.NewForbidden("role " + string(actor.Role) + " may not " + string(op))
}

// AllowedRoles lists the roles permitted to run op.
func AllowedRoles(op Operation) []domain.Role {
	return append([]domain.Role(nil), allowedRoles[op]...)
}
