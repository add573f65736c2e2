package gradauth

import (
	"context"
)

// UpdateUserRole describes the updateuserrole operation and its observable behavior.
//
// Two demotion guards apply: an admin may not demote their own account, and
// the last remaining admin may not be demoted by anyone.
func (e *Engine) UpdateUserRole(ctx context.Context, actorID, targetID string, role Role) (UserRecord, error) {
	if e == nil || e.userDirectory == nil {
		return UserRecord{}, ErrEngineNotReady
	}

	if !role.Valid() {
		e.metricInc(MetricRoleChangeDenied)
		e.emitAudit(ctx, auditEventRoleChangeDenied, false, actorID, "", ErrRoleInvalid, nil)
		return UserRecord{}, ErrRoleInvalid
	}

	target, err := e.userDirectory.GetUserByID(ctx, targetID)
	if err != nil {
		e.emitAudit(ctx, auditEventRoleChangeDenied, false, actorID, "", ErrUserNotFound, nil)
		return UserRecord{}, ErrUserNotFound
	}

	if target.Role == role {
		target.PasswordHash = ""
		return target, nil
	}

	if target.Role == RoleAdmin && role != RoleAdmin {
		if actorID == targetID {
			e.metricInc(MetricRoleChangeDenied)
			e.emitAudit(ctx, auditEventRoleChangeDenied, false, actorID, target.Email, ErrSelfDemoteForbidden, nil)
			return UserRecord{}, ErrSelfDemoteForbidden
		}

		admins, err := e.userDirectory.CountAdmins(ctx)
		if err != nil {
			e.emitAudit(ctx, auditEventRoleChangeDenied, false, actorID, target.Email, err, nil)
			return UserRecord{}, err
		}
		if admins <= 1 {
			e.metricInc(MetricRoleChangeDenied)
			e.emitAudit(ctx, auditEventRoleChangeDenied, false, actorID, target.Email, ErrLastAdminForbidden, nil)
			return UserRecord{}, ErrLastAdminForbidden
		}
	}

	updated, err := e.userDirectory.UpdateRole(ctx, targetID, role)
	if err != nil {
		e.emitAudit(ctx, auditEventRoleChangeDenied, false, actorID, target.Email, err, nil)
		return UserRecord{}, err
	}

	// Demotion takes effect on the next access-token issue; outstanding
	// refresh rows are revoked so a stale admin token cannot be renewed.
	if role != RoleAdmin && e.refreshStore != nil {
		_ = e.refreshStore.RevokeAllForUser(ctx, targetID)
	}

	e.metricInc(MetricRoleChangeSuccess)
	e.emitAudit(ctx, auditEventRoleChange, true, actorID, updated.Email, nil, func() map[string]string {
		return map[string]string{
			"target": targetID,
			"role":   string(role),
		}
	})

	updated.PasswordHash = ""
	return updated, nil
}
