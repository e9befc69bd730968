// Package tenants manages tenant workspaces, user-tenant memberships, and
// email invitations.
//
// A tenant reference arriving in a request may be the canonical UUID, the
// human-readable identifier, or the key prefix; Resolve tries all three. A
// membership counts only once accepted: rows with a NULL accepted_at are
// pending and never satisfy an access check. Pending invitations are
// converted into memberships opportunistically on each authenticated request
// by ClaimPendingInvitations.
package tenants
