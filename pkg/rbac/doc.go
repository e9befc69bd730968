// Package rbac implements tenant-scoped role-based access control:
// per-tenant roles, allow/deny permission rows, one-way permission
// implications, and a TTL cache over resolved permission sets.
//
// Resolution is deny-biased. A role's rows are partitioned into allowed
// and denied sets, the allowed set is expanded through the implication
// table to a fixed point (never adding a permission the role explicitly
// denies), and the denied set is subtracted last. A subject whose
// membership carries no structured role resolves to the empty set.
package rbac
