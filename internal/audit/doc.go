// Package audit records privileged actions in the audit_logs table and
// serves the paginated, searchable read path.
//
// Entries snapshot the actor's and target's name and email at write time,
// so history stays readable after an account is renamed or deleted.
// Recording is best-effort: a failed write is logged and never aborts the
// business operation it documents.
package audit
