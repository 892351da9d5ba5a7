// Package attendee stores the per-user event data tracked at the scan
// stations: profiles (bag check, attendance, food, diet, allergens) and the
// NFC links staff scan to find a person.
//
// Every user has at most one profile and at most one NFC link. Profiles are
// created lazily; links are issued once and never reassigned.
//
// Repositories accept a database.Querier so they can run inside a
// transaction opened by the caller.
//
// # Thread Safety
//
// All repositories are safe for concurrent use. Scan counters are
// incremented in SQL so concurrent scans do not lose updates.
package attendee
