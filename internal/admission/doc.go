// Package admission gates concurrent drafting/review streams per document
// section. At most one session is active for a resource key at any time; a
// second request parks as pending and a third replaces the parked one, so
// only the author's latest intent is serviced next.
package admission
