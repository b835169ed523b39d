// Package pastevent provides the past event records of the heritage site:
// storage, normalization, listing projections, and gated authoring.
//
// A record is stored with its five nested sections (hero, intro, feature
// list, gallery, conclusion) as opaque JSON. Normalize turns any stored
// record, however partial or malformed its sections, into a fully populated
// PastEvent. ProjectSummary derives the listing shape, which never carries
// the sections.
//
// Reads go through Service and are public. Writes go through Author, which
// checks the caller's credential against a CredentialGate before anything
// reaches the Repository.
//
// Credential Results
//
// The gate distinguishes three failures: no credential, a rejected
// credential, and a verification that could not complete. Only the last is
// transient; callers should retry it rather than discard the credential.
//
// Repositories (memory, Postgres) and blob stores for uploaded images
// (memory, filesystem, S3) are provided under subpackages.
package pastevent
