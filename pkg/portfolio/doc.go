// Package portfolio provides the content backend for a personal portfolio site.
//
// Records live in a relational datastore, one table per content type. Tables that
// carry an image or document hold the public URL of an object in a storage bucket.
// The package keeps those URLs consistent with the objects they point at:
//
//   - AssetSynchronizer reconciles a record's asset field on every save
//     (upload, clear, manual URL or no change) and removes the replaced object
//     only after the record write has committed.
//   - Registry is the static catalog of resource groups (content sections and the
//     tables and buckets each one owns).
//   - ActivityLog is a best-effort audit sink for every mutating admin action.
//
// The guarded bulk-deletion protocol lives in the purge subpackage.
package portfolio
