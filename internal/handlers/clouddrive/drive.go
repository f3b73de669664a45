// Package clouddrive is the cloud-drive export handler: it uploads an
// invoice to a rendered path on a pluggable drive API, sharing the parent
// folder with configured collaborators and skipping paths that already
// have a file.
package clouddrive

import "context"

// DriveAPI is the pluggable contract the handler drives; a concrete
// implementation wraps whatever cloud-drive provider the deployment uses.
type DriveAPI interface {
	// EnsureFolder creates path (and any missing parents) under
	// parentFolderID if it doesn't already exist, returning the leaf
	// folder's ID.
	EnsureFolder(ctx context.Context, parentFolderID, path string) (string, error)

	// Upload writes content to name inside folderID, returning a
	// provider-specific file ID.
	Upload(ctx context.Context, folderID, name string, content []byte) (string, error)

	// Exists reports whether a file named name already exists in folderID.
	Exists(ctx context.Context, folderID, name string) (bool, error)

	// Share grants read access on folderID to each address in withEmails.
	Share(ctx context.Context, folderID string, withEmails []string) error
}
