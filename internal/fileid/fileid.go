// Package fileid derives stable entry IDs for journal files imported from the inbox.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes inbox-derived IDs so they never collide with random entry IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("somnia:inbox"))

// EntryID returns the entry ID for a file imported on behalf of ownerID.
// The same owner and cleaned path always yield the same ID, so re-importing
// a changed file updates the entry it created before.
func EntryID(ownerID, path string) string {
	name := ownerID + "\x00" + filepath.Clean(path)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// IsFileEntry reports whether id could have been produced by EntryID.
func IsFileEntry(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 5
}
