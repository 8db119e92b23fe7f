/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package expiry

// AccessKind is a kind of low-level storage access performed by maintenance work.
type AccessKind string

// Access kinds.
const (
	AccountsGet             AccessKind = "accounts_get"
	AccountsGetForModify    AccessKind = "accounts_get_for_modify"
	AccountsRemove          AccessKind = "accounts_remove"
	BlobsGet                AccessKind = "blobs_get"
	BlobsRemove             AccessKind = "blobs_remove"
	NFTsGet                 AccessKind = "nfts_get"
	NFTsRemove              AccessKind = "nfts_remove"
	StorageGet              AccessKind = "storage_get"
	StoragePut              AccessKind = "storage_put"
	StorageRemove           AccessKind = "storage_remove"
	TokenAssociationsGet    AccessKind = "token_associations_get"
	TokenAssociationsRemove AccessKind = "token_associations_remove"
)

var knownAccessKinds = map[AccessKind]struct{}{
	AccountsGet:             {},
	AccountsGetForModify:    {},
	AccountsRemove:          {},
	BlobsGet:                {},
	BlobsRemove:             {},
	NFTsGet:                 {},
	NFTsRemove:              {},
	StorageGet:              {},
	StoragePut:              {},
	StorageRemove:           {},
	TokenAssociationsGet:    {},
	TokenAssociationsRemove: {},
}

// IsKnown reports whether the access kind is one of the declared constants.
func (k AccessKind) IsKnown() bool {
	_, ok := knownAccessKinds[k]
	return ok
}

// DefaultMinUnitOfWork is the smallest piece of work that makes sense to start:
// fetching an expired account for modification and removing it.
var DefaultMinUnitOfWork = []AccessKind{AccountsGetForModify, AccountsRemove}
