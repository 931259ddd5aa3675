// Package zipstore exposes a zip archive that is stored as a single value of a byte-oriented key-value store as a
// read-only, listable key-value store.
//
// Open reads only the end of the archive and its central directory to build an index; file contents are fetched on
// demand with ranged reads of the backing store:
//
//	s, err := s3store.New(client, "my-bucket")
//	a, err := zipstore.Open(ctx, s, "datasets/example.zip")
//	data, found, err := a.GetPartial(ctx, "a/b/zarr.json", store.FromStart(0, 128))
//
// Files stored without compression are served by translating each requested range into a range of the archive.
// Compressed files can only be decoded from their start, so they are decompressed in full on every read; callers that
// read the same compressed file repeatedly should cache the results themselves.
//
// Directories are never keys. ListDir synthesizes the immediate child prefixes of every file and includes the
// explicit directory entries of the archive, so empty directories are listed too. Symlinks are not indexed.
//
// AsyncAdapter, created with OpenAsync, offers the same semantics over a store.AsyncReadableStore.
package zipstore
