// Package credentials persists the single OAuth credential set used by calbridge.
//
// A Store loads and saves the record. Four backends are available:
//
//   - FileStore: a JSON file, replaced atomically via rename (default)
//   - SQLiteStore: a single row in a SQLite database
//   - ValkeyStore: a single key in Valkey
//   - GCSStore: a single object in a Cloud Storage bucket
//
// EncryptedStore and InstrumentedStore decorate any backend with AES-256-GCM
// token encryption and with metrics respectively.
//
// Guard owns the in-memory copy and serializes every read-modify-write
// against the Store:
//
//	guard := credentials.NewGuard(credentials.NewFileStore(path))
//	creds, err := guard.Update(ctx, func(ctx context.Context, cur *credentials.Credentials) (*credentials.Credentials, error) {
//		return refreshed, nil
//	})
package credentials
