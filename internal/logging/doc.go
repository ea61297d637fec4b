// Package logging builds the process slog.Logger and holds the attribute
// helpers shared by every package. Token values are only ever logged through
// SanitizeToken.
package logging
