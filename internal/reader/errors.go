package reader

import "errors"

var (
	// ErrUnreadableBook indicates the source file is not a readable EPUB.
	ErrUnreadableBook = errors.New("book could not be opened")

	// ErrInvalidPosition indicates a token index outside [0, total].
	ErrInvalidPosition = errors.New("position out of range")

	// ErrNoBookLoaded indicates an operation that needs a loaded book was
	// invoked while the reader is idle.
	ErrNoBookLoaded = errors.New("no book loaded")
)
