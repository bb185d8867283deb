// Package readerbot implements the ReaderBot of §4.5: a stateless pool
// that performs the actual file I/O a FileBot has already granted
// permission for — read the bytes, verify the checksum, decrypt if
// configured, and reply. It keeps a small bounded cache of open file
// handles per §5's resource bounds instead of opening/closing a handle
// per read.
package readerbot
