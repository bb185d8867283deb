// Package initgcbot implements the InitGcBot of §4.6: at zone startup
// it scans each file's index (falling back to a raw data-file rescan on
// corruption) to rebuild filestate.FileState and seed CacheBot location
// entries, and at runtime it executes the single-file garbage
// collection rewrite of §4.4.1 whenever a FileBot dispatches one.
package initgcbot
