// Package storage keeps the bytes of issue attachments. Files live on an
// afero.Fs: a directory of the host filesystem in production and a memory
// filesystem in tests.
package storage
