// Package meme holds the record type, the daily slot clock and the error
// taxonomy shared by the scheduler, the poster and the backup engine.
package meme
