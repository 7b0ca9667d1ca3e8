// Package posting delivers due memes to the channel.
//
// Delivery walks an ordered list of strategies and stops at the first
// success. Every cycle and on-demand post appends one entry per record to a
// bounded in-memory event log.
package posting
