// Package storage keeps the append-only audit log of operator actions
// (track add/remove, autobroadcast changes). The tracked list itself lives
// in the config document, not here.
package storage
