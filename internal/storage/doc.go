// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable key-value store backing the roster
// client's session and settings state.
//
// The store is a single SQLite database (pure Go driver, modernc.org/sqlite)
// under the user's roster directory. It survives restarts of the client but
// is local to the machine. Keys are independent strings; multi-key atomicity
// is available through Update, which runs the given function inside one
// SQLite transaction.
//
// Two running clients on the same machine share the database file. There is
// no lock coordinating their writers beyond SQLite's own; a Watcher can be
// attached to the database file so that a second client observes external
// writes (for example a logout performed in another terminal) and re-reads
// its state.
package storage
